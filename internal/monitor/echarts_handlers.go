package monitor

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/chord-frb/sifter/internal/frb"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleActivityChart renders the grouper's activity lookbacks as a line
// chart, oldest frame on the left.
func (ws *WebServer) handleActivityChart(w http.ResponseWriter, r *http.Request) {
	snap := ws.source.Snapshot()

	x := make([]string, frb.LookbackLength)
	dm := make([]opts.LineData, frb.LookbackLength)
	beams := make([]opts.LineData, frb.LookbackLength)
	for i := 0; i < frb.LookbackLength; i++ {
		x[i] = fmt.Sprintf("%d", i-frb.LookbackLength+1)
		dm[i] = opts.LineData{Value: snap.DMActivityLookback[i]}
		beams[i] = opts.LineData{Value: snap.BeamActivityLookback[i]}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sifter Activity", Theme: "dark", Width: "900px", Height: "500px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Frame Activity", Subtitle: fmt.Sprintf("groups=%d frames=%d", snap.Groups, snap.Assembler.Frames)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "count", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(x).
		AddSeries("coherent DM activity", dm).
		AddSeries("beam activity", beams)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
