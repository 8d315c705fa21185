package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chord-frb/sifter/internal/frb/exposure"
)

const dateLayout = "20060102"

func newExposureCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "exposure",
		Short: "Inspect stored exposure grids",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", ".", "Exposure directory")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the dates with a stored grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			dates, err := exposure.NewStore(dir, nil).Dates()
			if err != nil {
				return err
			}
			for _, d := range dates {
				fmt.Fprintln(cmd.OutOrStdout(), d.Format(dateLayout))
			}
			return nil
		},
	}

	var beam int
	show := &cobra.Command{
		Use:   "show DATE",
		Short: "Summarise one day's exposure (DATE is YYYYMMDD)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGrid(dir, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cmd.Flags().Changed("beam") {
				if g.Row(beam) < 0 {
					return fmt.Errorf("beam %d is not part of the grid", beam)
				}
				fmt.Fprintf(out, "beam %d: %.4f observed\n", beam, g.CoverageFraction(beam))
				return nil
			}
			fmt.Fprintf(out, "date %s: %d beams, %d bins, %d observed cells\n",
				args[0], len(g.Beams), g.Bins, g.ObservedCount())
			for _, b := range g.Beams {
				if f := g.CoverageFraction(b); f > 0 {
					fmt.Fprintf(out, "  beam %5d  %.4f\n", b, f)
				}
			}
			return nil
		},
	}
	show.Flags().IntVar(&beam, "beam", 0, "Only report this beam")

	var outPath string
	plot := &cobra.Command{
		Use:   "plot DATE",
		Short: "Render one day's exposure as a PNG heat map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGrid(dir, args[0])
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = "exposure-" + args[0] + ".png"
			}
			if err := exposure.SavePNG(g, "Exposure "+args[0], outPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPath)
			return nil
		},
	}
	plot.Flags().StringVarP(&outPath, "out", "o", "", "Output PNG path (default exposure-DATE.png)")

	cmd.AddCommand(list, show, plot)
	return cmd
}

func loadGrid(dir, date string) (*exposure.Grid, error) {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYYMMDD", date)
	}
	g, err := exposure.NewStore(dir, nil).Load(d)
	if err != nil {
		return nil, fmt.Errorf("failed to load exposure for %s: %w", date, err)
	}
	return g, nil
}
