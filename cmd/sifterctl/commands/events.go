package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chord-frb/sifter/internal/db"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read grouped events from the event database",
	}

	var (
		path      string
		limit     int
		withBeams bool
		format    string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := db.NewDB(path)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			events, err := store.RecentEvents(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if format == "jsonl" {
				enc := json.NewEncoder(out)
				for _, e := range events {
					if err := enc.Encode(e); err != nil {
						return err
					}
				}
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIME\tBEST BEAM\tBEAMS\tSNR\tDM\tMISSING")
			for _, e := range events {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%.2f\t%.2f\t%d\n",
					e.EventID, e.Timestamp.Format("2006-01-02T15:04:05.000000Z"), e.BestBeam, e.NBeams,
					e.BestSNR, e.DM, e.MissingBeams)
				if !withBeams {
					continue
				}
				beams, err := store.EventBeams(ctx, e.EventID)
				if err != nil {
					return err
				}
				for _, b := range beams {
					fmt.Fprintf(tw, "\t  beam %d\t\t\t%.2f\t%.2f\t\n", b.Beam, b.SNR, b.DM)
				}
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&path, "db", "sifter.db", "Event database path")
	list.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events")
	list.Flags().BoolVar(&withBeams, "beams", false, "Also list each event's beams")
	list.Flags().StringVarP(&format, "output", "o", "table", "Output format: table or jsonl")

	cmd.AddCommand(list)
	return cmd
}
