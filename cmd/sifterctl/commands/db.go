package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chord-frb/sifter/internal/db"
)

func newDBCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the event database",
	}
	cmd.PersistentFlags().StringVar(&path, "db", "sifter.db", "Event database path")

	migrate := &cobra.Command{
		Use:   "migrate [up|down|version]",
		Short: "Apply, roll back or report schema migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			store, err := db.OpenDB(path)
			if err != nil {
				return err
			}
			defer store.Close()

			switch action {
			case "up":
				err = store.MigrateUp()
			case "down":
				err = store.MigrateDown()
			case "version":
			default:
				return fmt.Errorf("unknown migrate action %q", action)
			}
			if err != nil {
				return err
			}
			version, dirty, err := store.MigrateVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%v)\n", version, dirty)
			return nil
		},
	}
	cmd.AddCommand(migrate)
	return cmd
}
