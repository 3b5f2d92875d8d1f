package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emrlift/emrlift/internal/state"
	"github.com/emrlift/emrlift/internal/tui"
)

var recordsJSON bool

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List the managed clusters",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		store, err := state.Open(a.cfg.State.Path)
		if err != nil {
			return err
		}
		records := store.List()
		if recordsJSON {
			return printJSON(records)
		}
		fmt.Print(tui.RenderRecords(records))
		return nil
	},
}

func init() {
	recordsCmd.Flags().BoolVar(&recordsJSON, "json", false, "print records as JSON")
	rootCmd.AddCommand(recordsCmd)
}
