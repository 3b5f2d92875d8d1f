package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emrlift/emrlift/internal/engine"
	"github.com/emrlift/emrlift/internal/state"
	"github.com/emrlift/emrlift/internal/tui"
)

var (
	startType string
	startFile string
	startName string
)

var startCmd = &cobra.Command{
	Use:   "start <cluster-id>",
	Short: "Create, attach to or copy a cluster and record it",
	Long: `Start a managed cluster. With --type create a new EMR cluster is built
from the cluster file; attach adopts the running cluster named by
emr_cluster_id; copy provisions a new cluster from the stored configuration
of source_cluster_id, with the file's values as overrides.

The connection metadata is printed to stdout as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		raw := map[string]any{}
		if startFile != "" {
			if raw, err = readForm(startFile); err != nil {
				return err
			}
		}

		ctx, cancel := signalContext()
		defer cancel()

		return a.locked(func() error {
			eng, err := a.newEngine(ctx)
			if err != nil {
				return err
			}

			req := engine.StartRequest{ID: args[0], Name: startName, Type: startType, Config: raw}
			var rec *state.Record
			runErr := tui.Run(ctx, os.Stderr, fmt.Sprintf("Starting %s cluster %s", startType, args[0]),
				func(ctx context.Context, progress func(string)) error {
					var err error
					rec, err = eng.Start(ctx, req, progress)
					return err
				})
			if rec != nil {
				if err := printJSON(map[string]any{"data": rec.Data, "metadata": rec.Metadata}); err != nil {
					return err
				}
			}
			return runErr
		})
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	startCmd.Flags().StringVarP(&startType, "type", "t", "create", "cluster type: create, attach or copy")
	startCmd.Flags().StringVarP(&startFile, "file", "f", "", "cluster config file (YAML)")
	startCmd.Flags().StringVar(&startName, "name", "", "display name (default: the cluster id)")
	rootCmd.AddCommand(startCmd)
}
