package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emrlift/emrlift/internal/tui"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info <cluster-id>",
	Short: "Show the master, workers and instance groups of a managed cluster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		eng, err := a.newEngine(ctx)
		if err != nil {
			return err
		}
		var out map[string]any
		err = tui.Run(ctx, os.Stderr, fmt.Sprintf("Inspecting cluster %s", args[0]),
			func(ctx context.Context, progress func(string)) error {
				var err error
				out, err = eng.RunMacro(ctx, args[0], "info", nil, progress)
				return err
			})
		if err != nil {
			return err
		}
		if infoJSON {
			return printJSON(out)
		}
		fmt.Print(tui.RenderInfo(out))
		return nil
	},
}

func init() {
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "print the raw result as JSON")
	rootCmd.AddCommand(infoCmd)
}
