package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emrlift/emrlift/internal/tui"
)

var stopCmd = &cobra.Command{
	Use:   "stop <cluster-id>",
	Short: "Terminate (or detach from) a managed cluster and forget it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		return a.locked(func() error {
			eng, err := a.newEngine(ctx)
			if err != nil {
				return err
			}
			return tui.Run(ctx, os.Stderr, fmt.Sprintf("Stopping cluster %s", args[0]),
				func(ctx context.Context, progress func(string)) error {
					return eng.Stop(ctx, args[0], progress)
				})
		})
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
