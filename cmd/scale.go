package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emrlift/emrlift/internal/tui"
)

var (
	scaleCore int32
	scaleTask int32
	scaleWait bool
)

var scaleCmd = &cobra.Command{
	Use:   "scale <cluster-id>",
	Short: "Resize the core and task instance groups of a managed cluster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		form := map[string]any{
			"core_group_target_instances": scaleCore,
			"task_group_target_instances": scaleTask,
			"wait_for_completion":         scaleWait,
		}

		eng, err := a.newEngine(ctx)
		if err != nil {
			return err
		}
		var out map[string]any
		err = tui.Run(ctx, os.Stderr, fmt.Sprintf("Scaling cluster %s", args[0]),
			func(ctx context.Context, progress func(string)) error {
				var err error
				out, err = eng.RunMacro(ctx, args[0], "scale", form, progress)
				return err
			})
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

func init() {
	scaleCmd.Flags().Int32Var(&scaleCore, "core", 0, "target core instance count")
	scaleCmd.Flags().Int32Var(&scaleTask, "task", 0, "target task instance count")
	scaleCmd.Flags().BoolVar(&scaleWait, "wait", false, "wait until the groups have resized")
	scaleCmd.MarkFlagRequired("core")
	rootCmd.AddCommand(scaleCmd)
}
