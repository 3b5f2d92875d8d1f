package cmd

import (
	"github.com/spf13/cobra"

	"github.com/emrlift/emrlift/internal/cluster"
	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/host"
)

var (
	requestFile string
	requestName string
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Print the RunJobFlow request a cluster file maps to, without calling AWS",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		cc, err := config.LoadClusterConfig(requestFile)
		if err != nil {
			return err
		}
		spec, err := config.NewBuilder(*cc).
			Named(host.ClusterName(a.cfg.Plugin.NamePrefix, requestName)).
			WithDefaults(a.cfg.AWS.Region, "").
			Build()
		if err != nil {
			return err
		}
		in, err := cluster.BuildRequest(spec)
		if err != nil {
			return err
		}
		return printJSON(in)
	},
}

func init() {
	requestCmd.Flags().StringVarP(&requestFile, "file", "f", "", "cluster config file (YAML)")
	requestCmd.Flags().StringVar(&requestName, "name", "cluster", "cluster id used to derive the EMR name")
	requestCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(requestCmd)
}
