package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	awsapi "github.com/emrlift/emrlift/internal/aws"
	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/host"
	"github.com/emrlift/emrlift/internal/preflight"
	"github.com/emrlift/emrlift/internal/tui"
)

var (
	preflightFile string
	preflightJSON bool
)

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Check credentials, EMR permissions and metastore reachability",
	Long: `Check that the configured credentials work, that IAM allows every EMR
call emrlift makes and, given a cluster file with an external metastore,
that the metastore database accepts connections.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		cc := &config.ClusterConfig{}
		var spec *config.Spec
		if preflightFile != "" {
			if cc, err = config.LoadClusterConfig(preflightFile); err != nil {
				return err
			}
			if spec, err = config.NewBuilder(*cc).Named("preflight").WithDefaults(a.cfg.AWS.Region, "").Build(); err != nil {
				return err
			}
		}

		clients, err := awsapi.Connect(ctx, host.Credentials(a.cfg, cc))
		if err != nil {
			return err
		}
		report, err := preflight.New(clients.STS, clients.IAM, a.logger).Run(ctx, spec)
		if preflightJSON {
			if perr := printJSON(report); perr != nil {
				return perr
			}
		} else {
			fmt.Print(tui.RenderPreflight(report))
		}
		if err != nil {
			return err
		}
		if !report.OK() {
			return errors.New("pre-flight checks failed")
		}
		return nil
	},
}

func init() {
	preflightCmd.Flags().StringVarP(&preflightFile, "file", "f", "", "cluster config file to check the metastore of")
	preflightCmd.Flags().BoolVar(&preflightJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(preflightCmd)
}
