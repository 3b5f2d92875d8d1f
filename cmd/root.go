package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/engine"
	"github.com/emrlift/emrlift/internal/host"
	"github.com/emrlift/emrlift/internal/lock"
	"github.com/emrlift/emrlift/internal/logging"
	"github.com/emrlift/emrlift/internal/state"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
	commit   = "none"
	date     = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "emrlift",
	Short: "emrlift — Amazon EMR clusters for a data-science host",
	Long: `emrlift creates, attaches to, copies, scales, inspects and terminates
Hadoop/Spark clusters on Amazon EMR, and returns the connection settings
the host needs to run Hive and Spark jobs on them.`,
	SilenceUsage: true,
}

func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.emrlift/emrlift.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config file")
}

// app is what every command needs once flags are parsed.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func loadApp() (*app, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logging.Setup(level, cfg.Logging.Directory)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger}, nil
}

// engine opens the record store and wires real AWS services.
func (a *app) newEngine(ctx context.Context) (*engine.Engine, error) {
	store, err := state.Open(a.cfg.State.Path)
	if err != nil {
		return nil, err
	}
	deps := host.NewDeps(ctx, a.cfg, nil, a.logger)
	return engine.New(a.cfg, store, deps, a.logger), nil
}

// locked runs fn while holding the state lock.
func (a *app) locked(fn func() error) error {
	if err := lock.Acquire(a.cfg.State.LockPath); err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(a.cfg.State.LockPath); err != nil {
			a.logger.Warn("releasing lock", "error", err)
		}
	}()
	return fn()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// readForm reads a YAML (or JSON) mapping from path.
func readForm(path string) (map[string]any, error) {
	data, err := os.ReadFile(config.ExpandHome(path))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return raw, nil
}
