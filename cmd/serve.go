package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/emrlift/emrlift/internal/api"
	"github.com/emrlift/emrlift/internal/ws"
)

var (
	serveAddr    string
	serveDevMode bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the host API",
	Long: `Serve the cluster lifecycle and macros over HTTP, with progress events on
a websocket at /api/ws. The state lock is held while the server runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		return a.locked(func() error {
			eng, err := a.newEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Shutdown()

			hub := ws.NewHub(a.logger)
			go hub.Run()
			defer hub.Close()

			srv := api.New(eng, a.logger, serveAddr,
				api.WithHub(hub),
				api.WithDevMode(serveDevMode),
			)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			fmt.Fprintf(os.Stderr, "emrlift host API: http://%s\n", serveAddr)

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				a.logger.Info("shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("server shutdown: %w", err)
				}
			}
			return nil
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8230", "listen address")
	serveCmd.Flags().BoolVar(&serveDevMode, "dev", false, "enable CORS and cross-origin websockets for development")
	rootCmd.AddCommand(serveCmd)
}
