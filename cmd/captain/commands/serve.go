package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/captain/internal/api"
	"github.com/bryanchriswhite/captain/internal/capture"
	"github.com/bryanchriswhite/captain/internal/config"
	"github.com/bryanchriswhite/captain/internal/logger"
	"github.com/bryanchriswhite/captain/internal/preview"
	"github.com/bryanchriswhite/captain/internal/workflow"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Captain server",
	Long: `Start the Captain HTTP server.

The server exposes a REST API to start workflows and send recording intents,
a websocket stream of workflow events and Prometheus metrics. Options file
changes are picked up without a restart.`,
	Example: `  # Start server on default port (8080)
  captain serve

  # Start server on custom port
  captain serve --port 9090

  # Start with specific config file
  captain serve --config /path/to/options.yaml

  # Start with debug logging
  captain serve --log-level debug

  # Disable the live desktop preview
  captain serve --preview-fps 0`,
	RunE: runServe,
}

var (
	previewFPS int
	serveFPS   int
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&serveFPS, "fps", defaultFPS, "Maximum frame rate of recordings started through the API (0 disables the cap)")
	serveCmd.Flags().IntVar(&previewFPS, "preview-fps", preview.DefaultConfig().FPS, "Frame rate of the live desktop preview at /api/preview (0 disables it)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	configMgr, err := loadConfig()
	if err != nil {
		return err
	}

	// Override port from flag if provided
	if port := viper.GetInt("server_port"); port > 0 {
		if err := configMgr.SetPort(port); err != nil {
			return err
		}
	}

	cfg := configMgr.Get()
	log.Info().
		Str("path", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Int("workflows", len(cfg.Workflows)).
		Msg("Configuration loaded")

	hub := api.NewHub()
	env, screen, err := newEnvironment(configMgr, hub, serveFPS)
	if err != nil {
		return err
	}
	defer screen.Close()

	workflows := workflow.NewSet(env)
	defer func() {
		if err := workflows.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close workflows")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		err := configMgr.Watch(ctx, func(opts *config.Options) {
			workflows.Sync(opts)
		})
		if err != nil {
			log.Warn().Err(err).Msg("Options file watching disabled")
		}
	}()

	deps := api.Deps{
		Workflows:   workflows,
		Config:      configMgr,
		StillCodecs: env.StillCodecs,
		VideoCodecs: env.VideoCodecs,
		Handlers:    env.Handlers,
		Hub:         hub,
	}
	var live *preview.Broadcaster
	if previewFPS > 0 {
		live = preview.New(preview.Config{FPS: previewFPS}, *logger.WithComponent("preview"))
		defer live.Stop()
		go func() {
			err := live.Run(ctx, func() (capture.Device, error) {
				rect, err := desktopRect(screen)
				if err != nil {
					return nil, err
				}
				return env.Devices(rect)
			})
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, preview.ErrStopped) {
				log.Warn().Err(err).Msg("Preview stopped")
			}
		}()
		deps.Preview = live
	}
	server := api.NewServer(deps)

	errc := make(chan error, 1)
	go func() {
		errc <- server.Start(cfg.ServerPort)
	}()

	log.Info().
		Str("api", fmt.Sprintf("http://localhost:%d/api", cfg.ServerPort)).
		Str("metrics", fmt.Sprintf("http://localhost:%d/metrics", cfg.ServerPort)).
		Msg("Captain is running, press Ctrl+C to stop")

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down gracefully...")
	if live != nil {
		// preview clients stream until stopped
		live.Stop()
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return server.Shutdown(shutdownCtx)
}
