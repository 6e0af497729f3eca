package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/menta2k/camera-capture/internal/api"
	"github.com/menta2k/camera-capture/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the camera-capture API server",
	Long: `Open the camera and serve the HTTP control API. Capture events are
streamed to WebSocket clients on /api/events.`,
	Example: `  # Start server on the configured port (default 8080)
  camera-capture serve

  # Start server on custom port
  camera-capture serve --port 9090

  # Start with debug logging
  camera-capture serve --log-level debug --pretty`,
	RunE: runServe,
}

var servePort int

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("cli")

	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	req, err := cfg.CaptureRequest()
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := api.NewEventBroadcaster()
	camera, err := openCamera(ctx, events)
	if err != nil {
		return err
	}
	defer camera.Close()

	log.Info().
		Str("config", GetConfigFile()).
		Int("port", cfg.Server.Port).
		Str("target", req.Target.String()).
		Msg("camera ready")

	server := api.NewServer(camera.Session(), events, req, api.WithMediaWait(cfg.Gallery.MediaWait))
	if err := server.Start(ctx, cfg.Server.Port); err != nil {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
