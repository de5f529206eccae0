package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/customer-recognition/internal/constants"
	"github.com/kozaktomas/customer-recognition/internal/cooldown"
	"github.com/kozaktomas/customer-recognition/internal/detection"
	"github.com/kozaktomas/customer-recognition/internal/images"
	"github.com/kozaktomas/customer-recognition/internal/logging"
	"github.com/kozaktomas/customer-recognition/internal/prediction"
	"github.com/kozaktomas/customer-recognition/internal/web"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the detection server",
	Long: `Start the Customer Recognition web server.
The server accepts detections from the recognition loop, forecasts the bill
of every admitted customer, streams detections to the cashier dashboard and
records finalized bills.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	logger := logging.Default()
	ctx = logging.With(ctx, logger)

	pool, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	engine := prediction.NewEngine(store, prediction.NewFileArtifactStore(cfg.Prediction.ModelPath))
	if err := engine.Load(ctx); err != nil {
		return goerr.Wrap(err, "failed to load prediction engine")
	}

	resolver := images.NewResolver(cfg.Paths.CaptureDir, cfg.Paths.StaticImagesDir, constants.MaxImageSize)
	if n, err := resolver.SyncAll(ctx); err != nil {
		logger.Warn("failed to sync captured images", logging.ErrAttr(err))
	} else {
		logger.Info("captured images synced", "count", n)
	}

	gate := cooldown.New(cfg.Recognition.Cooldown)
	go gate.Run(ctx, cfg.Recognition.SweepInterval)

	cache := detection.NewCache()
	coordinator := detection.NewCoordinator(gate, store, resolver, engine, cache, detection.Config{
		Workers:     cfg.Detection.Workers,
		QueueSize:   cfg.Detection.QueueSize,
		TaskTimeout: cfg.Detection.TaskTimeout,
	})
	coordinator.Start(ctx)

	server := web.NewServer(cfg, web.Deps{
		Detector:  coordinator,
		Engine:    engine,
		Store:     store,
		Cache:     cache,
		Images:    resolver,
		StaticDir: cfg.Paths.StaticImagesDir,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()
	logger.Info("press Ctrl+C to stop")

	select {
	case err = <-errCh:
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer shutdownCancel()

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("error during shutdown", logging.ErrAttr(shutdownErr))
	}
	if stopErr := coordinator.Stop(shutdownCtx); stopErr != nil {
		logger.Error("error stopping detection workers", logging.ErrAttr(stopErr))
	}
	return err
}
