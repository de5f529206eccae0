package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/customer-recognition/internal/cooldown"
	"github.com/kozaktomas/customer-recognition/internal/embedding"
	"github.com/kozaktomas/customer-recognition/internal/facematch"
	"github.com/kozaktomas/customer-recognition/internal/logging"
	"github.com/kozaktomas/customer-recognition/internal/recognition"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize",
	Short: "Recognize customers in captured frames",
	Long: `Watch an inbox directory for camera frames, match every face against the
known customers and notify the detection server. Unknown faces are registered
as new customers.

Examples:
  customer-recognition recognize --inbox ./incoming`,
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().String("inbox", "incoming", "Directory polled for new frames")
	recognizeCmd.Flags().Bool("once", false, "Process the inbox once and exit")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	inbox := mustGetString(cmd, "inbox")
	once := mustGetBool(cmd, "once")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	logger := logging.Default()
	ctx = logging.With(ctx, logger)

	pool, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	r := recognition.New(
		embedding.NewClient(cfg.Embedding.URL),
		store,
		facematch.NewGallery(cfg.Recognition.Threshold, cfg.Recognition.IndexThreshold),
		cooldown.New(cfg.Recognition.ClientCooldown),
		recognition.NewHTTPNotifier(cfg.Notify.URL),
		recognition.Config{InboxDir: inbox, CaptureDir: cfg.Paths.CaptureDir},
	)

	n, err := r.LoadGallery(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to load known customers")
	}
	logger.Info("known customers loaded", "count", n, "threshold", cfg.Recognition.Threshold)

	if once {
		outcomes, err := r.Scan(ctx)
		logger.Info("inbox processed", "faces", len(outcomes))
		return err
	}

	logger.Info("watching inbox", "dir", inbox, "interval", cfg.Recognition.PollInterval)
	r.Run(ctx, cfg.Recognition.PollInterval)
	return nil
}
