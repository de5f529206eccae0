package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/kozaktomas/customer-recognition/internal/constants"
	"github.com/kozaktomas/customer-recognition/internal/embedding"
	"github.com/kozaktomas/customer-recognition/internal/logging"
	"github.com/kozaktomas/customer-recognition/internal/recognition"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Register customers from folders of face photos",
	Long: `Register known customers from a face-data directory.
Every sub-directory is one person; its name becomes the customer id. The first
face of every image is embedded and the customer is stored with the mean
embedding. Customers that already exist are skipped.

Examples:
  # Enroll from FACE_DATA_DIR
  customer-recognition enroll

  # Enroll from another directory
  customer-recognition enroll --dir ./face_data/new`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("dir", "", "Face data directory (overrides FACE_DATA_DIR)")
	enrollCmd.Flags().Int("concurrency", constants.EnrollWorkers, "Number of folders enrolled in parallel")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	dir := mustGetString(cmd, "dir")
	concurrency := max(1, mustGetInt(cmd, "concurrency"))
	if dir == "" {
		dir = cfg.Paths.FaceDataDir
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	pool, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	folders, err := recognition.PersonFolders(dir)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d customer folders in %s\n\n", len(folders), dir)
	if len(folders) == 0 {
		return nil
	}

	client := embedding.NewClient(cfg.Embedding.URL)
	bar := progressbar.NewOptions(len(folders),
		progressbar.OptionSetDescription("Enrolling customers"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("folders"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	counts := map[recognition.EnrollStatus]int{}
	var errorCount int
	var mu sync.Mutex

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, folder := range folders {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(folder string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := recognition.EnrollFolder(ctx, client, store, folder, time.Now())

			mu.Lock()
			if err != nil {
				logging.Default().Error("failed to enroll folder", "folder", folder, logging.ErrAttr(err))
				errorCount++
			} else {
				counts[res.Status]++
			}
			mu.Unlock()
			_ = bar.Add(1)
		}(folder)
	}

	wg.Wait()
	_ = bar.Finish()

	fmt.Printf("\n\nEnrollment complete:\n")
	fmt.Printf("  Created: %d\n", counts[recognition.EnrollCreated])
	fmt.Printf("  Skipped (already stored): %d\n", counts[recognition.EnrollExists])
	fmt.Printf("  Skipped (no faces): %d\n", counts[recognition.EnrollNoFaces])
	fmt.Printf("  Errors: %d\n", errorCount)
	return ctx.Err()
}
