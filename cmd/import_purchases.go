package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/customer-recognition/internal/database/mariadb"
	"github.com/kozaktomas/customer-recognition/internal/logging"
	"github.com/kozaktomas/customer-recognition/internal/prediction"
	"github.com/m-mizutani/goerr/v2"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importPurchasesCmd = &cobra.Command{
	Use:   "import-purchases",
	Short: "Import finalized bills from the point of sale",
	Long: `Import finalized bills of loyalty customers from the point-of-sale MariaDB
(POS_DATABASE_URL). Only sales newer than the customer's latest stored purchase
are imported. The prediction model is retrained once afterwards.

Examples:
  # Import the last 30 days
  customer-recognition import-purchases

  # Import the last year
  customer-recognition import-purchases --days 365`,
	RunE: runImportPurchases,
}

func init() {
	rootCmd.AddCommand(importPurchasesCmd)

	importPurchasesCmd.Flags().Int("days", 30, "How many days back to read sales")
	importPurchasesCmd.Flags().Bool("dry-run", false, "Only report what would be imported")
}

func runImportPurchases(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	days := mustGetInt(cmd, "days")
	dryRun := mustGetBool(cmd, "dry-run")
	ctx := context.Background()

	if cfg.POS.DatabaseURL == "" {
		return goerr.New("POS_DATABASE_URL environment variable is required")
	}

	fmt.Println("Connecting to point-of-sale database...")
	pos, err := mariadb.NewPool(cfg.POS.DatabaseURL)
	if err != nil {
		return err
	}
	defer pos.Close()

	pool, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	sales, err := pos.SalesSince(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		return err
	}
	latest, err := store.LatestPurchaseDates(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to read purchase dates")
	}
	sales = mariadb.FilterNew(sales, latest)

	fmt.Printf("Sales to import: %d\n", len(sales))
	if len(sales) == 0 || dryRun {
		return nil
	}

	bar := progressbar.NewOptions(len(sales),
		progressbar.OptionSetDescription("Importing purchases"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("sales"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var imported, errorCount int
	for _, s := range sales {
		if _, err := store.RecordPurchase(ctx, s.CustomerID, s.Purchase); err != nil {
			logging.Default().Error("failed to import sale", "customer_id", s.CustomerID, logging.ErrAttr(err))
			errorCount++
		} else {
			imported++
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	fmt.Printf("\n\nImport complete:\n")
	fmt.Printf("  Imported: %d\n", imported)
	fmt.Printf("  Errors: %d\n", errorCount)

	if imported == 0 {
		return nil
	}
	engine := prediction.NewEngine(store, prediction.NewFileArtifactStore(cfg.Prediction.ModelPath))
	if err := engine.Load(ctx); err != nil {
		return goerr.Wrap(err, "failed to load purchase histories")
	}
	engine.Train(ctx)
	info, _ := engine.ModelInfo()
	printModel(info)
	return nil
}
