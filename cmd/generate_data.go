package cmd

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/kozaktomas/customer-recognition/internal/logging"
	"github.com/kozaktomas/customer-recognition/internal/prediction"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"
)

var generateDataCmd = &cobra.Command{
	Use:   "generate-data",
	Short: "Generate synthetic purchase histories",
	Long: `Generate synthetic purchase histories for every stored customer and a few
sample customer ids, then retrain the prediction model. Customers that already
have purchases are left alone.

Examples:
  customer-recognition generate-data
  customer-recognition generate-data --seed 42`,
	RunE: runGenerateData,
}

func init() {
	rootCmd.AddCommand(generateDataCmd)

	generateDataCmd.Flags().Uint64("seed", 0, "Random seed (0 = random)")
}

func runGenerateData(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	ctx := context.Background()

	seed, err := cmd.Flags().GetUint64("seed")
	if err != nil {
		return goerr.Wrap(err, "invalid --seed")
	}
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed))

	pool, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	ids, err := store.ListCustomerIDs(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to list customers")
	}
	for _, id := range prediction.SampleCustomerIDs {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	latest, err := store.LatestPurchaseDates(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to read purchase dates")
	}

	fmt.Printf("Generating data for %d customers (seed %d)\n", len(ids), seed)
	now := time.Now().UTC().Truncate(24 * time.Hour)
	var generated int
	for _, id := range ids {
		if _, ok := latest[id]; ok {
			fmt.Printf("  %-20s skipped, has purchases\n", id)
			continue
		}
		purchases := prediction.SyntheticHistory(rng, now)
		for _, p := range purchases {
			if _, err := store.RecordPurchase(ctx, id, p); err != nil {
				return goerr.Wrap(err, "failed to record purchase", goerr.V("customer_id", id))
			}
		}
		generated++
		fmt.Printf("  %-20s %d purchases\n", id, len(purchases))
	}

	if generated == 0 {
		return nil
	}

	engine := prediction.NewEngine(store, prediction.NewFileArtifactStore(cfg.Prediction.ModelPath))
	if err := engine.Load(ctx); err != nil {
		return goerr.Wrap(err, "failed to load purchase histories")
	}
	engine.Train(ctx)
	logging.Default().Info("model retrained", "customers", generated)
	info, _ := engine.ModelInfo()
	printModel(info)
	return nil
}
