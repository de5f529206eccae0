package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/customer-recognition/internal/prediction"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the bill prediction model",
	Long: `Train the bill prediction model from all stored purchase histories,
save it to MODEL_PATH and print the prediction for every customer.`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	ctx := context.Background()

	pool, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	engine := prediction.NewEngine(store, prediction.NewFileArtifactStore(cfg.Prediction.ModelPath))
	if err := engine.Load(ctx); err != nil {
		return goerr.Wrap(err, "failed to load purchase histories")
	}

	engine.Train(ctx)
	info, _ := engine.ModelInfo()
	printModel(info)

	ids := engine.CustomerIDs()
	if len(ids) == 0 {
		return nil
	}
	fmt.Printf("\nPredicted next bills:\n")
	for _, id := range ids {
		fmt.Printf("  %-20s $%.2f (%d purchases)\n", id, engine.Predict(id), len(engine.History(id)))
	}
	return nil
}

func printModel(info prediction.Artifact) {
	fmt.Printf("Model: %s\n", info.Type)
	fmt.Printf("  Samples: %d\n", info.Samples)
	switch {
	case info.Model != nil:
		fmt.Printf("  next = %.4f * previous + %.4f\n", info.Model.Slope, info.Model.Intercept)
	case info.AvgBill != nil:
		fmt.Printf("  Average bill: $%.2f\n", *info.AvgBill)
	}
}
