package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/i474232898/weather-forecaster/internal/forecast"
)

var trainDataPath string

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train both models once and print progress",
	RunE:  runTrain,
}

func init() {
	trainCmd.Flags().StringVar(&trainDataPath, "data", "", "path to the observations CSV (defaults to DATASET_PATH)")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service := newService()
	defer service.Close()

	if _, err := requireDataset(cmd, service, trainDataPath); err != nil {
		return err
	}

	events, unsubscribe := service.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if ev.Type == forecast.EventProgress {
				printProgress(cmd, ev.Progress)
			}
		}
	}()

	run, err := service.Train(ctx)
	unsubscribe()
	<-done
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	printRun(cmd, run)
	return nil
}

// requireDataset loads the --data file or the configured dataset and fails
// when neither is available.
func requireDataset(cmd *cobra.Command, service *forecast.Service, path string) (bool, error) {
	if path == "" {
		path = cfg.DatasetPath
	}
	summary, ok, err := loadDataset(cmd.Context(), service, path, cfg.DatasetURL)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, errors.New("no dataset: pass --data or set DATASET_PATH / DATASET_URL")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d rows from %s (%s to %s)\n",
		summary.Rows, summary.Source, summary.From.Format("2006-01-02"), summary.To.Format("2006-01-02"))
	if summary.UnknownLabels > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "warning: %d rows have unknown labels and train as %q\n",
			summary.UnknownLabels, "clear")
	}
	return true, nil
}

func printProgress(cmd *cobra.Command, p *forecast.Progress) {
	if p == nil {
		return
	}
	if p.Accuracy != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%-10s epoch %3d  loss %.4f  accuracy %.3f\n", p.Model, p.Epoch, p.Loss, *p.Accuracy)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%-10s epoch %3d  loss %.4f\n", p.Model, p.Epoch, p.Loss)
}

func printRun(cmd *cobra.Command, run forecast.Run) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s %s\n", run.ID, run.State)
	for _, r := range []*forecast.Report{run.Regressor, run.Classifier} {
		if r == nil {
			continue
		}
		fmt.Fprintf(out, "  %-10s samples %d  epochs %d  final loss %.4f  (%s)\n",
			r.Model, r.Samples, r.Epochs, r.FinalLoss, r.Duration)
	}
	if m := run.Metrics; m != nil {
		fmt.Fprintf(out, "  display metrics (illustrative): MAE %.1f°C  RMSE %.1f°C  accuracy %.0f%%\n",
			m.MAE, m.RMSE, m.Accuracy*100)
	}
}
