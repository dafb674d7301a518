package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ogimet-history/internal/dispatcher"
	"github.com/JakeFAU/ogimet-history/internal/stations"
)

// newBatchCmd creates the 'batch' subcommand, which walks the station list.
func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch",
		Short: "Download every station in the station CSV",
		Long: `Loads batch.stations_file, keeps stations north of batch.min_latitude
with a WIGOS id, and downloads batch.start..batch.end for each of them,
skipping ranges that are already on disk. The batch stops early when
consecutive runs exhaust their fetch attempts.`,
		Args: cobra.NoArgs,
		RunE: runBatchCommand,
	}
}

func runBatchCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer appInstance.Close()

	cfg := appInstance.GetConfig()
	logger := appInstance.GetLogger()

	start, end, err := cfg.Batch.Window()
	if err != nil {
		return err
	}

	f, err := os.Open(cfg.Batch.StationsFile)
	if err != nil {
		return fmt.Errorf("open stations file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logger.Warn("Failed to close stations file", zap.Error(cerr))
		}
	}()

	list, err := stations.Load(f, stations.Filter{MinLatitude: cfg.Batch.MinLatitude})
	if err != nil {
		return fmt.Errorf("load stations: %w", err)
	}
	logger.Info("Stations loaded", zap.Int("count", len(list)), zap.String("file", cfg.Batch.StationsFile))

	d := dispatcher.New(appInstance.StationRunner(), dispatcher.Config{
		OutputRoot:           cfg.Output.Root,
		SplitMonths:          cfg.Batch.SplitMonths,
		MaxConsecutiveAborts: cfg.Batch.MaxConsecutiveAborts,
	}, logger.Named("dispatcher"))

	sum, err := d.Run(cmd.Context(), list, dispatcher.Window{Start: start, End: end})
	if err != nil {
		return fmt.Errorf("run batch: %w", err)
	}
	logger.Info("Batch command finished.",
		zap.Int("completed", sum.Completed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("incomplete", sum.Incomplete),
		zap.Int("aborted", sum.Aborted),
	)
	return nil
}
