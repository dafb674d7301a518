package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ogimet-history/internal/crawler"
)

const fetchArgCount = 5

// newFetchCmd creates the 'fetch' subcommand, which downloads one station
// over one month range.
func newFetchCmd() *cobra.Command {
	var outputRoot string

	cmd := &cobra.Command{
		Use:   "fetch <end-year> <end-month> <start-year> <start-month> <station-id>",
		Short: "Download one station over a month range",
		Long: `Downloads every month from the start month to the end month inclusive
for one station. The run fails without touching anything if its destination
directory already exists, and removes its destination on any failure.`,
		Args:        cobra.MaximumNArgs(fetchArgCount),
		Annotations: map[string]string{minArgsAnnotation: strconv.Itoa(fetchArgCount)},
		RunE: func(cmd *cobra.Command, args []string) error {
			if needsUsage(cmd, args) {
				return cmd.Usage()
			}
			return runFetchCommand(cmd, args, outputRoot)
		},
	}
	cmd.Flags().StringVar(&outputRoot, "output", "", "output root (overrides output.root)")
	return cmd
}

func runFetchCommand(cmd *cobra.Command, args []string, outputRoot string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer appInstance.Close()

	run, err := parseFetchArgs(args)
	if err != nil {
		return err
	}
	run.OutputRoot = outputRoot
	if run.OutputRoot == "" {
		run.OutputRoot = appInstance.GetConfig().Output.Root
	}

	report, err := appInstance.StationRunner().Run(cmd.Context(), run)
	if err != nil {
		return fmt.Errorf("station %s: %w", run.StationID, err)
	}

	appInstance.GetLogger().Info("Fetch command finished.",
		zap.String("destination", report.Destination),
		zap.Int("months_written", report.MonthsOK),
		zap.Int("months_without_data", report.MonthsNoData),
	)
	return nil
}

// parseFetchArgs maps the positional contract onto a StationRun.
func parseFetchArgs(args []string) (crawler.StationRun, error) {
	nums := make([]int, 4)
	names := []string{"end-year", "end-month", "start-year", "start-month"}
	for i := range nums {
		v, err := strconv.Atoi(args[i])
		if err != nil {
			return crawler.StationRun{}, fmt.Errorf("%s %q is not a number", names[i], args[i])
		}
		nums[i] = v
	}
	end, err := crawler.NewMonthKey(nums[0], nums[1])
	if err != nil {
		return crawler.StationRun{}, fmt.Errorf("end: %w", err)
	}
	start, err := crawler.NewMonthKey(nums[2], nums[3])
	if err != nil {
		return crawler.StationRun{}, fmt.Errorf("start: %w", err)
	}
	return crawler.StationRun{StationID: args[4], Start: start, End: end}, nil
}
