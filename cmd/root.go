// Package cmd defines and implements the CLI commands for the ogimet-history executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ogimet-history/internal/app"
	"github.com/JakeFAU/ogimet-history/internal/config"
	"github.com/JakeFAU/ogimet-history/internal/dispatcher"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// minArgsAnnotation names the positional count below which a command only
// prints its usage and never builds the App.
const minArgsAnnotation = "minArgs"

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetConfig() config.Config
	StationRunner() dispatcher.StationRunner
}

type appAdapter struct {
	*app.App
}

func (a appAdapter) StationRunner() dispatcher.StationRunner {
	return a.GetRunner()
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp = func(_ context.Context, configPath string) (App, error) {
	a, err := app.New(configPath)
	if err != nil {
		return nil, err
	}
	return appAdapter{a}, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "ogimet-history",
		Short: "Download ogimet daily summaries into per-variable series files.",
		Long: `ogimet-history fetches the monthly daily-summary tables ogimet publishes
for a station, and appends every observed variable to its own time-series
file under <output.root>/<station>/<start>-<end>/. A run either completes
or leaves nothing behind.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if needsUsage(cmd, args) {
				return nil
			}
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			// Store the app instance in the context for subcommands to use.
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults and OGIMET_* environment variables when empty)")

	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newBatchCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. Cobra has already printed any error it
// returns.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func needsUsage(cmd *cobra.Command, args []string) bool {
	n, err := strconv.Atoi(cmd.Annotations[minArgsAnnotation])
	return err == nil && len(args) < n
}
