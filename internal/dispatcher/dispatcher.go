// Package dispatcher drives station runs for a whole station list.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/JakeFAU/ogimet-history/internal/crawler"
	"github.com/JakeFAU/ogimet-history/internal/stations"
)

// DefaultMaxConsecutiveAborts trips the breaker when Config leaves it unset.
const DefaultMaxConsecutiveAborts = 3

// ErrNetworkDown is returned once consecutive fetch exhaustions open the
// circuit breaker.
var ErrNetworkDown = errors.New("network down: too many consecutive fetch failures")

// StationRunner executes a single StationRun. *crawler.Runner satisfies it.
type StationRunner interface {
	Run(ctx context.Context, run crawler.StationRun) (crawler.Report, error)
}

// Config controls batch behavior.
type Config struct {
	OutputRoot string
	// SplitMonths runs every month as its own StationRun.
	SplitMonths          bool
	MaxConsecutiveAborts int
}

// Window is the inclusive month range requested for every station.
type Window struct {
	Start crawler.MonthKey
	End   crawler.MonthKey
}

// Summary tallies a batch.
type Summary struct {
	Completed  int
	Skipped    int
	OutOfRange int
	Incomplete int
	Aborted    int
	Reports    []crawler.Report
}

// Dispatcher runs stations one after another.
type Dispatcher struct {
	runner  StationRunner
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(runner StationRunner, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.MaxConsecutiveAborts <= 0 {
		cfg.MaxConsecutiveAborts = DefaultMaxConsecutiveAborts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := uint32(cfg.MaxConsecutiveAborts) // #nosec G115 -- positive, checked above
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ogimet",
		Timeout: time.Hour,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= limit
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &Dispatcher{
		runner:  runner,
		cfg:     cfg,
		breaker: breaker,
		logger:  logger,
	}
}

// Run processes every station over window. It stops early on context
// cancellation or ErrNetworkDown and returns the summary so far.
func (d *Dispatcher) Run(ctx context.Context, list []stations.Station, window Window) (Summary, error) {
	var sum Summary
	if window.End.Before(window.Start) {
		return sum, fmt.Errorf("batch window %s..%s is inverted", window.Start, window.End)
	}

	for _, st := range list {
		start, end, ok := Clamp(window, st)
		if !ok {
			d.logger.Info("station outside window",
				zap.String("station", st.ID),
				zap.Time("established", st.Established),
				zap.Time("closed", st.Closed),
			)
			sum.OutOfRange++
			continue
		}
		for _, run := range d.plan(st.ID, start, end) {
			if err := ctx.Err(); err != nil {
				return sum, fmt.Errorf("batch canceled: %w", err)
			}
			if err := d.runOne(ctx, run, &sum); err != nil {
				return sum, err
			}
		}
	}

	d.logger.Info("batch finished",
		zap.Int("completed", sum.Completed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("out_of_range", sum.OutOfRange),
		zap.Int("incomplete", sum.Incomplete),
		zap.Int("aborted", sum.Aborted),
	)
	return sum, nil
}

func (d *Dispatcher) plan(stationID string, start, end crawler.MonthKey) []crawler.StationRun {
	if !d.cfg.SplitMonths {
		return []crawler.StationRun{{StationID: stationID, Start: start, End: end, OutputRoot: d.cfg.OutputRoot}}
	}
	months := crawler.MonthRange(start, end)
	runs := make([]crawler.StationRun, 0, len(months))
	for _, m := range months {
		runs = append(runs, crawler.StationRun{StationID: stationID, Start: m, End: m, OutputRoot: d.cfg.OutputRoot})
	}
	return runs
}

// runOne executes run through the breaker. A non-nil return stops the batch.
func (d *Dispatcher) runOne(ctx context.Context, run crawler.StationRun, sum *Summary) error {
	var (
		report crawler.Report
		runErr error
	)
	_, cbErr := d.breaker.Execute(func() (interface{}, error) {
		report, runErr = d.runner.Run(ctx, run)
		if errors.Is(runErr, crawler.ErrFetchExhausted) {
			return nil, runErr
		}
		return nil, nil
	})
	if errors.Is(cbErr, gobreaker.ErrOpenState) || errors.Is(cbErr, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrNetworkDown, cbErr)
	}

	logger := d.logger.With(
		zap.String("station", run.StationID),
		zap.Stringer("start", run.Start),
		zap.Stringer("end", run.End),
	)
	switch {
	case runErr == nil:
		sum.Completed++
		sum.Reports = append(sum.Reports, report)
	case errors.Is(runErr, crawler.ErrDestinationExists):
		logger.Info("already downloaded, skipping")
		sum.Skipped++
	case errors.Is(runErr, crawler.ErrRunIncomplete):
		logger.Warn("run incomplete", zap.Error(runErr))
		sum.Incomplete++
		sum.Reports = append(sum.Reports, report)
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		sum.Aborted++
		return fmt.Errorf("batch canceled: %w", runErr)
	default:
		logger.Error("run aborted", zap.Error(runErr))
		sum.Aborted++
		sum.Reports = append(sum.Reports, report)
	}

	if d.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("%w: last error: %w", ErrNetworkDown, runErr)
	}
	return nil
}

// Clamp narrows window to the months a station was operating. ok is false
// when the station was closed before the window or opened after it.
func Clamp(window Window, st stations.Station) (start, end crawler.MonthKey, ok bool) {
	start, end = window.Start, window.End
	if !st.Established.IsZero() {
		opened := crawler.MonthKey{Year: st.Established.Year(), Month: st.Established.Month()}
		if start.Before(opened) {
			start = opened
		}
	}
	if !st.Closed.IsZero() {
		closed := crawler.MonthKey{Year: st.Closed.Year(), Month: st.Closed.Month()}
		if closed.Before(end) {
			end = closed
		}
	}
	return start, end, !end.Before(start)
}
