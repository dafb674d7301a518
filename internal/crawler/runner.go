package crawler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/ogimet-history/internal/metrics"
)

// Runner downloads one StationRun month by month and commits the result
// all-or-nothing: a failed run leaves no destination behind.
type Runner struct {
	links   LinkBuilder
	fetcher Fetcher
	sinks   SinkFactory
	ids     IDGenerator
	clock   Clock
	logger  *zap.Logger
}

// NewRunner wires a Runner. ids and clock may be nil.
func NewRunner(
	links LinkBuilder,
	fetcher Fetcher,
	sinks SinkFactory,
	ids IDGenerator,
	clock Clock,
	logger *zap.Logger,
) *Runner {
	if ids == nil {
		ids = uuidGenerator{}
	}
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		links:   links,
		fetcher: fetcher,
		sinks:   sinks,
		ids:     ids,
		clock:   clock,
		logger:  logger,
	}
}

// Destination returns the directory a run writes into.
func Destination(run StationRun) string {
	return filepath.Join(run.OutputRoot, run.StationID, run.DirName())
}

// Run executes run. It returns ErrDestinationExists without touching the
// filesystem when the destination is already present, ErrRunIncomplete when
// some months could not be processed, and the abort cause (for example
// ErrFetchExhausted) when the run stopped early. Only a nil error leaves
// the destination on disk.
func (r *Runner) Run(ctx context.Context, run StationRun) (Report, error) {
	if err := run.Validate(); err != nil {
		return Report{}, fmt.Errorf("invalid run: %w", err)
	}

	runID, err := r.ids.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("generate run id: %w", err)
	}
	report := Report{
		RunID:         runID,
		StationID:     run.StationID,
		Destination:   Destination(run),
		State:         RunStateFresh,
		StartedAt:     r.clock.Now(),
		LinesPerField: make(map[string]int),
	}
	logger := r.logger.With(
		zap.String("run_id", runID),
		zap.String("station", run.StationID),
		zap.String("destination", report.Destination),
	)

	if err := claimDestination(report.Destination); err != nil {
		return report, err
	}
	sink, err := r.sinks(report.Destination)
	if err != nil {
		return r.abort(logger, report, fmt.Errorf("open series sink: %w", err))
	}

	report.State = RunStateRunning
	logger.Info("run started", zap.Stringer("start", run.Start), zap.Stringer("end", run.End))

	months := MonthRange(run.Start, run.End)
	for _, month := range months {
		if err := ctx.Err(); err != nil {
			return r.abort(logger, report, fmt.Errorf("run canceled: %w", err))
		}
		noData, err := r.processMonth(ctx, logger, run.StationID, month, sink, &report)
		switch {
		case err == nil && noData:
			metrics.ObserveMonth(metrics.MonthNoData)
			report.MonthsNoData++
		case err == nil:
			metrics.ObserveMonth(metrics.MonthWritten)
			report.MonthsOK++
		case isMonthRecoverable(err):
			metrics.ObserveMonth(metrics.MonthFailed)
			logger.Warn("month failed, continuing", zap.Stringer("month", month), zap.Error(err))
			report.FailedMonths = append(report.FailedMonths, month)
		default:
			metrics.ObserveMonth(metrics.MonthAborted)
			return r.abort(logger, report, &MonthError{Month: month, Err: err})
		}
	}

	if len(report.FailedMonths) > 0 {
		report.State = RunStateFailedIncomplete
		r.finish(logger, &report)
		return report, fmt.Errorf("%w: %d of %d months failed", ErrRunIncomplete, len(report.FailedMonths), len(months))
	}

	report.State = RunStateSucceeded
	report.FinishedAt = r.clock.Now()
	metrics.ObserveRun(string(report.State))
	logger.Info("run succeeded",
		zap.Int("months_written", report.MonthsOK),
		zap.Int("months_without_data", report.MonthsNoData),
		zap.Int("series", len(report.LinesPerField)),
	)
	return report, nil
}

// processMonth runs the pipeline for one month. noData is true when the
// month legitimately has nothing to write.
func (r *Runner) processMonth(
	ctx context.Context,
	logger *zap.Logger,
	stationID string,
	month MonthKey,
	sink SeriesSink,
	report *Report,
) (bool, error) {
	link := r.links.MonthURL(stationID, month)
	logger.Info("requesting month", zap.Stringer("month", month), zap.String("url", link))

	doc, err := r.fetcher.Fetch(ctx, link)
	if err != nil {
		return false, err
	}

	table, err := LocateTable(doc)
	if errors.Is(err, ErrNoTableFound) {
		logger.Info("no observations for month", zap.Stringer("month", month))
		return true, nil
	}
	if err != nil {
		return false, err
	}

	schema := ResolveSchema(table)
	if !schema.Usable() {
		logger.Info("too few recognized columns, skipping month",
			zap.Stringer("month", month),
			zap.Strings("columns", schema.Names()),
		)
		return true, nil
	}
	if schema.Len() > MaxColumns {
		return false, fmt.Errorf("%w: %d recognized columns", ErrMalformedDocument, schema.Len())
	}

	records, err := ExtractRecords(table, schema, month)
	if err != nil {
		var shapeErr *RowShapeError
		if errors.As(err, &shapeErr) {
			logger.Warn("row does not match header",
				zap.Stringer("month", month),
				zap.Int("row", shapeErr.Row),
				zap.Strings("cells", shapeErr.Cells),
				zap.Strings("columns", schema.Names()),
			)
		}
		return false, err
	}

	for _, rec := range records {
		for _, col := range schema.Columns {
			if col.Name == DateColumn {
				continue
			}
			if err := sink.Write(col.Name, rec.Timestamp, rec.Fields[col.Name]); err != nil {
				return false, fmt.Errorf("write %s %s: %w", col.Name, rec.Timestamp, err)
			}
			report.LinesPerField[col.Name]++
		}
	}
	for _, col := range schema.Columns {
		if col.Name != DateColumn {
			metrics.AddSeriesLines(col.Name, len(records))
		}
	}
	logger.Debug("month written", zap.Stringer("month", month), zap.Int("days", len(records)))
	return false, nil
}

func (r *Runner) abort(logger *zap.Logger, report Report, cause error) (Report, error) {
	report.State = RunStateFailedAborted
	logger.Error("run aborted", zap.Error(cause))
	r.finish(logger, &report)
	return report, cause
}

// finish removes the destination of a failed run and records its state.
func (r *Runner) finish(logger *zap.Logger, report *Report) {
	if err := os.RemoveAll(report.Destination); err != nil {
		logger.Error("failed to remove destination", zap.Error(err))
	}
	report.FinishedAt = r.clock.Now()
	metrics.ObserveRun(string(report.State))
	logger.Warn("run failed, destination removed",
		zap.String("state", string(report.State)),
		zap.Int("failed_months", len(report.FailedMonths)),
	)
}

// claimDestination creates dest, refusing to reuse an existing one. The
// check is not a lock; concurrent runs on one destination are unsupported.
func claimDestination(dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("%w: %s", ErrDestinationExists, dest)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat destination %s: %w", dest, err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("create station dir for %s: %w", dest, err)
	}
	if err := os.Mkdir(dest, 0o750); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrDestinationExists, dest)
		}
		return fmt.Errorf("create destination %s: %w", dest, err)
	}
	return nil
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
