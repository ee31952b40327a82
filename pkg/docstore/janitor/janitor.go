// Package janitor deletes expired documents on a cron schedule.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tendant/simple-document/pkg/docstore"
)

// Parser accepts standard 5-field expressions and descriptors like @hourly
// or "@every 30m".
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a cron expression
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := Parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// Cleaner is implemented by *docstore.Store
type Cleaner interface {
	Cleanup(ctx context.Context) (*docstore.CleanupResult, error)
	Container() string
}

// Janitor runs Cleanup on every store at each scheduled time. Runs never
// overlap.
type Janitor struct {
	cron     *cron.Cron
	schedule cron.Schedule
	stores   []Cleaner
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Janitor
type Option func(*Janitor)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(j *Janitor) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// WithTimeout bounds a single run
func WithTimeout(d time.Duration) Option {
	return func(j *Janitor) { j.timeout = d }
}

// New creates a stopped Janitor for schedule
func New(schedule string, stores []Cleaner, opts ...Option) (*Janitor, error) {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	if len(stores) == 0 {
		return nil, errors.New("janitor: no stores to clean")
	}
	j := &Janitor{
		schedule: sched,
		stores:   stores,
		timeout:  10 * time.Minute,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}

	logger := cronLogger{j.logger}
	j.cron = cron.New(
		cron.WithParser(Parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	j.cron.Schedule(sched, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		_, _ = j.RunOnce(ctx)
	}))
	return j, nil
}

// RunOnce cleans every store and returns the total deleted. It continues
// past failing stores and joins their errors.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	total := 0
	var errs []error
	for _, s := range j.stores {
		res, err := s.Cleanup(ctx)
		if res != nil {
			total += res.Deleted
		}
		if err != nil {
			j.logger.Error("cleanup failed", "container", s.Container(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Container(), err))
		}
	}
	j.logger.Debug("cleanup run finished", "deleted", total, "failed_stores", len(errs))
	return total, errors.Join(errs...)
}

// Next returns the next scheduled run after t
func (j *Janitor) Next(t time.Time) time.Time {
	return j.schedule.Next(t)
}

// Start runs the scheduler in its own goroutine
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info("cleanup scheduled", "next", j.Next(time.Now()))
}

// Stop stops the scheduler and waits for a running cleanup, or for ctx
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		j.logger.Warn("cleanup still running at shutdown")
	}
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
