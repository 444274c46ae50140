// Package scheduler runs the recurring invoice batch on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"time"

	"fakturierung-recurring/recurring"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var ErrAlreadyStarted = errors.New("scheduler already started")

// DueProcessor is the batch the scheduler triggers.
type DueProcessor interface {
	ProcessDue(ctx context.Context, now time.Time) ([]recurring.Result, error)
}

// Scheduler triggers DueProcessor on a standard five field cron spec. A tick
// that fires while the previous run is still going is skipped.
type Scheduler struct {
	processor DueProcessor
	spec      string
	timeout   time.Duration
	log       zerolog.Logger
	now       func() time.Time

	cron *cron.Cron
}

func New(processor DueProcessor, spec string, timeout time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		processor: processor,
		spec:      spec,
		timeout:   timeout,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start registers the job and starts the cron loop in the background.
func (s *Scheduler) Start() error {
	if s.cron != nil {
		return ErrAlreadyStarted
	}

	adapter := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)
	if _, err := c.AddFunc(s.spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return err
	}

	c.Start()
	s.cron = c
	s.log.Info().Str("spec", s.spec).Msg("recurring scheduler started")
	return nil
}

// Stop stops the cron loop and waits for a running batch until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	s.cron = nil

	select {
	case <-done.Done():
		s.log.Info().Msg("recurring scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce processes the current due set once, bounded by the configured
// timeout.
func (s *Scheduler) RunOnce(ctx context.Context) recurring.Summary {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	results, err := s.processor.ProcessDue(ctx, s.now())
	if err != nil {
		s.log.Error().Err(err).Msg("recurring batch failed")
	}
	return recurring.Summarize(results)
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
