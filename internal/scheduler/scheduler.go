package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/elonfeng/jokemachine/pkg/alert"
	"github.com/elonfeng/jokemachine/pkg/ingest"
)

// ErrBusy is returned by TryRunOnce while an update is in progress.
var ErrBusy = errors.New("update already running")

// Runner runs update cycles.
type Runner interface {
	RunAll(ctx context.Context, specs []ingest.SourceSpec) []*ingest.Result
}

// Scheduler runs the full multi-source update on a schedule. Updates never
// overlap, whether started by the schedule or on demand.
type Scheduler struct {
	runner   Runner
	specs    []ingest.SourceSpec
	alertMgr *alert.Manager
	schedule cron.Schedule
	describe string

	mu sync.Mutex
}

// New creates a new scheduler. every is either a Go duration ("1h") or a
// cron expression ("0 */2 * * *", "@daily").
func New(runner Runner, specs []ingest.SourceSpec, alertMgr *alert.Manager, every string) (*Scheduler, error) {
	sched, describe, err := ParseSchedule(every)
	if err != nil {
		return nil, err
	}
	if alertMgr == nil {
		alertMgr = alert.NewManager(nil)
	}
	return &Scheduler{
		runner:   runner,
		specs:    specs,
		alertMgr: alertMgr,
		schedule: sched,
		describe: describe,
	}, nil
}

// ParseSchedule accepts a duration or a standard cron expression.
func ParseSchedule(every string) (cron.Schedule, string, error) {
	every = strings.TrimSpace(every)
	if every == "" {
		every = "1h"
	}
	if d, err := time.ParseDuration(every); err == nil {
		if d <= 0 {
			return nil, "", fmt.Errorf("schedule interval must be positive, got %s", d)
		}
		return cron.Every(d), "every " + d.String(), nil
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(every)
	if err != nil {
		return nil, "", fmt.Errorf("parse schedule %q: %w", every, err)
	}
	return sched, every, nil
}

// Run updates immediately, then on every tick of the schedule. Blocks until
// ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	log := zerolog.Ctx(ctx)

	log.Info().Msg("initial update")
	s.RunOnce(ctx)

	c := cron.New(
		cron.WithLogger(cronLogger{log: log.With().Str("component", "cron").Logger()}),
		cron.WithChain(cron.Recover(cronLogger{log: *log})),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		if _, err := s.TryRunOnce(ctx); errors.Is(err, ErrBusy) {
			log.Warn().Msg("previous update still running, skipping tick")
		}
	}))
	c.Start()

	log.Info().Str("schedule", s.describe).Time("next", s.schedule.Next(time.Now())).Msg("scheduler running")

	<-ctx.Done()
	<-c.Stop().Done()
	log.Info().Msg("scheduler stopped")
	return ctx.Err()
}

// RunOnce runs one sequential update of every source, waiting for any update
// already in progress.
func (s *Scheduler) RunOnce(ctx context.Context) []*ingest.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(ctx)
}

// TryRunOnce is RunOnce, but returns ErrBusy instead of waiting.
func (s *Scheduler) TryRunOnce(ctx context.Context) ([]*ingest.Result, error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()
	return s.update(ctx), nil
}

func (s *Scheduler) update(ctx context.Context) []*ingest.Result {
	log := zerolog.Ctx(ctx)
	results := s.runner.RunAll(ctx, s.specs)

	total, failed := 0, 0
	for _, r := range results {
		total += len(r.Stored)
		if !r.OK() {
			failed++
		}
		if !s.alertMgr.HasNotifiers() {
			continue
		}
		if err := s.alertMgr.Broadcast(ctx, alert.NewReport(r)); err != nil {
			log.Warn().Err(err).Str("source", r.Source).Msg("cycle report not delivered")
		}
	}
	log.Info().Int("sources", len(results)).Int("failed", failed).Int("stored", total).Msg("update complete")
	return results
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
