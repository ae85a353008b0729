package politeness

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/elonfeng/jokemachine/pkg/fetch"
)

// Fetcher performs one network fetch.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.RawFetch, error)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy is the pacing contract of one source.
type Policy struct {
	Source      string
	MinInterval time.Duration
	// MaxJitter adds a uniform random delay in [0, MaxJitter) to every
	// non-zero wait. Zero gives a fixed interval.
	MaxJitter time.Duration
}

// Gate wraps a Fetcher so that every request for one source first waits for
// the scheduler and then records the access.
type Gate struct {
	sched   *Scheduler
	next    Fetcher
	policy  Policy
	sleep   Sleeper
	jitter  func(time.Duration) time.Duration
	fetches int
}

// NewGate creates a Gate. A nil sleep uses Sleep.
func NewGate(sched *Scheduler, next Fetcher, policy Policy, sleep Sleeper) *Gate {
	if sleep == nil {
		sleep = Sleep
	}
	return &Gate{
		sched:  sched,
		next:   next,
		policy: policy,
		sleep:  sleep,
		jitter: func(max time.Duration) time.Duration { return rand.N(max) },
	}
}

// Fetches returns the number of network requests issued through the gate.
func (g *Gate) Fetches() int { return g.fetches }

// Wait blocks until the source may be fetched again.
func (g *Gate) Wait(ctx context.Context) error {
	wait, err := g.sched.TimeUntilNextAllowed(ctx, g.policy.Source, g.policy.MinInterval)
	if err != nil {
		return err
	}
	if wait > 0 && g.policy.MaxJitter > 0 {
		wait += g.jitter(g.policy.MaxJitter)
	}
	if wait <= 0 {
		return nil
	}
	zerolog.Ctx(ctx).Info().
		Str("source", g.policy.Source).
		Dur("wait", wait).
		Msgf("mandatory refresh delay, next request %s", humanize.Time(time.Now().Add(wait)))
	return g.sleep(ctx, wait)
}

// Fetch waits for the source's interval, fetches url and records the access.
// The access is recorded whenever the request reached the remote server.
func (g *Gate) Fetch(ctx context.Context, url string) (*fetch.RawFetch, error) {
	if err := g.Wait(ctx); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().Str("source", g.policy.Source).Str("url", url).Msg("downloading")
	raw, err := g.next.Fetch(ctx, url)

	var fe *fetch.Error
	if err == nil || (errors.As(err, &fe) && fe.Reached()) {
		g.fetches++
		if rerr := g.sched.RecordAccess(ctx, g.policy.Source); rerr != nil {
			zerolog.Ctx(ctx).Warn().Err(rerr).Str("source", g.policy.Source).Msg("failed to record access")
		}
	}
	return raw, err
}
