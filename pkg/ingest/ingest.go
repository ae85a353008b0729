// Package ingest drives update cycles: paced fetching, parsing, normalizing,
// deduplicating and persisting the records of one source at a time.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/elonfeng/jokemachine/pkg/dedup"
	"github.com/elonfeng/jokemachine/pkg/politeness"
	"github.com/elonfeng/jokemachine/pkg/record"
	"github.com/elonfeng/jokemachine/pkg/source"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	dedup.Lookup
	source.KnownChecker
	politeness.StateStore
	Insert(ctx context.Context, c *record.Candidate) (*record.Stored, error)
}

// StorageError reports a failed store operation for one record.
type StorageError struct {
	Op  string
	URL string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s record %s: %v", e.Op, e.URL, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SourceSpec describes one configured source.
type SourceSpec struct {
	Name    string
	Kind    source.Kind
	Adapter source.Config
	// MinInterval is the source's mandatory delay between requests.
	MinInterval time.Duration
	// MaxJitter adds a random delay in [0, MaxJitter) to every wait.
	MaxJitter time.Duration
	// Amount is the number of new records wanted, counted in nominal page
	// yields.
	Amount int
}

// Result is the outcome of one cycle.
type Result struct {
	Source     string
	Tag        string
	CycleID    string
	Stored     []record.Stored
	Pages      int
	Fetched    int
	Dropped    int
	Duplicates int
	Failed     int
	Duration   time.Duration
	Err        error
}

// OK reports whether the cycle ran to completion.
func (r *Result) OK() bool { return r.Err == nil }

// Options configures an Orchestrator.
type Options struct {
	// Sleep replaces politeness.Sleep.
	Sleep politeness.Sleeper
	// Now replaces time.Now for access bookkeeping.
	Now func() time.Time
}

// Orchestrator runs update cycles against a store.
type Orchestrator struct {
	store   Store
	fetcher politeness.Fetcher
	sched   *politeness.Scheduler
	sleep   politeness.Sleeper
}

// New creates an Orchestrator that fetches through fetcher.
func New(store Store, fetcher politeness.Fetcher, opts Options) *Orchestrator {
	return &Orchestrator{
		store:   store,
		fetcher: fetcher,
		sched:   politeness.NewScheduler(store, opts.Now),
		sleep:   opts.Sleep,
	}
}

// Run performs one update cycle for spec. A fetch or parse failure aborts the
// cycle and nothing from it is persisted; a failed insert only loses that
// record.
func (o *Orchestrator) Run(ctx context.Context, spec SourceSpec) *Result {
	started := time.Now()
	res := &Result{Source: spec.Name, CycleID: xid.New().String()}

	log := zerolog.Ctx(ctx).With().Str("source", spec.Name).Str("cycle_id", res.CycleID).Logger()
	ctx = log.WithContext(ctx)

	gate := politeness.NewGate(o.sched, o.fetcher, politeness.Policy{
		Source:      spec.Name,
		MinInterval: spec.MinInterval,
		MaxJitter:   spec.MaxJitter,
	}, o.sleep)

	adapter, err := source.New(spec.Kind, spec.Adapter, source.Deps{Fetcher: gate, Known: o.store})
	if err != nil {
		res.Err = err
		log.Error().Err(err).Msg("cannot build source adapter")
		return res
	}
	res.Tag = adapter.Tag()
	if res.Tag == "" {
		res.Tag = spec.Name
	}

	log.Info().Int("amount", spec.Amount).Dur("min_interval", spec.MinInterval).Msg("update started")

	pending, err := o.collect(ctx, adapter, gate, spec.Amount, res)
	res.Fetched = gate.Fetches()
	if err != nil {
		res.Err = err
		res.Duration = time.Since(started)
		log.Error().Err(err).Int("pages", res.Pages).Int("fetched", res.Fetched).Msg("update aborted")
		return res
	}

	o.persist(ctx, pending, res)
	res.Duration = time.Since(started)

	log.Info().
		Int("stored", len(res.Stored)).
		Int("pages", res.Pages).
		Int("fetched", res.Fetched).
		Int("dropped", res.Dropped).
		Int("duplicates", res.Duplicates).
		Int("failed", res.Failed).
		Dur("took", res.Duration).
		Msg("update finished")
	return res
}

// collect pages through the source until the amount budget is spent or the
// source runs dry. The budget shrinks by the nominal page yield, not by the
// number of records that survive.
func (o *Orchestrator) collect(ctx context.Context, adapter source.Adapter, gate *politeness.Gate, amount int, res *Result) ([]*record.Candidate, error) {
	log := zerolog.Ctx(ctx)
	batch := dedup.NewBatch(o.store)
	var pending []*record.Candidate

	budget := amount
	cursor := source.Cursor{Page: 1}
	for budget > 0 {
		urls := adapter.EntryPoints(cursor)
		if len(urls) == 0 {
			break
		}

		var meta source.PageMeta
		for _, u := range urls {
			raw, err := gate.Fetch(ctx, u)
			if err != nil {
				return nil, err
			}

			items, m, err := adapter.ParsePage(ctx, raw)
			if err != nil {
				return nil, err
			}
			meta = m

			for _, f := range items {
				c, err := record.Normalize(f, raw, res.Tag)
				var malformed *record.MalformedError
				if errors.As(err, &malformed) {
					res.Dropped++
					log.Warn().Str("title", malformed.Title).Str("url", malformed.URL).Str("missing", malformed.Field).Msg("dropping malformed record")
					continue
				}
				if err != nil {
					return nil, err
				}

				v, err := batch.Admit(ctx, c)
				if err != nil {
					return nil, &StorageError{Op: "check", URL: c.URL, Err: err}
				}
				if v.Duplicate() {
					res.Duplicates++
					log.Debug().Str("title", c.Title).Stringer("verdict", v).Msg("skipping duplicate")
					continue
				}
				pending = append(pending, c)
			}
		}

		res.Pages++
		budget -= adapter.ItemsPerPage()
		if !meta.More {
			break
		}
		cursor = source.Cursor{Page: cursor.Page + 1, After: meta.After}
	}
	return pending, nil
}

// persist re-checks every pending record against the live store and inserts
// the survivors.
func (o *Orchestrator) persist(ctx context.Context, pending []*record.Candidate, res *Result) {
	log := zerolog.Ctx(ctx)
	final := dedup.NewBatch(o.store)

	for _, c := range pending {
		v, err := final.Admit(ctx, c)
		if err != nil {
			res.Failed++
			log.Error().Err(&StorageError{Op: "check", URL: c.URL, Err: err}).Str("title", c.Title).Msg("record not stored")
			continue
		}
		if v.Duplicate() {
			res.Duplicates++
			log.Debug().Str("title", c.Title).Stringer("verdict", v).Msg("skipping duplicate")
			continue
		}

		rec, err := o.store.Insert(ctx, c)
		if err != nil {
			res.Failed++
			log.Error().Err(&StorageError{Op: "insert", URL: c.URL, Err: err}).Str("title", c.Title).Msg("record not stored")
			continue
		}
		res.Stored = append(res.Stored, *rec)
	}
}

// RunAll runs one cycle per spec, in order. A failed cycle does not stop the
// remaining ones.
func (o *Orchestrator) RunAll(ctx context.Context, specs []SourceSpec) []*Result {
	results := make([]*Result, 0, len(specs))
	for _, spec := range specs {
		if ctx.Err() != nil {
			break
		}
		results = append(results, o.Run(ctx, spec))
	}
	return results
}
