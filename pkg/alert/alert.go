// Package alert sends update cycle reports to chat and webhook destinations.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/jokemachine/pkg/ingest"
)

const maxReportTitles = 5

// Report summarizes one update cycle.
type Report struct {
	Source     string    `json:"source"`
	Tag        string    `json:"tag"`
	CycleID    string    `json:"cycle_id"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
	Stored     int       `json:"stored"`
	Pages      int       `json:"pages"`
	Fetched    int       `json:"fetched"`
	Dropped    int       `json:"dropped"`
	Duplicates int       `json:"duplicates"`
	Failed     int       `json:"failed"`
	Seconds    float64   `json:"seconds"`
	Titles     []string  `json:"titles,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewReport builds a Report from a cycle result.
func NewReport(r *ingest.Result) *Report {
	rep := &Report{
		Source:     r.Source,
		Tag:        r.Tag,
		CycleID:    r.CycleID,
		OK:         r.OK(),
		Stored:     len(r.Stored),
		Pages:      r.Pages,
		Fetched:    r.Fetched,
		Dropped:    r.Dropped,
		Duplicates: r.Duplicates,
		Failed:     r.Failed,
		Seconds:    r.Duration.Seconds(),
		FinishedAt: time.Now().UTC(),
	}
	if r.Err != nil {
		rep.Error = r.Err.Error()
	}
	for i := 0; i < len(r.Stored) && i < maxReportTitles; i++ {
		rep.Titles = append(rep.Titles, r.Stored[i].Title)
	}
	return rep
}

// Notifier delivers reports to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, r *Report) error
}

// Manager broadcasts reports to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a report to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, r *Report) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}
