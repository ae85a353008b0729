// Package dedup decides whether a candidate record is already known.
package dedup

import (
	"context"
	"fmt"

	"github.com/elonfeng/jokemachine/pkg/record"
)

// Lookup is the subset of the store the engine needs.
type Lookup interface {
	FindByTitleHash(ctx context.Context, hash string) ([]record.Stored, error)
	FindByContentHash(ctx context.Context, hash string) ([]record.Stored, error)
}

// Verdict is the outcome of checking one candidate.
type Verdict int

const (
	// New means neither hash is known.
	New Verdict = iota
	// Variant means the title is known but the content is not.
	Variant
	// SameContent means the content is known under a different title.
	SameContent
	// SameJoke means both title and content are known.
	SameJoke
)

// Duplicate reports whether the verdict discards the candidate.
func (v Verdict) Duplicate() bool {
	return v == SameContent || v == SameJoke
}

func (v Verdict) String() string {
	switch v {
	case New:
		return "new"
	case Variant:
		return "titled variant"
	case SameContent:
		return "same content under a different title"
	case SameJoke:
		return "same title and content"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

func classify(titleKnown, contentKnown bool) Verdict {
	switch {
	case !titleKnown && !contentKnown:
		return New
	case !titleKnown && contentKnown:
		return SameContent
	case titleKnown && !contentKnown:
		return Variant
	default:
		return SameJoke
	}
}

// Check classifies c against the store.
func Check(ctx context.Context, l Lookup, c *record.Candidate) (Verdict, error) {
	byTitle, err := l.FindByTitleHash(ctx, c.TitleHash)
	if err != nil {
		return New, fmt.Errorf("find by title hash: %w", err)
	}
	byContent, err := l.FindByContentHash(ctx, c.ContentHash)
	if err != nil {
		return New, fmt.Errorf("find by content hash: %w", err)
	}
	return classify(len(byTitle) > 0, len(byContent) > 0), nil
}

// IsDuplicate reports whether c already exists in the store.
func IsDuplicate(ctx context.Context, l Lookup, c *record.Candidate) (bool, error) {
	v, err := Check(ctx, l, c)
	if err != nil {
		return false, err
	}
	return v.Duplicate(), nil
}

// Batch applies the same table incrementally: candidates admitted earlier in
// the batch count as known for later ones.
type Batch struct {
	lookup   Lookup
	titles   map[string]bool
	contents map[string]bool
}

// NewBatch creates an empty batch backed by l.
func NewBatch(l Lookup) *Batch {
	return &Batch{
		lookup:   l,
		titles:   make(map[string]bool),
		contents: make(map[string]bool),
	}
}

// Admit classifies c against the store and the batch. Candidates that are not
// duplicates are remembered.
func (b *Batch) Admit(ctx context.Context, c *record.Candidate) (Verdict, error) {
	v, err := Check(ctx, b.lookup, c)
	if err != nil {
		return v, err
	}
	v = classify(v == Variant || v == SameJoke || b.titles[c.TitleHash],
		v.Duplicate() || b.contents[c.ContentHash])
	if !v.Duplicate() {
		b.titles[c.TitleHash] = true
		b.contents[c.ContentHash] = true
	}
	return v, nil
}
