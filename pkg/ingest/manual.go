package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/elonfeng/jokemachine/pkg/dedup"
	"github.com/elonfeng/jokemachine/pkg/fetch"
	"github.com/elonfeng/jokemachine/pkg/record"
)

// ManualEntry is a record typed in by an operator.
type ManualEntry struct {
	Title  string
	Body   string
	Author string
	URL    string
}

// AddManual normalizes and stores e with an empty source tag. It returns the
// dedup verdict; for duplicates the returned record is nil.
func AddManual(ctx context.Context, store Store, e ManualEntry) (*record.Stored, dedup.Verdict, error) {
	f := record.Fields{}.
		Set(record.FieldTitle, e.Title).
		Set(record.FieldBody, e.Body).
		Set(record.FieldAuthor, e.Author).
		Set(record.FieldURL, e.URL)
	raw := &fetch.RawFetch{ContentType: "text/plain", RetrievedAt: time.Now().UTC()}

	c, err := record.Normalize(f, raw, "")
	if err != nil {
		return nil, dedup.New, err
	}

	v, err := dedup.Check(ctx, store, c)
	if err != nil {
		return nil, v, &StorageError{Op: "check", URL: c.URL, Err: err}
	}
	if v.Duplicate() {
		zerolog.Ctx(ctx).Info().Str("title", c.Title).Stringer("verdict", v).Msg("not stored")
		return nil, v, nil
	}

	rec, err := store.Insert(ctx, c)
	if err != nil {
		return nil, v, &StorageError{Op: "insert", URL: c.URL, Err: err}
	}
	return rec, v, nil
}
