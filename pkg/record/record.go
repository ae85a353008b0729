// Package record defines the canonical joke record and the normalizer that
// builds it from an adapter's raw field bag.
package record

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by stores when a lookup has no result.
var ErrNotFound = errors.New("not found")

// Candidate is a normalized record that has not been persisted yet.
type Candidate struct {
	ExternalID string    `json:"external_id" db:"external_id"`
	Source     string    `json:"source" db:"source"`
	Title      string    `json:"title" db:"title"`
	Content    string    `json:"content" db:"content"`
	Author     string    `json:"author" db:"author"`
	URL        string    `json:"url" db:"url"`
	Adult      bool      `json:"adult" db:"adult"`
	Ups        int       `json:"ups" db:"ups"`
	Downs      int       `json:"downs" db:"downs"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`

	ContentType     string    `json:"content_type" db:"content_type"`
	Charset         string    `json:"charset" db:"charset"`
	ContentEncoding string    `json:"content_encoding" db:"content_encoding"`
	LastModified    string    `json:"last_modified" db:"last_modified"`
	DownloadedAt    time.Time `json:"downloaded_at" db:"downloaded_at"`

	TitleHash   string `json:"title_hash" db:"title_hash"`
	ContentHash string `json:"content_hash" db:"content_hash"`
}

// Stored is a Candidate after persistence. Stores hand out copies; callers
// never write them back.
type Stored struct {
	ID       string    `json:"id" db:"id"`
	StoredAt time.Time `json:"stored_at" db:"stored_at"`
	Candidate
}

// MalformedError reports an item that lacks a required field.
type MalformedError struct {
	Field string
	Title string
	URL   string
}

func (e *MalformedError) Error() string {
	hint := e.URL
	if e.Title != "" {
		hint = fmt.Sprintf("%q", e.Title)
	}
	if hint == "" {
		return fmt.Sprintf("malformed record: missing %s", e.Field)
	}
	return fmt.Sprintf("malformed record %s: missing %s", hint, e.Field)
}
