// Package source turns raw pages from the configured joke sites into field
// bags. Each supported wire format has one adapter; adapters are created
// through a static registry keyed by Kind.
package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/elonfeng/jokemachine/pkg/fetch"
	"github.com/elonfeng/jokemachine/pkg/record"
)

// Cursor identifies the page an adapter should build URLs for. Page starts at
// 1 and is advanced by the caller; After carries the previous page's
// continuation token.
type Cursor struct {
	Page  int
	After string
}

// PageMeta is page-level information returned by ParsePage.
type PageMeta struct {
	// After is the continuation token for the next page, if the source uses one.
	After string
	// More reports whether the source has another page.
	More bool
}

// Adapter knows the URLs and the wire format of one source.
type Adapter interface {
	Kind() Kind
	// Tag is the human-readable origin stored with every record.
	Tag() string
	EntryPoints(c Cursor) []string
	ParsePage(ctx context.Context, raw *fetch.RawFetch) ([]record.Fields, PageMeta, error)
	// ItemsPerPage is the nominal yield of one page, used for budget math only.
	ItemsPerPage() int
}

// Fetcher performs one network fetch. Adapters that need extra requests get
// the same paced fetcher the orchestrator uses.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.RawFetch, error)
}

// KnownChecker reports whether a record with this title and author is stored.
type KnownChecker interface {
	ExistsByTitleAuthor(ctx context.Context, title, author string) (bool, error)
}

// Config is the adapter-facing part of a source's configuration.
type Config struct {
	Name         string
	Tag          string
	BaseURL      string
	Paths        []string
	ItemsPerPage int
}

// Deps are the collaborators an adapter may use.
type Deps struct {
	Fetcher Fetcher
	Known   KnownChecker
}

// ParseError reports a page whose shape violates the source's contract.
type ParseError struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s page %s: %v", e.Kind, e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func withQuery(rawURL string, params url.Values) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL + "?" + params.Encode()
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func resolve(pageURL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
