package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/elonfeng/jokemachine/pkg/fetch"
	"github.com/elonfeng/jokemachine/pkg/record"
)

const (
	redditDefaultPath  = "r/Jokes/.json"
	redditItemsPerPage = 25
	redditLinkKind     = "t3"
)

// JSONAPI reads a Reddit-style listing: {"data": {"children": [{"kind": "t3",
// "data": {...}}]}}. Every child must be a self post; anything else fails the
// whole page.
type JSONAPI struct {
	cfg Config
}

// NewJSONAPI creates a JSON listing adapter.
func NewJSONAPI(cfg Config, _ Deps) *JSONAPI {
	if len(cfg.Paths) == 0 {
		cfg.Paths = []string{redditDefaultPath}
	}
	if cfg.ItemsPerPage <= 0 {
		cfg.ItemsPerPage = redditItemsPerPage
	}
	return &JSONAPI{cfg: cfg}
}

func (j *JSONAPI) Kind() Kind        { return KindJSONAPI }
func (j *JSONAPI) Tag() string       { return j.cfg.Tag }
func (j *JSONAPI) ItemsPerPage() int { return j.cfg.ItemsPerPage }

// EntryPoints returns the listing URL, continued after c.After when set.
func (j *JSONAPI) EntryPoints(c Cursor) []string {
	u := joinURL(j.cfg.BaseURL, j.cfg.Paths[0])
	if c.After == "" {
		return []string{u}
	}
	return []string{withQuery(u, url.Values{
		"count": {strconv.Itoa(j.cfg.ItemsPerPage)},
		"after": {c.After},
	})}
}

type listing struct {
	Data *struct {
		Children *[]listingChild `json:"children"`
	} `json:"data"`
}

type listingChild struct {
	Kind string       `json:"kind"`
	Data *listingPost `json:"data"`
}

type listingPost struct {
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	Selftext   string   `json:"selftext"`
	Author     string   `json:"author"`
	URL        string   `json:"url"`
	Permalink  string   `json:"permalink"`
	IsSelf     *bool    `json:"is_self"`
	Over18     bool     `json:"over_18"`
	Ups        int      `json:"ups"`
	Downs      int      `json:"downs"`
	CreatedUTC *float64 `json:"created_utc"`
}

// ParsePage decodes one listing page.
func (j *JSONAPI) ParsePage(_ context.Context, raw *fetch.RawFetch) ([]record.Fields, PageMeta, error) {
	fail := func(err error) ([]record.Fields, PageMeta, error) {
		return nil, PageMeta{}, &ParseError{Kind: KindJSONAPI, URL: raw.URL, Err: err}
	}

	var l listing
	dec := json.NewDecoder(bytes.NewReader(raw.Body))
	if err := dec.Decode(&l); err != nil {
		return fail(fmt.Errorf("decode listing: %w", err))
	}
	if l.Data == nil || l.Data.Children == nil {
		return fail(errors.New("listing has no data.children"))
	}

	children := *l.Data.Children
	items := make([]record.Fields, 0, len(children))
	for i, child := range children {
		if child.Kind != redditLinkKind {
			return fail(fmt.Errorf("child %d has kind %q, want %q", i, child.Kind, redditLinkKind))
		}
		post := child.Data
		if post == nil {
			return fail(fmt.Errorf("child %d has no data", i))
		}
		if post.IsSelf == nil || !*post.IsSelf {
			return fail(fmt.Errorf("child %d (%s) is not a self post", i, post.Name))
		}

		link := post.URL
		if link == "" && post.Permalink != "" {
			link = resolve(j.cfg.BaseURL, post.Permalink)
		}

		f := record.Fields{}.
			Set(record.FieldExternalID, post.Name).
			Set(record.FieldTitle, post.Title).
			Set(record.FieldBody, post.Selftext).
			Set(record.FieldAuthor, post.Author).
			Set(record.FieldURL, link).
			Set(record.FieldAdult, post.Over18).
			Set(record.FieldUps, post.Ups).
			Set(record.FieldDowns, post.Downs)
		if post.CreatedUTC != nil {
			f.Set(record.FieldCreated, *post.CreatedUTC)
		}
		items = append(items, f)
	}

	meta := PageMeta{}
	if n := len(children); n > 0 {
		meta.After = children[n-1].Data.Name
		meta.More = meta.After != ""
	}
	return items, meta, nil
}
