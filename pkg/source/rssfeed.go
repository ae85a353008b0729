package source

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/elonfeng/jokemachine/pkg/fetch"
	"github.com/elonfeng/jokemachine/pkg/record"
)

const rssItemsPerPage = 25

var rssDefaultPaths = []string{"feeds/highestvoted", "feeds/latest"}

// RSSFeed reads fixed RSS/RDF/Atom feeds. The feeds carry no author or votes,
// and every item is flagged adult.
type RSSFeed struct {
	cfg Config
}

// NewRSSFeed creates a feed adapter.
func NewRSSFeed(cfg Config, _ Deps) *RSSFeed {
	if len(cfg.Paths) == 0 {
		cfg.Paths = rssDefaultPaths
	}
	if cfg.ItemsPerPage <= 0 {
		cfg.ItemsPerPage = rssItemsPerPage
	}
	return &RSSFeed{cfg: cfg}
}

func (r *RSSFeed) Kind() Kind        { return KindRSSFeed }
func (r *RSSFeed) Tag() string       { return r.cfg.Tag }
func (r *RSSFeed) ItemsPerPage() int { return r.cfg.ItemsPerPage }

// EntryPoints returns every configured feed on the first page. Feeds are not
// paginated.
func (r *RSSFeed) EntryPoints(c Cursor) []string {
	if c.Page > 1 {
		return nil
	}
	urls := make([]string, len(r.cfg.Paths))
	for i, p := range r.cfg.Paths {
		urls[i] = joinURL(r.cfg.BaseURL, p)
	}
	return urls
}

// ParsePage parses one feed document.
func (r *RSSFeed) ParsePage(_ context.Context, raw *fetch.RawFetch) ([]record.Fields, PageMeta, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(raw.Body))
	if err != nil {
		return nil, PageMeta{}, &ParseError{Kind: KindRSSFeed, URL: raw.URL, Err: err}
	}

	var abouts []string
	if feed.FeedType == "rss" && feed.FeedVersion == "1.0" {
		abouts = rdfAbouts(raw.Body, len(feed.Items))
	}

	items := make([]record.Fields, 0, len(feed.Items))
	for i, entry := range feed.Items {
		link := entry.Link
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0]
		}
		if link == "" && strings.HasPrefix(entry.GUID, "http") {
			link = entry.GUID
		}
		if link == "" && abouts != nil {
			link = abouts[i]
		}

		f := record.Fields{}.
			Set(record.FieldTitle, entry.Title).
			Set(record.FieldBody, plainText(entry.Description)).
			Set(record.FieldURL, link).
			Set(record.FieldAuthor, "").
			Set(record.FieldAdult, true).
			Set(record.FieldUps, 0).
			Set(record.FieldDowns, 0)
		if entry.PublishedParsed != nil {
			f.Set(record.FieldCreated, *entry.PublishedParsed)
		} else if entry.UpdatedParsed != nil {
			f.Set(record.FieldCreated, *entry.UpdatedParsed)
		}
		items = append(items, f)
	}

	return items, PageMeta{}, nil
}

// rdfAbouts returns the rdf:about attribute of every RDF item in document
// order, or nil when the count does not match the parsed items.
func rdfAbouts(body []byte, n int) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var abouts []string
	doc.Find("item").Each(func(_ int, s *goquery.Selection) {
		about, _ := s.Attr("rdf:about")
		abouts = append(abouts, strings.TrimSpace(about))
	})
	if len(abouts) != n {
		return nil
	}
	return abouts
}

// plainText strips markup from an HTML fragment.
func plainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.TrimSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.TrimSpace(doc.Text())
}
