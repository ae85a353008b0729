package source

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/elonfeng/jokemachine/pkg/fetch"
	"github.com/elonfeng/jokemachine/pkg/record"
)

const (
	htmlDefaultPath  = "jokes/latest/{page}"
	htmlItemsPerPage = 24
	pagePlaceholder  = "{page}"

	listingSelector = "div.medialisting > ul"
	titleSelector   = "li.details > p > a"
	authorSelector  = "li.medialistingstats > p > a"
	contentSelector = "div#mediaContentSection"
)

// HTMLSite scrapes a paginated listing page and fetches every unknown entry's
// own page for its body text.
type HTMLSite struct {
	cfg     Config
	fetcher Fetcher
	known   KnownChecker
}

// NewHTMLSite creates an HTML listing adapter.
func NewHTMLSite(cfg Config, deps Deps) *HTMLSite {
	if len(cfg.Paths) == 0 {
		cfg.Paths = []string{htmlDefaultPath}
	}
	if cfg.ItemsPerPage <= 0 {
		cfg.ItemsPerPage = htmlItemsPerPage
	}
	return &HTMLSite{cfg: cfg, fetcher: deps.Fetcher, known: deps.Known}
}

func (h *HTMLSite) Kind() Kind        { return KindHTMLSite }
func (h *HTMLSite) Tag() string       { return h.cfg.Tag }
func (h *HTMLSite) ItemsPerPage() int { return h.cfg.ItemsPerPage }

// EntryPoints returns the listing URL for page c.Page. Paths without a
// {page} placeholder get the page number appended.
func (h *HTMLSite) EntryPoints(c Cursor) []string {
	page := strconv.Itoa(max(c.Page, 1))
	path := h.cfg.Paths[0]
	if strings.Contains(path, pagePlaceholder) {
		path = strings.ReplaceAll(path, pagePlaceholder, page)
	} else {
		path += page
	}
	return []string{joinURL(h.cfg.BaseURL, path)}
}

type listingEntry struct {
	title  string
	link   string
	author string
}

// ParsePage extracts the listing entries and fetches the body of each entry
// whose title and author are not stored yet.
func (h *HTMLSite) ParsePage(ctx context.Context, raw *fetch.RawFetch) ([]record.Fields, PageMeta, error) {
	log := zerolog.Ctx(ctx)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw.Body))
	if err != nil {
		return nil, PageMeta{}, &ParseError{Kind: KindHTMLSite, URL: raw.URL, Err: err}
	}

	var entries []listingEntry
	doc.Find(listingSelector).Each(func(_ int, s *goquery.Selection) {
		var e listingEntry
		s.Find(titleSelector).Each(func(_ int, a *goquery.Selection) {
			e.title = strings.TrimSpace(a.Text())
			e.link, _ = a.Attr("href")
		})
		s.Find(authorSelector).Each(func(_ int, a *goquery.Selection) {
			e.author = strings.TrimSpace(a.Text())
		})
		entries = append(entries, e)
	})

	items := make([]record.Fields, 0, len(entries))
	for _, e := range entries {
		f := record.Fields{}.
			Set(record.FieldTitle, e.title).
			Set(record.FieldAuthor, e.author).
			Set(record.FieldAdult, false).
			Set(record.FieldUps, 0).
			Set(record.FieldDowns, 0)
		if e.link != "" {
			f.Set(record.FieldURL, resolve(raw.URL, e.link))
		}

		// Entries without a title or link cannot be completed; pass them on
		// bodiless so normalization reports them.
		if e.title == "" || e.link == "" {
			items = append(items, f)
			continue
		}

		if h.known != nil {
			exists, err := h.known.ExistsByTitleAuthor(ctx, e.title, e.author)
			if err != nil {
				return nil, PageMeta{}, fmt.Errorf("check known %q: %w", e.title, err)
			}
			if exists {
				log.Debug().Str("title", e.title).Str("author", e.author).Msg("skipping, already stored")
				continue
			}
		}

		body, err := h.fetchBody(ctx, resolve(raw.URL, e.link))
		if err != nil {
			return nil, PageMeta{}, err
		}
		f.Set(record.FieldBody, body)
		items = append(items, f)
	}

	return items, PageMeta{More: len(entries) > 0}, nil
}

func (h *HTMLSite) fetchBody(ctx context.Context, itemURL string) (string, error) {
	raw, err := h.fetcher.Fetch(ctx, itemURL)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw.Body))
	if err != nil {
		return "", &ParseError{Kind: KindHTMLSite, URL: itemURL, Err: err}
	}
	return strings.TrimSpace(doc.Find(contentSelector).Last().Text()), nil
}
