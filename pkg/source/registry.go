package source

import (
	"errors"
	"fmt"
	"sort"
)

// Kind selects an adapter implementation.
type Kind string

const (
	KindHTMLSite Kind = "htmlsite"
	KindJSONAPI  Kind = "jsonapi"
	KindRSSFeed  Kind = "rssfeed"
)

// Constructor builds an adapter from validated config.
type Constructor func(cfg Config, deps Deps) Adapter

var registry = map[Kind]Constructor{
	KindHTMLSite: func(cfg Config, deps Deps) Adapter { return NewHTMLSite(cfg, deps) },
	KindJSONAPI:  func(cfg Config, deps Deps) Adapter { return NewJSONAPI(cfg, deps) },
	KindRSSFeed:  func(cfg Config, deps Deps) Adapter { return NewRSSFeed(cfg, deps) },
}

// Kinds returns all registered kinds in sorted order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Registered reports whether kind has an adapter.
func Registered(kind Kind) bool {
	_, ok := registry[kind]
	return ok
}

// New creates the adapter registered for kind.
func New(kind Kind, cfg Config, deps Deps) (Adapter, error) {
	ctor, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("source %s: base url required", cfg.Name)
	}
	if deps.Fetcher == nil {
		return nil, errors.New("source: fetcher required")
	}
	return ctor(cfg, deps), nil
}
