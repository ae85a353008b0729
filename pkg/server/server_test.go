package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elonfeng/jokemachine/internal/scheduler"
	"github.com/elonfeng/jokemachine/internal/store"
	"github.com/elonfeng/jokemachine/pkg/ingest"
	"github.com/elonfeng/jokemachine/pkg/politeness"
	"github.com/elonfeng/jokemachine/pkg/record"
	"github.com/elonfeng/jokemachine/pkg/source"
)

type stubUpdater struct {
	err   error
	calls int
}

func (u *stubUpdater) TryRunOnce(context.Context) ([]*ingest.Result, error) {
	u.calls++
	if u.err != nil {
		return nil, u.err
	}
	return []*ingest.Result{{Source: "reddit", Tag: "Reddit Jokes Group"}}, nil
}

var specs = []ingest.SourceSpec{
	{Name: "reddit", Kind: source.KindJSONAPI, Adapter: source.Config{Tag: "Reddit Jokes Group"}, MinInterval: time.Minute},
	{Name: "sickipedia", Kind: source.KindRSSFeed, Adapter: source.Config{Tag: "Sickipedia Jokes"}, MinInterval: time.Minute},
}

func seeded(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemory()
	for _, c := range []record.Candidate{
		{Source: "Reddit Jokes Group", Title: "a", Content: "1", TitleHash: record.Hash("a"), ContentHash: record.Hash("1")},
		{Source: "Reddit Jokes Group", Title: "b", Content: "2", TitleHash: record.Hash("b"), ContentHash: record.Hash("2")},
		{Source: "", Title: "c", Content: "3", TitleHash: record.Hash("c"), ContentHash: record.Hash("3")},
	} {
		if _, err := s.Insert(ctx, &c); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	s.PutAccessState(ctx, &politeness.AccessState{Source: "reddit", LastAccess: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	return s
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s %s: %v", method, target, err)
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	rec, body := do(t, New(store.NewMemory(), nil, nil, 0).Handler(), http.MethodGet, "/health")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("unexpected health response %d %v", rec.Code, body)
	}
}

func TestRecords(t *testing.T) {
	h := New(seeded(t), specs, nil, 0).Handler()

	tests := []struct {
		target string
		code   int
		count  float64
	}{
		{"/api/v1/records", http.StatusOK, 3},
		{"/api/v1/records?source=Reddit+Jokes+Group", http.StatusOK, 2},
		{"/api/v1/records?limit=1", http.StatusOK, 1},
		{"/api/v1/records?limit=zero", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		rec, body := do(t, h, http.MethodGet, tt.target)
		if rec.Code != tt.code {
			t.Errorf("%s: status %d, want %d", tt.target, rec.Code, tt.code)
			continue
		}
		if tt.code == http.StatusOK && body["count"] != tt.count {
			t.Errorf("%s: count %v, want %v", tt.target, body["count"], tt.count)
		}
	}

	if rec, _ := do(t, h, http.MethodPost, "/api/v1/records"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestSources(t *testing.T) {
	_, body := do(t, New(seeded(t), specs, nil, 0).Handler(), http.MethodGet, "/api/v1/sources")

	if body["total"] != float64(3) || body["manual"] != float64(1) {
		t.Errorf("unexpected totals %v", body)
	}
	data := body["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(data))
	}
	reddit := data[0].(map[string]any)
	if reddit["records"] != float64(2) || reddit["last_access"] == nil {
		t.Errorf("unexpected reddit info %v", reddit)
	}
	if _, ok := data[1].(map[string]any)["last_access"]; ok {
		t.Error("never accessed source should have no last_access")
	}
}

func TestUpdate(t *testing.T) {
	u := &stubUpdater{}
	h := New(store.NewMemory(), specs, u, 0).Handler()

	rec, body := do(t, h, http.MethodPost, "/api/v1/update")
	if rec.Code != http.StatusOK || body["count"] != float64(1) {
		t.Errorf("unexpected update response %d %v", rec.Code, body)
	}

	u.err = scheduler.ErrBusy
	if rec, _ := do(t, h, http.MethodPost, "/api/v1/update"); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 while busy, got %d", rec.Code)
	}

	if rec, _ := do(t, h, http.MethodGet, "/api/v1/update"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}

	rec, _ = do(t, New(store.NewMemory(), specs, nil, 0).Handler(), http.MethodPost, "/api/v1/update")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without updater, got %d", rec.Code)
	}
}
