package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/elonfeng/jokemachine/internal/scheduler"
	"github.com/elonfeng/jokemachine/internal/store"
	"github.com/elonfeng/jokemachine/pkg/alert"
	"github.com/elonfeng/jokemachine/pkg/ingest"
)

const maxListLimit = 500

// Updater runs one full update unless one is already running.
type Updater interface {
	TryRunOnce(ctx context.Context) ([]*ingest.Result, error)
}

// Server provides the HTTP API.
type Server struct {
	store   store.Store
	sources []ingest.SourceSpec
	updater Updater
	port    int
}

// New creates a new HTTP server. A nil updater disables POST /api/v1/update.
func New(s store.Store, sources []ingest.SourceSpec, updater Updater, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		store:   s,
		sources: sources,
		updater: updater,
		port:    port,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/records", s.handleRecords)
	mux.HandleFunc("/api/v1/sources", s.handleSources)
	mux.HandleFunc("/api/v1/update", s.handleUpdate)
	return mux
}

// ListenAndServe starts the HTTP server and shuts it down when ctx is done.
// Requests inherit the logger carried by ctx.
func (s *Server) ListenAndServe(ctx context.Context) error {
	log := zerolog.Ctx(ctx)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return log.WithContext(context.Background()) },
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("jokemachine server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	opts := store.ListOpts{Limit: 100, Source: r.URL.Query().Get("source")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		opts.Limit = min(n, maxListLimit)
	}

	recs, err := s.store.ListRecords(r.Context(), opts)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  recs,
		"count": len(recs),
	})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	counts, err := s.store.CountBySource(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	states, err := s.store.ListAccessStates(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	lastAccess := make(map[string]time.Time, len(states))
	for _, st := range states {
		lastAccess[st.Source] = st.LastAccess
	}

	type sourceInfo struct {
		Name         string     `json:"name"`
		Kind         string     `json:"kind"`
		Tag          string     `json:"tag"`
		Records      int        `json:"records"`
		RefreshDelay float64    `json:"refresh_delay_seconds"`
		LastAccess   *time.Time `json:"last_access,omitempty"`
	}

	infos := make([]sourceInfo, 0, len(s.sources))
	for _, src := range s.sources {
		info := sourceInfo{
			Name:         src.Name,
			Kind:         string(src.Kind),
			Tag:          src.Adapter.Tag,
			Records:      counts[src.Adapter.Tag],
			RefreshDelay: src.MinInterval.Seconds(),
		}
		if t, ok := lastAccess[src.Name]; ok {
			info.LastAccess = &t
		}
		infos = append(infos, info)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":   infos,
		"count":  len(infos),
		"manual": counts[""],
		"total":  sum(counts),
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if s.updater == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "updates disabled"})
		return
	}

	results, err := s.updater.TryRunOnce(r.Context())
	if errors.Is(err, scheduler.ErrBusy) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	reports := make([]*alert.Report, len(results))
	for i, res := range results {
		reports[i] = alert.NewReport(res)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  reports,
		"count": len(reports),
	})
}

func sum(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
