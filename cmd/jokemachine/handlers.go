package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/elonfeng/jokemachine/internal/config"
	"github.com/elonfeng/jokemachine/internal/scheduler"
	"github.com/elonfeng/jokemachine/internal/store"
	"github.com/elonfeng/jokemachine/pkg/alert"
	"github.com/elonfeng/jokemachine/pkg/fetch"
	"github.com/elonfeng/jokemachine/pkg/ingest"
	"github.com/elonfeng/jokemachine/pkg/server"
)

const manualTag = "Manually Entered"

// app holds what every command needs.
type app struct {
	cfg *config.Config
	db  store.Store
	ctx context.Context
}

func setup() (*app, func(), error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	db, err := openStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx = logger.WithContext(ctx)

	cleanup := func() {
		cancel()
		db.Close()
	}
	return &app{cfg: cfg, db: db, ctx: ctx}, cleanup, nil
}

func newLogger(cfg config.LogConfig) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
		}
		level = l
	}

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	if cfg.Format == "json" {
		w = os.Stderr
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// openStore opens SQLite, or an in-memory store for ":memory:".
func openStore(path string) (store.Store, error) {
	if path == ":memory:" {
		return store.NewMemory(), nil
	}
	return store.New(path)
}

func (a *app) orchestrator() *ingest.Orchestrator {
	f := fetch.New(fetch.Options{
		Timeout:              a.cfg.Fetch.ParseTimeout(),
		UserAgent:            a.cfg.Fetch.UserAgent,
		MaxRequestsPerSecond: a.cfg.Fetch.MaxRequestsPerSecond,
	})
	return ingest.New(a.db, f, ingest.Options{})
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL, cfg.Alerts.Slack.OnlyFailures))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func runUpdate(only []string, amount int, jsonOutput bool) error {
	a, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	specs, err := a.cfg.SourceSpecs(only, amount)
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		return errors.New("no enabled sources")
	}

	sched, err := scheduler.New(a.orchestrator(), specs, buildAlertManager(a.cfg), a.cfg.Schedule.Interval)
	if err != nil {
		return err
	}
	results := sched.RunOnce(a.ctx)

	reports := make([]*alert.Report, len(results))
	failed := 0
	for i, r := range results {
		reports[i] = alert.NewReport(r)
		if !r.OK() {
			failed++
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SOURCE\tSTORED\tDUPLICATES\tDROPPED\tREQUESTS\tSTATUS")
		for _, r := range reports {
			status := "ok"
			if !r.OK {
				status = r.Error
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n", r.Source, r.Stored, r.Duplicates, r.Dropped, r.Fetched, status)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(results))
	}
	return nil
}

func runDaemon(interval string, serve bool, port int) error {
	a, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()
	log := zerolog.Ctx(a.ctx)

	if interval == "" {
		interval = a.cfg.Schedule.Interval
	}
	if port == 0 {
		port = a.cfg.Server.Port
	}

	specs, err := a.cfg.SourceSpecs(nil, 0)
	if err != nil {
		return err
	}
	sched, err := scheduler.New(a.orchestrator(), specs, buildAlertManager(a.cfg), interval)
	if err != nil {
		return err
	}

	if serve {
		srv := server.New(a.db, specs, sched, port)
		go func() {
			if err := srv.ListenAndServe(a.ctx); err != nil {
				log.Error().Err(err).Msg("server stopped")
			}
		}()
	}

	if err := sched.Run(a.ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("shutting down")
	return nil
}

func runCount(jsonOutput bool) error {
	a, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	counts, err := a.db.CountBySource(a.ctx)
	if err != nil {
		return fmt.Errorf("count records: %w", err)
	}

	named := make(map[string]int, len(counts))
	total := 0
	for tag, n := range counts {
		if tag == "" {
			tag = manualTag
		}
		named[tag] += n
		total += n
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"total": total, "sources": named})
	}

	tags := make([]string, 0, len(named))
	for tag := range named {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tRECORDS")
	for _, tag := range tags {
		fmt.Fprintf(w, "%s\t%s\n", tag, humanize.Comma(int64(named[tag])))
	}
	fmt.Fprintf(w, "total\t%s\n", humanize.Comma(int64(total)))
	return w.Flush()
}

func runList(source string, limit int, jsonOutput bool) error {
	a, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	recs, err := a.db.ListRecords(a.ctx, store.ListOpts{Source: source, Limit: limit})
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}

	if len(recs) == 0 {
		fmt.Println("no records found (try updating first: jokemachine update)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STORED\tSOURCE\tTITLE\tAUTHOR")
	for _, r := range recs {
		tag := r.Source
		if tag == "" {
			tag = manualTag
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", humanize.Time(r.StoredAt), tag, r.Title, r.Author)
	}
	return w.Flush()
}

func runAdd(in io.Reader, title, author, url string) error {
	a, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	body, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read joke: %w", err)
	}

	rec, verdict, err := ingest.AddManual(a.ctx, a.db, ingest.ManualEntry{
		Title:  title,
		Body:   string(body),
		Author: author,
		URL:    url,
	})
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Printf("not stored: %s\n", verdict)
		return nil
	}
	fmt.Printf("stored %s (%s)\n", rec.ID, verdict)
	return nil
}

func runServe(port int) error {
	a, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	specs, err := a.cfg.SourceSpecs(nil, 0)
	if err != nil {
		return err
	}
	sched, err := scheduler.New(a.orchestrator(), specs, buildAlertManager(a.cfg), a.cfg.Schedule.Interval)
	if err != nil {
		return err
	}

	srv := server.New(a.db, specs, sched, port)
	return srv.ListenAndServe(a.ctx)
}
