package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/elonfeng/jokemachine/pkg/politeness"
	"github.com/elonfeng/jokemachine/pkg/record"
)

// ListOpts controls record listing.
type ListOpts struct {
	// Source filters on the source tag. Empty lists every record.
	Source string
	Limit  int
}

// Store is the persistence interface.
type Store interface {
	FindByTitleHash(ctx context.Context, hash string) ([]record.Stored, error)
	FindByContentHash(ctx context.Context, hash string) ([]record.Stored, error)
	ExistsByTitleAuthor(ctx context.Context, title, author string) (bool, error)
	Insert(ctx context.Context, c *record.Candidate) (*record.Stored, error)
	ListRecords(ctx context.Context, opts ListOpts) ([]record.Stored, error)
	CountBySource(ctx context.Context) (map[string]int, error)

	GetAccessState(ctx context.Context, source string) (*politeness.AccessState, error)
	PutAccessState(ctx context.Context, s *politeness.AccessState) error
	ListAccessStates(ctx context.Context) ([]politeness.AccessState, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindByTitleHash(ctx context.Context, hash string) ([]record.Stored, error) {
	var recs []record.Stored
	if err := s.db.SelectContext(ctx, &recs, "SELECT * FROM records WHERE title_hash = ?", hash); err != nil {
		return nil, fmt.Errorf("find by title hash: %w", err)
	}
	return recs, nil
}

func (s *SQLiteStore) FindByContentHash(ctx context.Context, hash string) ([]record.Stored, error) {
	var recs []record.Stored
	if err := s.db.SelectContext(ctx, &recs, "SELECT * FROM records WHERE content_hash = ?", hash); err != nil {
		return nil, fmt.Errorf("find by content hash: %w", err)
	}
	return recs, nil
}

func (s *SQLiteStore) ExistsByTitleAuthor(ctx context.Context, title, author string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM records WHERE title = ? AND author = ?", title, author)
	if err != nil {
		return false, fmt.Errorf("check title %q: %w", title, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, c *record.Candidate) (*record.Stored, error) {
	rec := &record.Stored{
		ID:        uuid.NewString(),
		StoredAt:  s.now().UTC(),
		Candidate: *c,
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO records (id, stored_at, external_id, source, title, content, author, url,
			adult, ups, downs, created_at, content_type, charset, content_encoding,
			last_modified, downloaded_at, title_hash, content_hash)
		VALUES (:id, :stored_at, :external_id, :source, :title, :content, :author, :url,
			:adult, :ups, :downs, :created_at, :content_type, :charset, :content_encoding,
			:last_modified, :downloaded_at, :title_hash, :content_hash)
	`, rec)
	if err != nil {
		return nil, fmt.Errorf("insert record %q: %w", c.Title, err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, opts ListOpts) ([]record.Stored, error) {
	query := "SELECT * FROM records WHERE 1=1"
	var args []any

	if opts.Source != "" {
		query += " AND source = ?"
		args = append(args, opts.Source)
	}

	query += " ORDER BY stored_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var recs []record.Stored
	if err := s.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return recs, nil
}

func (s *SQLiteStore) CountBySource(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT source, COUNT(*) AS cnt FROM records GROUP BY source")
	if err != nil {
		return nil, fmt.Errorf("count records by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var src string
		var cnt int
		if err := rows.Scan(&src, &cnt); err != nil {
			return nil, err
		}
		counts[src] = cnt
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) GetAccessState(ctx context.Context, source string) (*politeness.AccessState, error) {
	var st politeness.AccessState
	err := s.db.GetContext(ctx, &st, "SELECT name AS source, last_access FROM websites WHERE name = ?", source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("access state %s: %w", source, record.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get access state %s: %w", source, err)
	}
	return &st, nil
}

func (s *SQLiteStore) PutAccessState(ctx context.Context, st *politeness.AccessState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO websites (name, last_access) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET last_access = excluded.last_access
	`, st.Source, st.LastAccess.UTC())
	if err != nil {
		return fmt.Errorf("put access state %s: %w", st.Source, err)
	}
	return nil
}

func (s *SQLiteStore) ListAccessStates(ctx context.Context) ([]politeness.AccessState, error) {
	var states []politeness.AccessState
	if err := s.db.SelectContext(ctx, &states, "SELECT name AS source, last_access FROM websites ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list access states: %w", err)
	}
	return states, nil
}
