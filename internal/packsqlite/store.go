package packsqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite"

	"github.com/fnpack/fnpack/internal/bench"
	"github.com/fnpack/fnpack/internal/pack"
)

var _ pack.Cache = (*Store)(nil)

// Store is a SQLite-backed package cache.
// It is safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens the SQLite cache at name, creating and migrating it as needed.
func Open(name string) (*Store, error) {
	db, err := sql.Open("sqlite", name)
	if err != nil {
		return nil, fmt.Errorf("packsqlite.Open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err = migrateDB(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("packsqlite.Open: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

//go:embed migrations/*.sql
var migrations embed.FS

func migrationsFS() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

func migrateDB(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS(), ".")
	if err != nil {
		return err
	}

	databaseDriver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", databaseDriver)
	if err != nil {
		return err
	}

	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

func (s *Store) GetEntry(ctx context.Context, params *pack.CacheGetEntryParams) (*pack.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT deployment, benchmark, language, hash, size, location, created_at, updated_at
		FROM packages
		WHERE deployment = ? AND benchmark = ? AND language = ?
	`
	args := []any{params.Deployment, params.Benchmark, string(params.Language)}

	e, err := rowToEntry(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("packsqlite.Store: %w", pack.ErrNotFound)
		}
		return nil, fmt.Errorf("packsqlite.Store: %w", err)
	}

	return e, nil
}

func (s *Store) CreateEntry(ctx context.Context, params *pack.CacheCreateEntryParams) (*pack.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	query := `
		INSERT INTO packages (deployment, benchmark, language, hash, size, location, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING deployment, benchmark, language, hash, size, location, created_at, updated_at
	`
	args := []any{params.Deployment, params.Benchmark, string(params.Language), params.Hash, params.Size, params.Location, now, now}

	e, err := rowToEntry(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("packsqlite.Store: %w", err)
	}

	return e, nil
}

func (s *Store) UpdateEntry(ctx context.Context, params *pack.CacheUpdateEntryParams) (*pack.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	query := `
		UPDATE packages
		SET hash = ?, size = ?, location = ?, updated_at = ?
		WHERE deployment = ? AND benchmark = ? AND language = ?
		RETURNING deployment, benchmark, language, hash, size, location, created_at, updated_at
	`
	args := []any{params.Hash, params.Size, params.Location, now, params.Deployment, params.Benchmark, string(params.Language)}

	e, err := rowToEntry(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("packsqlite.Store: %w", pack.ErrNotFound)
		}
		return nil, fmt.Errorf("packsqlite.Store: %w", err)
	}

	return e, nil
}

func (s *Store) ListEntries(ctx context.Context, params *pack.CacheListEntriesParams) ([]*pack.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT deployment, benchmark, language, hash, size, location, created_at, updated_at
		FROM packages
		WHERE deployment = ? AND language = ?
		ORDER BY benchmark
	`
	args := []any{params.Deployment, string(params.Language)}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("packsqlite.Store: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []*pack.Entry
	for rows.Next() {
		e, err := rowToEntry(rows)
		if err != nil {
			if errors.Is(err, pack.ErrBadEntry) {
				slog.Warn("skipping unusable cache entry", "error", err)
				continue
			}
			return nil, fmt.Errorf("packsqlite.Store: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("packsqlite.Store: %w", err)
	}

	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func rowToEntry(r scanner) (*pack.Entry, error) {
	var e pack.Entry
	var language string
	var createdAt, updatedAt int64
	err := r.Scan(&e.Deployment, &e.Benchmark, &language, &e.Hash, &e.Size, &e.Location, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	l, known := bench.LanguageFromString(language)
	if !known {
		return nil, fmt.Errorf("row to entry: language %q: %w", language, pack.ErrBadEntry)
	}
	if e.Hash == "" {
		return nil, fmt.Errorf("row to entry: hash is empty: %w", pack.ErrBadEntry)
	}
	e.Language = l
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	e.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &e, nil
}
