package pack

import (
	"context"
	"errors"
	"time"

	"github.com/fnpack/fnpack/internal/bench"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrBadEntry marks a cache entry that can't be decoded.
	// Callers treat such entries as missing.
	ErrBadEntry = errors.New("bad cache entry")
)

// Entry is a cached record of a built code package.
type Entry struct {
	Deployment string
	Benchmark  string
	Language   bench.Language

	Hash     string
	Size     int64
	Location string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Cache stores one entry per (deployment, benchmark, language).
type Cache interface {
	GetEntry(ctx context.Context, params *CacheGetEntryParams) (*Entry, error)
	CreateEntry(ctx context.Context, params *CacheCreateEntryParams) (*Entry, error)
	UpdateEntry(ctx context.Context, params *CacheUpdateEntryParams) (*Entry, error)
	ListEntries(ctx context.Context, params *CacheListEntriesParams) ([]*Entry, error)
}

type CacheGetEntryParams struct {
	Deployment string
	Benchmark  string
	Language   bench.Language
}

type CacheCreateEntryParams struct {
	Deployment string
	Benchmark  string
	Language   bench.Language
	Hash       string
	Size       int64
	Location   string
}

type CacheUpdateEntryParams struct {
	Deployment string
	Benchmark  string
	Language   bench.Language
	Hash       string
	Size       int64
	Location   string
}

type CacheListEntriesParams struct {
	Deployment string
	Language   bench.Language
}
