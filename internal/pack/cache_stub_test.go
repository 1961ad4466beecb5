package pack

import (
	"context"
	"sort"
	"time"

	"github.com/fnpack/fnpack/internal/bench"
)

var _ Cache = (*StubCache)(nil)

// StubCache is an in-memory Cache.
type StubCache struct {
	entries map[string]*Entry

	Calls []string
}

func NewStubCache() *StubCache {
	return &StubCache{entries: make(map[string]*Entry)}
}

func stubCacheKey(deployment, benchmark string, language bench.Language) string {
	return deployment + "/" + benchmark + "/" + string(language)
}

func (c *StubCache) GetEntry(_ context.Context, params *CacheGetEntryParams) (*Entry, error) {
	c.Calls = append(c.Calls, "GetEntry")

	e, ok := c.entries[stubCacheKey(params.Deployment, params.Benchmark, params.Language)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (c *StubCache) CreateEntry(_ context.Context, params *CacheCreateEntryParams) (*Entry, error) {
	c.Calls = append(c.Calls, "CreateEntry")

	now := time.Now().UTC()
	e := &Entry{
		Deployment: params.Deployment,
		Benchmark:  params.Benchmark,
		Language:   params.Language,
		Hash:       params.Hash,
		Size:       params.Size,
		Location:   params.Location,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	c.entries[stubCacheKey(params.Deployment, params.Benchmark, params.Language)] = e

	copied := *e
	return &copied, nil
}

func (c *StubCache) UpdateEntry(_ context.Context, params *CacheUpdateEntryParams) (*Entry, error) {
	c.Calls = append(c.Calls, "UpdateEntry")

	e, ok := c.entries[stubCacheKey(params.Deployment, params.Benchmark, params.Language)]
	if !ok {
		return nil, ErrNotFound
	}
	e.Hash = params.Hash
	e.Size = params.Size
	e.Location = params.Location
	e.UpdatedAt = time.Now().UTC()

	copied := *e
	return &copied, nil
}

func (c *StubCache) ListEntries(_ context.Context, params *CacheListEntriesParams) ([]*Entry, error) {
	c.Calls = append(c.Calls, "ListEntries")

	var entries []*Entry
	for _, e := range c.entries {
		if e.Deployment != params.Deployment || e.Language != params.Language {
			continue
		}
		copied := *e
		entries = append(entries, &copied)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Benchmark < entries[j].Benchmark
	})
	return entries, nil
}
