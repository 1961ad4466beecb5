package pack

import "testing"

func TestResolveCacheStatus(t *testing.T) {
	entry := &Entry{Hash: "aaa"}

	tests := []struct {
		name         string
		entry        *Entry
		hash         string
		forceRebuild bool
		want         CacheStatus
	}{
		{"no entry", nil, "aaa", false, CacheAbsent},
		{"no entry with force rebuild", nil, "aaa", true, CacheAbsent},
		{"matching hash", entry, "aaa", false, CacheValid},
		{"differing hash", entry, "bbb", false, CacheStale},
		{"matching hash with force rebuild", entry, "aaa", true, CacheStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveCacheStatus(tt.entry, tt.hash, tt.forceRebuild); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
