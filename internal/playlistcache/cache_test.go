package playlistcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ddanialb/Film/internal/media"
	"github.com/ddanialb/Film/internal/services"
)

func seasons(ids ...string) []media.SeasonRef {
	out := make([]media.SeasonRef, 0, len(ids))
	for i, id := range ids {
		out = append(out, media.SeasonRef{Label: media.SeasonLabel(i + 1), Number: i + 1, ID: id})
	}
	return out
}

func TestCachePutAndGet(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "playlist_cache.json")
	cache := New(cachePath, 0, nil)

	if !cache.Put(NewMovieEntry("tt1375666", "pl-inception")) {
		t.Fatal("Put rejected a valid movie entry")
	}
	if !cache.Put(NewSeriesEntry("0944947", seasons("s1", "s2"))) {
		t.Fatal("Put rejected a valid series entry")
	}

	movie, ok := cache.Get(" TT1375666 ")
	if !ok || movie.PlaylistID != "pl-inception" || movie.Kind != KindMovie {
		t.Fatalf("unexpected movie entry %+v ok=%v", movie, ok)
	}
	series, ok := cache.Get("tt0944947")
	if !ok || series.FirstManifestID() != "s1" || len(series.Seasons) != 2 {
		t.Fatalf("unexpected series entry %+v ok=%v", series, ok)
	}
	if series.CachedAt.IsZero() {
		t.Fatal("expected CachedAt stamped")
	}

	reloaded := New(cachePath, 0, nil)
	if reloaded.Count() != 2 {
		t.Fatalf("expected 2 entries after reload, got %d", reloaded.Count())
	}
}

func TestCachePutRejectsInvalidEntries(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "playlist_cache.json")
	cache := New(cachePath, 0, nil)

	invalid := []Entry{
		NewMovieEntry("tt1", ""),
		NewSeriesEntry("tt2", nil),
		NewSeriesEntry("tt3", []media.SeasonRef{{ID: "", Number: 1}}),
		NewSeriesEntry("tt4", []media.SeasonRef{{ID: "s", Number: 0}}),
		{ContentID: "tt5", Kind: "album", PlaylistID: "x"},
		NewMovieEntry("", "pl"),
	}
	for _, entry := range invalid {
		if cache.Put(entry) {
			t.Errorf("Put accepted invalid entry %+v", entry)
		}
		if err := entry.Validate(); !errors.Is(err, services.ErrInvalidCacheData) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidCacheData", entry, err)
		}
	}
	if cache.Count() != 0 {
		t.Fatalf("expected empty cache, got %d", cache.Count())
	}
	if _, err := os.Stat(cachePath); !os.IsNotExist(err) {
		t.Fatalf("invalid entries must not create the cache file, stat err=%v", err)
	}
}

func TestCacheGetEvictsExpired(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "playlist_cache.json")
	cache := New(cachePath, time.Hour, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Put(NewMovieEntry("tt1", "pl"))
	now = now.Add(59 * time.Minute)
	if _, ok := cache.Get("tt1"); !ok {
		t.Fatal("entry should still be fresh")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get("tt1"); ok {
		t.Fatal("expected expired entry to be evicted")
	}
	if New(cachePath, time.Hour, nil).Count() != 0 {
		t.Fatal("eviction should be persisted")
	}
}

func TestCacheInvalidate(t *testing.T) {
	cache := New(filepath.Join(t.TempDir(), "playlist_cache.json"), 0, nil)
	cache.Put(NewMovieEntry("tt1", "a"))
	cache.Put(NewMovieEntry("tt2", "b"))
	cache.Put(NewMovieEntry("tt3", "c"))

	if n, err := cache.Invalidate("tt2"); err != nil || n != 1 {
		t.Fatalf("Invalidate(tt2) = %d, %v", n, err)
	}
	if n, err := cache.Invalidate("tt2"); err != nil || n != 0 {
		t.Fatalf("second Invalidate(tt2) = %d, %v", n, err)
	}
	if _, err := cache.Invalidate("bogus!"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n, err := cache.Invalidate(""); err != nil || n != 2 {
		t.Fatalf("Invalidate(all) = %d, %v", n, err)
	}
	if cache.Count() != 0 {
		t.Fatalf("expected empty cache, got %d", cache.Count())
	}
}

func TestCacheListNewestFirst(t *testing.T) {
	cache := New("", 0, nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"tt1", "tt2", "tt3"} {
		stamp := base.Add(time.Duration(i) * time.Minute)
		cache.now = func() time.Time { return stamp }
		cache.Put(NewMovieEntry(id, "pl"+id))
	}
	list := cache.List()
	if len(list) != 3 || list[0].ContentID != "tt3" || list[2].ContentID != "tt1" {
		t.Fatalf("unexpected order %+v", list)
	}
}

func TestCacheLoadDropsInvalidEntries(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "playlist_cache.json")
	stored := map[string]any{
		"tt1": map[string]any{"type": "movie", "playlistId": "pl-1", "cachedAt": time.Now().UTC()},
		"tt2": map[string]any{"type": "series", "seasons": []any{}, "cachedAt": time.Now().UTC()},
	}
	data, _ := json.Marshal(stored)
	if err := os.WriteFile(cachePath, data, 0o644); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	cache := New(cachePath, 0, nil)
	if cache.Count() != 1 {
		t.Fatalf("expected only the valid entry, got %d", cache.Count())
	}
	if entry, ok := cache.Get("tt1"); !ok || entry.ContentID != "tt1" {
		t.Fatalf("expected key used as content id, got %+v", entry)
	}
}

func TestCacheCorruptFileStartsEmpty(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "playlist_cache.json")
	if err := os.WriteFile(cachePath, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	if New(cachePath, 0, nil).Count() != 0 {
		t.Fatal("expected empty cache after parse failure")
	}
}

func TestCacheLoadsMillisecondTimestamps(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "playlist_cache.json")
	cachedAt := time.Now().Add(-time.Hour).UnixMilli()
	legacy := fmt.Sprintf(`{"tt1375666":{"playlistId":"abc-1","type":"movie","cachedAt":%d}}`, cachedAt)
	if err := os.WriteFile(cachePath, []byte(legacy), 0o644); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	cache := New(cachePath, 0, nil)
	entry, ok := cache.Get("tt1375666")
	if !ok || entry.PlaylistID != "abc-1" || entry.CachedAt.UnixMilli() != cachedAt {
		t.Fatalf("expected legacy entry to load, got %+v ok=%v", entry, ok)
	}

	if !cache.Put(NewMovieEntry("tt0133093", "pl-2")) {
		t.Fatal("put rejected")
	}
	data, err := os.ReadFile(cachePath)
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}
	var stored map[string]map[string]any
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("decode cache: %v", err)
	}
	for id, raw := range stored {
		if _, ok := raw["cachedAt"].(float64); !ok {
			t.Fatalf("%s: expected numeric cachedAt, got %T", id, raw["cachedAt"])
		}
	}
	if len(stored) != 2 {
		t.Fatalf("expected both entries persisted, got %d", len(stored))
	}
}
