package playlistcache

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ddanialb/Film/internal/media"
	"github.com/ddanialb/Film/internal/services"
)

// Kind tags a cache entry.
type Kind string

const (
	KindMovie  Kind = "movie"
	KindSeries Kind = "series"
)

// Entry maps a content ID to the StreamWide IDs that serve it. Movies carry a
// playlist ID; series carry their seasons.
type Entry struct {
	ContentID  string            `json:"contentId"`
	Kind       Kind              `json:"type"`
	PlaylistID string            `json:"playlistId,omitempty"`
	Seasons    []media.SeasonRef `json:"seasons,omitempty"`
	CachedAt   time.Time         `json:"cachedAt"`
}

type entryJSON struct {
	ContentID  string            `json:"contentId"`
	Kind       Kind              `json:"type"`
	PlaylistID string            `json:"playlistId,omitempty"`
	Seasons    []media.SeasonRef `json:"seasons,omitempty"`
	CachedAt   json.RawMessage   `json:"cachedAt,omitempty"`
}

// MarshalJSON writes cachedAt as Unix milliseconds, the format existing
// playlist_cache.json files use.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := entryJSON{ContentID: e.ContentID, Kind: e.Kind, PlaylistID: e.PlaylistID, Seasons: e.Seasons}
	if !e.CachedAt.IsZero() {
		out.CachedAt = json.RawMessage(fmt.Sprintf("%d", e.CachedAt.UnixMilli()))
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts cachedAt as Unix milliseconds or an RFC 3339 string.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var in entryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	cachedAt, err := parseCachedAt(in.CachedAt)
	if err != nil {
		return err
	}
	*e = Entry{ContentID: in.ContentID, Kind: in.Kind, PlaylistID: in.PlaylistID, Seasons: in.Seasons, CachedAt: cachedAt}
	return nil
}

func parseCachedAt(raw json.RawMessage) (time.Time, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return time.Time{}, nil
	}
	if strings.HasPrefix(text, `"`) {
		var t time.Time
		if err := json.Unmarshal(raw, &t); err != nil {
			return time.Time{}, fmt.Errorf("cachedAt: %w", err)
		}
		return t, nil
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("cachedAt: %w", err)
	}
	return time.UnixMilli(int64(ms)), nil
}

// NewMovieEntry builds a movie entry.
func NewMovieEntry(contentID, playlistID string) Entry {
	return Entry{ContentID: contentID, Kind: KindMovie, PlaylistID: playlistID}
}

// NewSeriesEntry builds a series entry. The seasons slice is copied.
func NewSeriesEntry(contentID string, seasons []media.SeasonRef) Entry {
	return Entry{ContentID: contentID, Kind: KindSeries, Seasons: append([]media.SeasonRef(nil), seasons...)}
}

// Validate reports why an entry must not be cached, wrapping
// services.ErrInvalidCacheData.
func (e Entry) Validate() error {
	if e.ContentID == "" {
		return invalid("content id is empty")
	}
	switch e.Kind {
	case KindMovie:
		if e.PlaylistID == "" {
			return invalid("movie entry has no playlist id")
		}
	case KindSeries:
		if len(e.Seasons) == 0 {
			return invalid("series entry has no seasons")
		}
		for i, s := range e.Seasons {
			if s.ID == "" || s.Number <= 0 {
				return invalid(fmt.Sprintf("season %d is missing its id or number", i))
			}
		}
	default:
		return invalid(fmt.Sprintf("unknown kind %q", e.Kind))
	}
	return nil
}

// FirstManifestID is the playlist or first season ID whose manifest
// represents the entry.
func (e Entry) FirstManifestID() string {
	if e.Kind == KindSeries && len(e.Seasons) > 0 {
		return e.Seasons[0].ID
	}
	return e.PlaylistID
}

func invalid(msg string) error {
	return services.Wrap(services.ErrInvalidCacheData, "playlistcache", "validate", msg, nil)
}
