package resolution

import "github.com/ddanialb/Film/internal/media"

// Kind classifies a Result.
type Kind string

const (
	KindMovie      Kind = "movie"
	KindSeries     Kind = "series"
	KindNotFound   Kind = "not_found"
	KindNeedsLogin Kind = "needs_login"
	KindError      Kind = "error"
)

// Strategies recorded on results and log lines.
const (
	StrategyCache   = "cache"
	StrategyCatalog = "catalog"
	StrategyBot     = "bot"
)

// Result is the outcome of a resolution. Items is never nil for successful
// results so it encodes as an empty JSON array.
type Result struct {
	Kind          Kind                 `json:"type"`
	ContentID     string               `json:"imdbId,omitempty"`
	Title         string               `json:"title,omitempty"`
	PlaylistID    string               `json:"playlistId,omitempty"`
	Seasons       []media.SeasonRef    `json:"seasons,omitempty"`
	CurrentSeason int                  `json:"currentSeason,omitempty"`
	Items         []media.DownloadItem `json:"downloads"`
	FromCache     bool                 `json:"fromCache,omitempty"`
	Strategy      string               `json:"strategy,omitempty"`
	Message       string               `json:"message,omitempty"`
	RequestID     string               `json:"requestId,omitempty"`
}

// Success reports whether the result identifies a movie or series.
func (r Result) Success() bool {
	return r.Kind == KindMovie || r.Kind == KindSeries
}

// NeedsLogin reports whether the caller must log in to Telegram first.
func (r Result) NeedsLogin() bool {
	return r.Kind == KindNeedsLogin
}

func movieResult(id, playlistID string, items []media.DownloadItem) Result {
	return Result{Kind: KindMovie, ContentID: id, PlaylistID: playlistID, Items: nonNil(items)}
}

func seriesResult(id string, seasons []media.SeasonRef, items []media.DownloadItem) Result {
	r := Result{Kind: KindSeries, ContentID: id, Seasons: seasons, Items: nonNil(items)}
	if len(seasons) > 0 {
		r.CurrentSeason = seasons[0].Number
	}
	return r
}

func nonNil(items []media.DownloadItem) []media.DownloadItem {
	if items == nil {
		return []media.DownloadItem{}
	}
	return items
}
