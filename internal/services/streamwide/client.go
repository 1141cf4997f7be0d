package streamwide

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ddanialb/Film/internal/logging"
	"github.com/ddanialb/Film/internal/media"
	"github.com/ddanialb/Film/internal/services"
)

const (
	defaultMaxPages       = 10
	defaultRequestTimeout = 15 * time.Second
	seriesPlaylistType    = "TVS"
)

// Playlist is a catalog search hit.
type Playlist struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	IMDBID string `json:"imdb_id"`
	Type   string `json:"type"`
	Poster string `json:"poster,omitempty"`
}

// IsSeries reports whether the playlist is a TV series.
func (p Playlist) IsSeries() bool {
	return strings.EqualFold(p.Type, seriesPlaylistType)
}

type playlistPayload struct {
	ID     flexString `json:"id"`
	Title  string     `json:"title"`
	IMDBID string     `json:"imdb_id"`
	Type   string     `json:"type"`
	Poster string     `json:"poster"`
}

func (p playlistPayload) toPlaylist() *Playlist {
	return &Playlist{ID: string(p.ID), Title: p.Title, IMDBID: p.IMDBID, Type: p.Type, Poster: p.Poster}
}

type searchPage struct {
	Results []playlistPayload `json:"results"`
	Next    string            `json:"next"`
}

// TokenSource supplies bearer tokens for catalog requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Catalog defines the catalog operations used by the resolution pipeline.
type Catalog interface {
	SearchByTitle(ctx context.Context, title, contentID string) (*Playlist, error)
	SearchByExactID(ctx context.Context, contentID string) (*Playlist, error)
	Seasons(ctx context.Context, playlistID string) ([]media.SeasonRef, error)
	FetchManifest(ctx context.Context, id string) ([]media.DownloadItem, error)
}

// Client queries the StreamWide catalog API.
type Client struct {
	baseURL        string
	httpClient     HTTPDoer
	tokens         TokenSource
	logger         *slog.Logger
	maxPages       int
	requestTimeout time.Duration
}

var _ Catalog = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, component)
	}
}

// WithMaxPages caps exact-ID pagination.
func WithMaxPages(pages int) Option {
	return func(c *Client) {
		if pages > 0 {
			c.maxPages = pages
		}
	}
}

// WithRequestTimeout bounds each HTTP request.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.requestTimeout = timeout
		}
	}
}

// New creates a catalog client.
func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("streamwide base url required")
	}
	if tokens == nil {
		return nil, errors.New("token source required")
	}
	c := &Client{
		baseURL:        baseURL,
		httpClient:     &http.Client{},
		tokens:         tokens,
		logger:         logging.NewComponentLogger(nil, component),
		maxPages:       defaultMaxPages,
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SearchByTitle issues a single title query. When contentID is set only a
// result carrying that exact IMDb ID is accepted; otherwise the first result
// is returned.
func (c *Client) SearchByTitle(ctx context.Context, title, contentID string) (*Playlist, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, services.Wrap(services.ErrValidation, component, "search title", "title must not be empty", nil)
	}
	endpoint := c.baseURL + "/playlists/?" + url.Values{"q": {title}}.Encode()

	var page searchPage
	if err := c.doAuthorized(ctx, endpoint, "search title", &page); err != nil {
		return nil, err
	}
	if len(page.Results) == 0 {
		return nil, services.ErrNotFound
	}
	if contentID == "" {
		return page.Results[0].toPlaylist(), nil
	}
	if match, ok := findExact(page.Results, contentID); ok {
		return match, nil
	}
	c.logger.Debug("title search had no exact id match",
		logging.String("title", title),
		logging.String(logging.FieldContentID, contentID),
		logging.Int("results", len(page.Results)))
	return nil, services.ErrNotFound
}

// SearchByExactID filters by IMDb ID and follows the next-page cursor until a
// result with exactly that ID appears or the page cap is reached.
func (c *Client) SearchByExactID(ctx context.Context, contentID string) (*Playlist, error) {
	contentID = strings.TrimSpace(contentID)
	if contentID == "" {
		return nil, services.Wrap(services.ErrValidation, component, "search id", "content id must not be empty", nil)
	}
	endpoint := c.baseURL + "/playlists/?" + url.Values{"imdb_id": {contentID}}.Encode()

	for page := 1; page <= c.maxPages && endpoint != ""; page++ {
		var result searchPage
		if err := c.doAuthorized(ctx, endpoint, "search id", &result); err != nil {
			if page > 1 && !errors.Is(err, services.ErrAuth) {
				c.logger.Debug("stopping pagination after page error",
					logging.Int("page", page),
					logging.Error(err))
				break
			}
			return nil, err
		}
		if match, ok := findExact(result.Results, contentID); ok {
			c.logger.Debug("exact id match",
				logging.String(logging.FieldContentID, contentID),
				logging.Int("page", page))
			return match, nil
		}
		endpoint = c.resolveNext(result.Next)
	}
	return nil, services.ErrNotFound
}

// Seasons lists the seasons of a series playlist. The endpoint answers with
// either a bare array or a paginated {results: [...]} object.
func (c *Client) Seasons(ctx context.Context, playlistID string) ([]media.SeasonRef, error) {
	playlistID = strings.TrimSpace(playlistID)
	if playlistID == "" {
		return nil, services.Wrap(services.ErrValidation, component, "seasons", "playlist id must not be empty", nil)
	}
	endpoint := c.baseURL + "/playlists/" + url.PathEscape(playlistID) + "/seasons/"

	var raw json.RawMessage
	if err := c.doAuthorized(ctx, endpoint, "seasons", &raw); err != nil {
		return nil, err
	}

	type seasonPayload struct {
		ID           flexString `json:"id"`
		SeasonNumber int        `json:"season_number"`
	}
	var list []seasonPayload
	if err := json.Unmarshal(raw, &list); err != nil {
		var wrapped struct {
			Results []seasonPayload `json:"results"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, services.Wrap(services.ErrTransient, component, "seasons", "decode response", err)
		}
		list = wrapped.Results
	}

	seasons := make([]media.SeasonRef, 0, len(list))
	for idx, s := range list {
		if s.ID == "" {
			continue
		}
		number := s.SeasonNumber
		if number <= 0 {
			number = idx + 1
		}
		seasons = append(seasons, media.SeasonRef{Label: media.SeasonLabel(number), Number: number, ID: string(s.ID)})
	}
	return seasons, nil
}

// FetchManifest lists the downloadable files of a playlist or season. An
// empty manifest is returned as nil with no error.
func (c *Client) FetchManifest(ctx context.Context, id string) ([]media.DownloadItem, error) {
	var payload manifestPayload
	if err := c.fetchManifest(ctx, id, &payload); err != nil {
		return nil, err
	}
	items := payload.items()
	c.logger.Debug("fetched manifest",
		logging.String("playlist_id", id),
		logging.Int("videos", len(payload.Videos)),
		logging.Int("items", len(items)))
	return items, nil
}

// Raw returns the undecoded manifest response.
func (c *Client) Raw(ctx context.Context, id string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.fetchManifest(ctx, id, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) fetchManifest(ctx context.Context, id string, out any) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return services.Wrap(services.ErrValidation, component, "manifest", "playlist id must not be empty", nil)
	}
	endpoint := c.baseURL + "/playlists/videos/source/W/?" + url.Values{"playlist": {id}}.Encode()
	return c.doAuthorized(ctx, endpoint, "manifest", out)
}

// doAuthorized performs a GET with a bearer token. A rejected token is
// invalidated and the request retried exactly once with a fresh one.
func (c *Client) doAuthorized(ctx context.Context, endpoint, op string, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	err = c.get(ctx, endpoint, op, token, out)
	if err == nil || !errors.Is(err, services.ErrAuth) {
		return err
	}

	c.logger.Debug("token rejected, refreshing once", logging.String("op", op))
	c.tokens.Invalidate()
	token, err = c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	return c.get(ctx, endpoint, op, token, out)
}

func (c *Client) get(ctx context.Context, endpoint, op, token string, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	return doJSON(reqCtx, c.httpClient, request{method: http.MethodGet, url: endpoint, op: op, token: token}, out)
}

func (c *Client) resolveNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		return ""
	}
	ref, err := url.Parse(next)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return next
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func findExact(results []playlistPayload, contentID string) (*Playlist, bool) {
	for _, r := range results {
		if r.IMDBID == contentID {
			return r.toPlaylist(), true
		}
	}
	return nil, false
}
