package resolution

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ddanialb/Film/internal/botresolver"
	"github.com/ddanialb/Film/internal/logging"
	"github.com/ddanialb/Film/internal/media"
	"github.com/ddanialb/Film/internal/playlistcache"
	"github.com/ddanialb/Film/internal/services"
	"github.com/ddanialb/Film/internal/services/streamwide"
)

const needsLoginMessage = "Telegram login required: run `film telegram login` (or POST /api/telegram/login) and submit the code"

// Cache is the subset of playlistcache.Cache the orchestrator needs.
type Cache interface {
	Get(contentID string) (playlistcache.Entry, bool)
	Put(entry playlistcache.Entry) bool
}

// Bot is the subset of telegram.Session the orchestrator needs.
type Bot interface {
	EnsureConnected(ctx context.Context) error
	IsAuthorized() bool
	InitData(ctx context.Context) (string, error)
}

// BotResolver asks the bot about a content ID.
type BotResolver interface {
	Resolve(ctx context.Context, contentID string) (botresolver.Resolution, error)
}

// TokenExchanger trades Telegram initData for catalog credentials.
type TokenExchanger interface {
	ExchangeInitData(ctx context.Context, initData string) (string, error)
}

// Dependencies wires the orchestrator. Bot, BotResolver, and Tokens may be
// nil when Telegram is not configured; the bot fallback is then skipped.
type Dependencies struct {
	Cache       Cache
	Catalog     streamwide.Catalog
	Bot         Bot
	BotResolver BotResolver
	Tokens      TokenExchanger
	Logger      *slog.Logger
}

// Timeouts bounds each external call.
type Timeouts struct {
	Search     time.Duration
	Seasons    time.Duration
	Manifest   time.Duration
	BotConnect time.Duration
	BotResolve time.Duration
}

// DefaultTimeouts returns the stock per-step limits.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Search:     15 * time.Second,
		Seasons:    15 * time.Second,
		Manifest:   15 * time.Second,
		BotConnect: 25 * time.Second,
		BotResolve: 25 * time.Second,
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// Budget is the worst-case wall time of one Resolve when every step runs to
// its limit: the cached manifest, two catalog passes around a credential
// recovery, then the bot pass.
func (t Timeouts) Budget() time.Duration {
	catalogPass := 2*t.Search + t.Seasons + 2*t.Manifest
	recovery := t.BotConnect + t.Search
	botPass := t.BotConnect + t.BotResolve + t.Manifest
	return t.Manifest + 2*catalogPass + recovery + botPass
}

// WithTimeouts overrides the per-step limits; zero fields keep their default.
func WithTimeouts(t Timeouts) Option {
	return func(o *Orchestrator) {
		def := o.timeouts
		pick := func(v, d time.Duration) time.Duration {
			if v > 0 {
				return v
			}
			return d
		}
		o.timeouts = Timeouts{
			Search:     pick(t.Search, def.Search),
			Seasons:    pick(t.Seasons, def.Seasons),
			Manifest:   pick(t.Manifest, def.Manifest),
			BotConnect: pick(t.BotConnect, def.BotConnect),
			BotResolve: pick(t.BotResolve, def.BotResolve),
		}
	}
}

// Budget reports the configured worst-case Resolve duration.
func (o *Orchestrator) Budget() time.Duration {
	return o.timeouts.Budget()
}

// Orchestrator resolves content IDs through the cache, the catalog, and the
// bot, in that order.
type Orchestrator struct {
	deps     Dependencies
	timeouts Timeouts
	logger   *slog.Logger
	newID    func() string
}

// New builds an Orchestrator.
func New(deps Dependencies, opts ...Option) (*Orchestrator, error) {
	if deps.Cache == nil {
		return nil, errors.New("resolution: cache required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("resolution: catalog required")
	}
	o := &Orchestrator{
		deps:     deps,
		timeouts: DefaultTimeouts(),
		logger:   logging.NewComponentLogger(deps.Logger, "resolution"),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// NormalizeContentID returns the canonical form of an IMDb ID.
func NormalizeContentID(raw string) (string, error) {
	return media.NormalizeContentID(raw)
}

// Resolve finds the download items for contentID. title enables the catalog
// search step. Errors are reported through Result.Kind, never returned.
func (o *Orchestrator) Resolve(ctx context.Context, contentID, title string) Result {
	ctx, requestID := o.requestContext(ctx)
	title = strings.TrimSpace(title)

	id, err := NormalizeContentID(contentID)
	if err != nil {
		return Result{Kind: KindError, ContentID: strings.TrimSpace(contentID), Title: title, Message: err.Error(), RequestID: requestID}
	}
	ctx = services.WithContentID(ctx, id)

	res := o.resolve(ctx, id, title)
	res.ContentID = id
	res.Title = title
	res.RequestID = requestID
	return res
}

func (o *Orchestrator) resolve(ctx context.Context, id, title string) Result {
	logger := logging.WithContext(ctx, o.logger)
	start := time.Now()

	if res, ok := o.fromCache(services.WithStrategy(ctx, StrategyCache), id); ok {
		logger.Info("resolved from cache",
			logging.String(logging.FieldEventType, "resolve_cache_hit"),
			logging.Duration("elapsed", time.Since(start)))
		return res
	}

	if title != "" {
		catalogCtx := services.WithStrategy(ctx, StrategyCatalog)
		res, found, err := o.fromCatalog(catalogCtx, id, title)
		if err != nil && errors.Is(err, services.ErrAuth) && o.recoverCredentials(catalogCtx) {
			res, found, err = o.fromCatalog(catalogCtx, id, title)
		}
		switch {
		case found:
			logger.Info("resolved from catalog",
				logging.String(logging.FieldEventType, "resolve_catalog_hit"),
				logging.String("kind", string(res.Kind)),
				logging.Int("items", len(res.Items)),
				logging.Duration("elapsed", time.Since(start)))
			return res
		case err != nil && ctx.Err() != nil:
			return Result{Kind: KindError, Message: ctx.Err().Error()}
		case err != nil:
			logger.Info("catalog search failed, trying bot",
				logging.String(logging.FieldEventType, "resolve_catalog_failed"),
				logging.Error(err))
		}
	}

	res := o.fromBot(services.WithStrategy(ctx, StrategyBot), id)
	logger.Info("resolution finished",
		logging.String(logging.FieldEventType, "resolve_finished"),
		logging.String("kind", string(res.Kind)),
		logging.Duration("elapsed", time.Since(start)))
	return res
}

func (o *Orchestrator) fromCache(ctx context.Context, id string) (Result, bool) {
	entry, ok := o.deps.Cache.Get(id)
	if !ok {
		return Result{}, false
	}
	items, err := o.manifest(ctx, entry.FirstManifestID())
	if err != nil || len(items) == 0 {
		logging.WithContext(ctx, o.logger).Debug("cached entry unusable, falling through",
			logging.String("manifest_id", entry.FirstManifestID()),
			logging.Int("items", len(items)),
			logging.Error(err))
		return Result{}, false
	}
	var res Result
	if entry.Kind == playlistcache.KindSeries {
		res = seriesResult(id, entry.Seasons, items)
	} else {
		res = movieResult(id, entry.PlaylistID, items)
	}
	res.FromCache = true
	res.Strategy = StrategyCache
	return res, true
}

// fromCatalog reports found=false with a nil error when the catalog simply has
// nothing usable.
func (o *Orchestrator) fromCatalog(ctx context.Context, id, title string) (Result, bool, error) {
	logger := logging.WithContext(ctx, o.logger)

	playlist, err := o.search(ctx, func(ctx context.Context) (*streamwide.Playlist, error) {
		return o.deps.Catalog.SearchByTitle(ctx, title, id)
	})
	if errors.Is(err, services.ErrNotFound) {
		playlist, err = o.search(ctx, func(ctx context.Context) (*streamwide.Playlist, error) {
			return o.deps.Catalog.SearchByExactID(ctx, id)
		})
	}
	if errors.Is(err, services.ErrNotFound) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}

	if playlist.IsSeries() {
		seasonsCtx, cancel := context.WithTimeout(ctx, o.timeouts.Seasons)
		seasons, err := o.deps.Catalog.Seasons(seasonsCtx, playlist.ID)
		cancel()
		if err != nil {
			logger.Debug("seasons lookup failed, using playlist manifest", logging.Error(err))
		}
		if len(seasons) > 0 {
			media.SortSeasons(seasons)
			items, err := o.manifest(ctx, seasons[0].ID)
			if err != nil {
				return Result{}, false, err
			}
			if len(items) > 0 {
				o.deps.Cache.Put(playlistcache.NewSeriesEntry(id, seasons))
				res := seriesResult(id, seasons, items)
				res.Strategy = StrategyCatalog
				return res, true, nil
			}
		}
	}

	items, err := o.manifest(ctx, playlist.ID)
	if err != nil {
		return Result{}, false, err
	}
	if len(items) == 0 {
		logger.Debug("catalog playlist has no items", logging.String("playlist_id", playlist.ID))
		return Result{}, false, nil
	}

	var res Result
	if playlist.IsSeries() {
		seasons := media.SeasonsFromItems(items, playlist.ID)
		o.deps.Cache.Put(playlistcache.NewSeriesEntry(id, seasons))
		res = seriesResult(id, seasons, items)
	} else {
		o.deps.Cache.Put(playlistcache.NewMovieEntry(id, playlist.ID))
		res = movieResult(id, playlist.ID, items)
	}
	res.Strategy = StrategyCatalog
	return res, true, nil
}

func (o *Orchestrator) search(ctx context.Context, fn func(context.Context) (*streamwide.Playlist, error)) (*streamwide.Playlist, error) {
	searchCtx, cancel := context.WithTimeout(ctx, o.timeouts.Search)
	defer cancel()
	playlist, err := fn(searchCtx)
	if err == nil && playlist == nil {
		return nil, services.ErrNotFound
	}
	return playlist, err
}

// recoverCredentials derives new catalog tokens from the Telegram session.
// It only runs when a logged-in session is available.
func (o *Orchestrator) recoverCredentials(ctx context.Context) bool {
	if o.deps.Bot == nil || o.deps.Tokens == nil {
		return false
	}
	logger := logging.WithContext(ctx, o.logger)

	connectCtx, cancel := context.WithTimeout(ctx, o.timeouts.BotConnect)
	err := o.deps.Bot.EnsureConnected(connectCtx)
	cancel()
	if err != nil || !o.deps.Bot.IsAuthorized() {
		logger.Debug("credential recovery skipped: telegram not authorized", logging.Error(err))
		return false
	}

	initCtx, cancel := context.WithTimeout(ctx, o.timeouts.Search)
	defer cancel()
	initData, err := o.deps.Bot.InitData(initCtx)
	if err == nil {
		_, err = o.deps.Tokens.ExchangeInitData(initCtx, initData)
	}
	if err != nil {
		logging.WarnWithContext(logger, "catalog credential recovery failed", "credential_recovery_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "set a fresh refresh token with `film token set`"),
			logging.String(logging.FieldImpact, "catalog search skipped; falling back to bot"))
		return false
	}
	logger.Info("recovered catalog credentials from telegram session",
		logging.String(logging.FieldEventType, "credential_recovered"))
	return true
}

func (o *Orchestrator) fromBot(ctx context.Context, id string) Result {
	if o.deps.Bot == nil || o.deps.BotResolver == nil {
		return Result{Kind: KindNotFound, Message: "not found in catalog; telegram fallback not configured"}
	}
	logger := logging.WithContext(ctx, o.logger)

	connectCtx, cancel := context.WithTimeout(ctx, o.timeouts.BotConnect)
	err := o.deps.Bot.EnsureConnected(connectCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return Result{Kind: KindError, Message: ctx.Err().Error()}
		}
		logging.WarnWithContext(logger, "telegram connection failed", "bot_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check network, proxy settings, or log in again"),
			logging.String(logging.FieldImpact, "bot fallback unavailable"))
		return Result{Kind: KindNeedsLogin, Message: needsLoginMessage}
	}
	if !o.deps.Bot.IsAuthorized() {
		return Result{Kind: KindNeedsLogin, Message: needsLoginMessage}
	}

	resolveCtx, cancel := context.WithTimeout(ctx, o.timeouts.BotResolve)
	resolution, err := o.deps.BotResolver.Resolve(resolveCtx, id)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, services.ErrNeedsLogin):
		return Result{Kind: KindNeedsLogin, Message: needsLoginMessage}
	case errors.Is(err, services.ErrNotFound):
		return Result{Kind: KindNotFound, Message: "not found"}
	case ctx.Err() != nil:
		return Result{Kind: KindError, Message: ctx.Err().Error()}
	default:
		logger.Info("bot resolution failed", logging.Error(err))
		return Result{Kind: KindNotFound, Message: "not found: " + err.Error()}
	}

	var res Result
	if resolution.Kind == botresolver.KindSeries {
		o.deps.Cache.Put(playlistcache.NewSeriesEntry(id, resolution.Seasons))
		items, err := o.manifest(ctx, resolution.Seasons[0].ID)
		if err != nil {
			logger.Info("manifest fetch after bot resolution failed", logging.Error(err))
		}
		res = seriesResult(id, resolution.Seasons, items)
	} else {
		o.deps.Cache.Put(playlistcache.NewMovieEntry(id, resolution.PlaylistID))
		items, err := o.manifest(ctx, resolution.PlaylistID)
		if err != nil {
			logger.Info("manifest fetch after bot resolution failed", logging.Error(err))
		}
		res = movieResult(id, resolution.PlaylistID, items)
	}
	res.Strategy = StrategyBot
	return res
}

// Season fetches the manifest of a single season or playlist.
func (o *Orchestrator) Season(ctx context.Context, seasonID string) Result {
	ctx, requestID := o.requestContext(ctx)
	seasonID = strings.TrimSpace(seasonID)
	if seasonID == "" {
		return Result{Kind: KindError, Message: "season id required", RequestID: requestID}
	}
	items, err := o.manifest(ctx, seasonID)
	if err != nil {
		kind := KindError
		if errors.Is(err, services.ErrNotFound) {
			kind = KindNotFound
		}
		return Result{Kind: kind, Message: err.Error(), RequestID: requestID}
	}
	return Result{Kind: KindSeries, Items: nonNil(items), RequestID: requestID}
}

// requestContext reuses a caller-supplied request id or mints one.
func (o *Orchestrator) requestContext(ctx context.Context) (context.Context, string) {
	if id, ok := services.RequestIDFromContext(ctx); ok {
		return ctx, id
	}
	id := o.newID()
	return services.WithRequestID(ctx, id), id
}

func (o *Orchestrator) manifest(ctx context.Context, id string) ([]media.DownloadItem, error) {
	manifestCtx, cancel := context.WithTimeout(ctx, o.timeouts.Manifest)
	defer cancel()
	return o.deps.Catalog.FetchManifest(manifestCtx, id)
}
