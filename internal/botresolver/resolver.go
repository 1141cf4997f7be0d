package botresolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ddanialb/Film/internal/logging"
	"github.com/ddanialb/Film/internal/media"
	"github.com/ddanialb/Film/internal/poll"
	"github.com/ddanialb/Film/internal/services"
	"github.com/ddanialb/Film/internal/services/telegram"
)

const (
	component           = "botresolver"
	DefaultBotUsername  = "StreamWideBot"
	defaultHistoryLimit = 5
)

// DefaultReplyPolicy waits for the bot's reply after sending an inline result.
var DefaultReplyPolicy = poll.Policy{Interval: 3 * time.Second, Attempts: 5, WaitFirst: true}

// Kind distinguishes movie and series resolutions.
type Kind string

const (
	KindMovie  Kind = "movie"
	KindSeries Kind = "series"
)

// Resolution is the bot's answer for a content ID.
type Resolution struct {
	Kind       Kind
	PlaylistID string
	Seasons    []media.SeasonRef
}

// Runner runs one serialized exchange over an authorized session.
type Runner interface {
	Do(ctx context.Context, fn func(ctx context.Context, conn telegram.Conn) error) error
}

// Resolver drives the StreamWide bot: inline query, button inspection, and
// when the inline result has no buttons, sending it and polling for the
// bot's reply.
type Resolver struct {
	runner       Runner
	bot          string
	extractor    ButtonExtractor
	policy       poll.Policy
	historyLimit int
	logger       *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBotUsername overrides the bot to query.
func WithBotUsername(username string) Option {
	return func(r *Resolver) {
		if username = strings.TrimPrefix(strings.TrimSpace(username), "@"); username != "" {
			r.bot = username
		}
	}
}

// WithExtractor replaces the button extractor.
func WithExtractor(e ButtonExtractor) Option {
	return func(r *Resolver) {
		if e != nil {
			r.extractor = e
		}
	}
}

// WithReplyPolicy overrides how the bot's reply is polled.
func WithReplyPolicy(p poll.Policy) Option {
	return func(r *Resolver) { r.policy = p }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logging.NewComponentLogger(logger, component) }
}

// New builds a Resolver over runner.
func New(runner Runner, opts ...Option) *Resolver {
	r := &Resolver{
		runner:       runner,
		bot:          DefaultBotUsername,
		extractor:    RegexExtractor{},
		policy:       DefaultReplyPolicy,
		historyLimit: defaultHistoryLimit,
		logger:       logging.NewComponentLogger(nil, component),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve asks the bot about contentID. It returns services.ErrNotFound when
// the bot has no answer, and ctx.Err() as soon as ctx is cancelled.
func (r *Resolver) Resolve(ctx context.Context, contentID string) (Resolution, error) {
	var res Resolution
	err := r.runner.Do(ctx, func(ctx context.Context, conn telegram.Conn) error {
		var err error
		res, err = r.exchange(ctx, conn, contentID)
		return err
	})
	if err != nil {
		return Resolution{}, err
	}
	return res, nil
}

func (r *Resolver) exchange(ctx context.Context, conn telegram.Conn, contentID string) (Resolution, error) {
	logger := r.logger.With(logging.String(logging.FieldContentID, contentID))

	bot, err := conn.ResolveBot(ctx, r.bot)
	if err != nil {
		return Resolution{}, transportError(ctx, "resolve bot", err)
	}
	results, err := conn.InlineQuery(ctx, bot, contentID)
	if err != nil {
		return Resolution{}, transportError(ctx, "inline query", err)
	}
	if len(results.Results) == 0 {
		logger.Debug("inline query returned no results")
		return Resolution{}, services.ErrNotFound
	}

	first := results.Results[0]
	if ex := r.extractor.Extract(first.Buttons); ex.Found() {
		logger.Debug("resolved from inline result buttons")
		return toResolution(ex), nil
	}

	if err := conn.SendInlineResult(ctx, bot, results.QueryID, first.ID); err != nil {
		return Resolution{}, transportError(ctx, "send inline result", err)
	}

	var found Extraction
	outcome, err := poll.Until(ctx, r.policy, func(ctx context.Context, attempt int) (bool, error) {
		messages, err := conn.History(ctx, bot, r.historyLimit)
		if err != nil {
			return false, err
		}
		if len(messages) == 0 {
			return false, nil
		}
		// Only the newest message: older ones may belong to another title.
		ex := r.extractor.Extract(messages[0].Buttons)
		logger.Debug("checked bot reply",
			logging.Int("attempt", attempt),
			logging.Int("buttons", len(messages[0].Buttons)),
			logging.Bool("found", ex.Found()))
		if !ex.Found() {
			return false, nil
		}
		found = ex
		return true, nil
	})
	switch outcome {
	case poll.Found:
		return toResolution(found), nil
	case poll.Cancelled:
		return Resolution{}, err
	default:
		if err != nil {
			return Resolution{}, transportError(ctx, "read history", err)
		}
		logger.Debug("bot did not reply with links", logging.Int("attempts", r.policy.Attempts))
		return Resolution{}, services.ErrNotFound
	}
}

func toResolution(ex Extraction) Resolution {
	if len(ex.Seasons) > 0 {
		return Resolution{Kind: KindSeries, Seasons: ex.Seasons}
	}
	return Resolution{Kind: KindMovie, PlaylistID: ex.PlaylistID}
}

func transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, services.ErrNeedsLogin) {
		return err
	}
	return services.Wrap(services.ErrTransient, component, op, "", err)
}
