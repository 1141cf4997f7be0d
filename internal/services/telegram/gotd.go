package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"golang.org/x/net/proxy"

	"github.com/ddanialb/Film/internal/logging"
)

// revokedErrors are RPC error types meaning the auth key is gone for good.
var revokedErrors = []string{
	"AUTH_KEY_UNREGISTERED",
	"AUTH_KEY_INVALID",
	"SESSION_REVOKED",
	"SESSION_EXPIRED",
	"USER_DEACTIVATED",
}

// GotdDialer dials MTProto connections with gotd/td.
type GotdDialer struct {
	appID   int
	appHash string
	storage session.Storage
	logger  *slog.Logger
}

var _ Dialer = (*GotdDialer)(nil)

// NewGotdDialer builds a dialer that persists sessions in storage.
func NewGotdDialer(appID int, appHash string, storage session.Storage, logger *slog.Logger) (*GotdDialer, error) {
	if appID <= 0 || appHash == "" {
		return nil, errors.New("telegram app_id and app_hash are required")
	}
	if storage == nil {
		return nil, errors.New("session storage required")
	}
	return &GotdDialer{
		appID:   appID,
		appHash: appHash,
		storage: storage,
		logger:  logging.NewComponentLogger(logger, "telegram-mtproto"),
	}, nil
}

// IsRevoked reports whether err is one of the revoked-key RPC errors.
func (d *GotdDialer) IsRevoked(err error) bool {
	return err != nil && tgerr.Is(err, revokedErrors...)
}

// Dial starts a client and blocks until it is connected.
func (d *GotdDialer) Dial(ctx context.Context, proxyAddr string) (Conn, error) {
	opts := telegram.Options{SessionStorage: d.storage}
	if proxyAddr != "" {
		dial, err := socksDial(proxyAddr)
		if err != nil {
			return nil, err
		}
		opts.Resolver = dcs.Plain(dcs.PlainOptions{Dial: dial})
	}
	client := telegram.NewClient(d.appID, d.appHash, opts)

	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	stopped := make(chan error, 1)
	go func() {
		stopped <- client.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-ready:
		d.logger.Debug("mtproto client running", logging.Bool("proxy", proxyAddr != ""))
		return &gotdConn{client: client, api: client.API(), cancel: cancel, stopped: stopped}, nil
	case err := <-stopped:
		cancel()
		if err == nil {
			err = errors.New("client stopped before connecting")
		}
		return nil, fmt.Errorf("telegram connect: %w", err)
	case <-ctx.Done():
		cancel()
		<-stopped
		return nil, ctx.Err()
	}
}

func socksDial(addr string) (dcs.DialFunc, error) {
	dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy %s: %w", addr, err)
	}
	ctxDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 proxy %s: dialer does not support context", addr)
	}
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		return ctxDialer.DialContext(ctx, network, address)
	}, nil
}

type gotdConn struct {
	client  *telegram.Client
	api     *tg.Client
	cancel  context.CancelFunc
	stopped chan error
}

func (c *gotdConn) Authorized(ctx context.Context) (bool, error) {
	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		return false, err
	}
	return status.Authorized, nil
}

func (c *gotdConn) SignIn(ctx context.Context, phone string, codes CodeSource, password PasswordSource) error {
	pw, err := password.Password(ctx)
	if err != nil {
		return fmt.Errorf("read 2fa password: %w", err)
	}
	codeAuth := auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
		return codes.Code(ctx)
	})
	flow := auth.NewFlow(auth.Constant(phone, pw, codeAuth), auth.SendCodeOptions{})
	return flow.Run(ctx, c.client.Auth())
}

func (c *gotdConn) Self(ctx context.Context) (User, error) {
	self, err := c.client.Self(ctx)
	if err != nil {
		return User{}, err
	}
	return User{ID: self.ID, FirstName: self.FirstName, LastName: self.LastName, Username: self.Username}, nil
}

func (c *gotdConn) ResolveBot(ctx context.Context, username string) (Peer, error) {
	peer, err := message.NewSender(c.api).Resolve("@" + username).AsInputPeer(ctx)
	if err != nil {
		return Peer{}, err
	}
	user, ok := peer.(*tg.InputPeerUser)
	if !ok {
		return Peer{}, fmt.Errorf("@%s is not a user", username)
	}
	return Peer{Username: username, UserID: user.UserID, AccessHash: user.AccessHash}, nil
}

func (c *gotdConn) InlineQuery(ctx context.Context, bot Peer, query string) (InlineResults, error) {
	res, err := c.api.MessagesGetInlineBotResults(ctx, &tg.MessagesGetInlineBotResultsRequest{
		Bot:   &tg.InputUser{UserID: bot.UserID, AccessHash: bot.AccessHash},
		Peer:  &tg.InputPeerSelf{},
		Query: query,
	})
	if err != nil {
		return InlineResults{}, err
	}
	out := InlineResults{QueryID: res.QueryID}
	for _, r := range res.Results {
		var (
			id  string
			msg tg.BotInlineMessageClass
		)
		switch v := r.(type) {
		case *tg.BotInlineResult:
			id, msg = v.ID, v.SendMessage
		case *tg.BotInlineMediaResult:
			id, msg = v.ID, v.SendMessage
		default:
			continue
		}
		var buttons []Button
		if withMarkup, ok := msg.(interface {
			GetReplyMarkup() (tg.ReplyMarkupClass, bool)
		}); ok {
			if markup, ok := withMarkup.GetReplyMarkup(); ok {
				buttons = markupButtons(markup)
			}
		}
		out.Results = append(out.Results, InlineResult{ID: id, Buttons: buttons})
	}
	return out, nil
}

func (c *gotdConn) SendInlineResult(ctx context.Context, bot Peer, queryID int64, resultID string) error {
	_, err := c.api.MessagesSendInlineBotResult(ctx, &tg.MessagesSendInlineBotResultRequest{
		Peer:     inputPeer(bot),
		RandomID: rand.Int64(),
		QueryID:  queryID,
		ID:       resultID,
	})
	return err
}

func (c *gotdConn) History(ctx context.Context, bot Peer, limit int) ([]Message, error) {
	res, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  inputPeer(bot),
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}
	var raw []tg.MessageClass
	switch v := res.(type) {
	case *tg.MessagesMessages:
		raw = v.Messages
	case *tg.MessagesMessagesSlice:
		raw = v.Messages
	case *tg.MessagesChannelMessages:
		raw = v.Messages
	}
	messages := make([]Message, 0, len(raw))
	for _, m := range raw {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}
		out := Message{ID: msg.ID, Text: msg.Message, Date: time.Unix(int64(msg.Date), 0)}
		if markup, ok := msg.GetReplyMarkup(); ok {
			out.Buttons = markupButtons(markup)
		}
		messages = append(messages, out)
	}
	return messages, nil
}

func (c *gotdConn) Close() error {
	c.cancel()
	err := <-c.stopped
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func inputPeer(bot Peer) tg.InputPeerClass {
	return &tg.InputPeerUser{UserID: bot.UserID, AccessHash: bot.AccessHash}
}

// markupButtons flattens the URL-bearing buttons of an inline keyboard.
func markupButtons(markup tg.ReplyMarkupClass) []Button {
	inline, ok := markup.(*tg.ReplyInlineMarkup)
	if !ok {
		return nil
	}
	var buttons []Button
	for _, row := range inline.Rows {
		for _, b := range row.Buttons {
			switch v := b.(type) {
			case *tg.KeyboardButtonURL:
				buttons = append(buttons, Button{Text: v.Text, URL: v.URL})
			case *tg.KeyboardButtonWebView:
				buttons = append(buttons, Button{Text: v.Text, URL: v.URL})
			case *tg.KeyboardButtonSimpleWebView:
				buttons = append(buttons, Button{Text: v.Text, URL: v.URL})
			case *tg.KeyboardButtonURLAuth:
				buttons = append(buttons, Button{Text: v.Text, URL: v.URL})
			}
		}
	}
	return buttons
}
