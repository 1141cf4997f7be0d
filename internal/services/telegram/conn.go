package telegram

import (
	"context"
	"time"
)

// Button is an inline keyboard button that carries a URL.
type Button struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// InlineResult is one answer to an inline query.
type InlineResult struct {
	ID      string
	Buttons []Button
}

// InlineResults is the bot's answer to an inline query.
type InlineResults struct {
	QueryID int64
	Results []InlineResult
}

// Message is a chat message as seen in history, newest first.
type Message struct {
	ID      int
	Text    string
	Date    time.Time
	Buttons []Button
}

// Peer identifies a resolved bot.
type Peer struct {
	Username   string
	UserID     int64
	AccessHash int64
}

// User is the logged-in account.
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
}

// Conn is a live, connected client.
type Conn interface {
	Authorized(ctx context.Context) (bool, error)
	SignIn(ctx context.Context, phone string, codes CodeSource, password PasswordSource) error
	Self(ctx context.Context) (User, error)
	ResolveBot(ctx context.Context, username string) (Peer, error)
	InlineQuery(ctx context.Context, bot Peer, query string) (InlineResults, error)
	SendInlineResult(ctx context.Context, bot Peer, queryID int64, resultID string) error
	History(ctx context.Context, bot Peer, limit int) ([]Message, error)
	Close() error
}

// Dialer opens connections. An empty proxyAddr dials directly.
type Dialer interface {
	Dial(ctx context.Context, proxyAddr string) (Conn, error)
	// IsRevoked reports whether err means the stored auth key is no longer
	// accepted and the session must be discarded.
	IsRevoked(err error) bool
}
