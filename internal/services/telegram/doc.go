// Package telegram manages the single user session used to talk to the
// StreamWide bot.
//
// Session owns the connection lifecycle: it connects lazily (through a SOCKS5
// proxy first when one is configured), serializes login and bot exchanges, and
// tears itself down when the server revokes the auth key. The transport sits
// behind the Conn and Dialer interfaces; the production implementation is
// built on gotd/td.
package telegram
