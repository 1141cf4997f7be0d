package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/ddanialb/Film/internal/services/streamwide"
	"github.com/ddanialb/Film/internal/textutil"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 16
	statusIndent     = "  "
)

var statusKinds = map[statusKind]struct{ label, color string }{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

// statusLine is one "label: [KIND] message" row of a status report.
type statusLine struct {
	label   string
	kind    statusKind
	message string
}

func (l statusLine) render(colorize bool) string {
	style := statusKinds[l.kind]
	badge := "[" + style.label + "]"
	body := textutil.Ternary(l.message == "", badge, badge+" "+l.message)
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, l.label+":", body)
	if colorize && style.color != "" {
		return style.color + line + ansiReset
	}
	return line
}

func writeStatusSection(w io.Writer, title string, lines []statusLine, colorize bool) {
	heading := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	if colorize {
		heading = ansiBlue + heading + ansiReset
	}
	fmt.Fprintln(w, heading)
	for _, line := range lines {
		fmt.Fprintln(w, line.render(colorize))
	}
}

func tokenStatusLines(status streamwide.TokenStatus, now time.Time) []statusLine {
	access := statusLine{label: "Access token", kind: statusWarn, message: "none (refreshed on demand)"}
	if status.HasAccess {
		access.kind = statusOK
		access.message = "valid for " + status.ExpiresAt.Sub(now).Truncate(time.Second).String()
	}
	refresh := statusLine{label: "Refresh token", kind: statusError, message: "missing; run `film token set` or `film telegram login`"}
	if status.HasRefresh {
		refresh.kind = statusOK
		refresh.message = textutil.Ternary(status.Source == "", "present", "from "+status.Source)
	}
	return []statusLine{access, refresh}
}

func sessionStatusLines(status telegramStatus) []statusLine {
	if !status.Configured {
		return []statusLine{{label: "Telegram", kind: statusWarn, message: "not configured (bot fallback disabled)"}}
	}
	stored := statusLine{
		label:   "Stored session",
		kind:    textutil.Ternary(status.SessionStored, statusOK, statusWarn),
		message: textutil.Ternary(status.SessionStored, "present", "none; run `film telegram login`"),
	}
	lines := []statusLine{stored}
	if status.State != "" {
		kind := statusWarn
		if status.Authorized {
			kind = statusOK
		}
		lines = append(lines, statusLine{label: "Session state", kind: kind, message: status.State})
	}
	if status.Error != "" {
		lines = append(lines, statusLine{label: "Connection", kind: statusError, message: status.Error})
	}
	return lines
}

func cacheStatusLine(entries int, path string) statusLine {
	return statusLine{label: "Cache", kind: statusInfo, message: fmt.Sprintf("%d entries (%s)", entries, path)}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
