package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ddanialb/Film/internal/media"
	"github.com/ddanialb/Film/internal/playlistcache"
	"github.com/ddanialb/Film/internal/services/streamwide"
)

func TestStatusLineRenderNoColor(t *testing.T) {
	got := statusLine{label: "Cache", kind: statusError, message: "unreadable"}.render(false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Cache:", "[ERROR] unreadable")
	if got != want {
		t.Fatalf("render mismatch\n got: %q\nwant: %q", got, want)
	}
	if got := (statusLine{label: "Cache", kind: statusOK}).render(false); !strings.HasSuffix(got, "[OK]") {
		t.Fatalf("expected bare badge, got %q", got)
	}
}

func TestStatusLineRenderWithColor(t *testing.T) {
	got := statusLine{label: "Tokens", kind: statusOK, message: "ready"}.render(true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestTokenStatusLines(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	lines := tokenStatusLines(streamwide.TokenStatus{
		HasAccess:  true,
		HasRefresh: true,
		ExpiresAt:  now.Add(5 * time.Minute),
		Source:     "env",
	}, now)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].kind != statusOK || lines[0].message != "valid for 5m0s" {
		t.Fatalf("unexpected access line %+v", lines[0])
	}
	if lines[1].kind != statusOK || lines[1].message != "from env" {
		t.Fatalf("unexpected refresh line %+v", lines[1])
	}

	lines = tokenStatusLines(streamwide.TokenStatus{}, now)
	if lines[0].kind != statusWarn || lines[1].kind != statusError {
		t.Fatalf("expected warn/error for empty credentials, got %+v", lines)
	}
}

func TestSessionStatusLines(t *testing.T) {
	if lines := sessionStatusLines(telegramStatus{}); len(lines) != 1 || lines[0].kind != statusWarn {
		t.Fatalf("unexpected unconfigured lines %+v", lines)
	}
	lines := sessionStatusLines(telegramStatus{
		Configured:    true,
		SessionStored: true,
		State:         "authorized",
		Authorized:    true,
	})
	if len(lines) != 2 || lines[1].kind != statusOK || lines[1].message != "authorized" {
		t.Fatalf("unexpected authorized lines %+v", lines)
	}
	lines = sessionStatusLines(telegramStatus{Configured: true, State: "disconnected", Error: "dial failed"})
	if len(lines) != 3 || lines[0].kind != statusWarn || lines[2].kind != statusError {
		t.Fatalf("unexpected failing lines %+v", lines)
	}
}

func TestWriteStatusSection(t *testing.T) {
	var buf bytes.Buffer
	writeStatusSection(&buf, "Cache", []statusLine{cacheStatusLine(2, "/tmp/cache.json")}, false)
	out := buf.String()
	if !strings.HasPrefix(out, "== Cache ==\n") || !strings.Contains(out, "[INFO] 2 entries (/tmp/cache.json)") {
		t.Fatalf("unexpected section %q", out)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestItemsTable(t *testing.T) {
	items := []media.DownloadItem{
		media.NewDownloadItem("Show.S02E05.720p.WEB-DL.x264.mkv", "https://cdn/a.mkv", 700<<20),
		media.NewDownloadItem("extras.mkv", "https://cdn/b.mkv", 0),
	}
	out := itemsTable(items)
	for _, want := range []string{"S02E05", "720p", "700 MB", "https://cdn/a.mkv", "https://cdn/b.mkv"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestCacheTable(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	series := playlistcache.NewSeriesEntry("tt0944947", []media.SeasonRef{{Number: 1, ID: "s1"}, {Number: 2, ID: "s2"}})
	series.CachedAt = now.Add(-90 * time.Minute)
	out := cacheTable([]playlistcache.Entry{series}, now)
	for _, want := range []string{"tt0944947", "series", "1:s1 2:s2", "1h30m0s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}
