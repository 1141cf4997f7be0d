package botresolver

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ddanialb/Film/internal/media"
	"github.com/ddanialb/Film/internal/services/telegram"
	"github.com/ddanialb/Film/internal/textutil"
)

var (
	seasonIDPattern     = regexp.MustCompile(`(?i)seasonID=([a-f0-9-]+)`)
	playlistIDPattern   = regexp.MustCompile(`(?i)(?:uniqueID|playlist)=([a-f0-9-]+)`)
	seasonNumberPattern = regexp.MustCompile(`فصل\s*(\d+)`)
)

// Extraction is what a set of buttons points at.
type Extraction struct {
	PlaylistID string
	Seasons    []media.SeasonRef
}

// Found reports whether anything usable was extracted.
func (e Extraction) Found() bool {
	return len(e.Seasons) > 0 || e.PlaylistID != ""
}

// ButtonExtractor turns bot buttons into playlist or season references.
type ButtonExtractor interface {
	Extract(buttons []telegram.Button) Extraction
}

// RegexExtractor reads IDs from the button URLs of the StreamWide bot.
type RegexExtractor struct{}

var _ ButtonExtractor = RegexExtractor{}

// Extract collects season buttons (seasonID=...) in button order and the
// first playlist button (uniqueID=... or playlist=...). Season numbers come
// from the "فصل N" label, in Persian or ASCII digits, falling back to the
// button position.
func (RegexExtractor) Extract(buttons []telegram.Button) Extraction {
	var out Extraction
	seen := make(map[string]bool)
	for _, b := range buttons {
		if m := seasonIDPattern.FindStringSubmatch(b.URL); m != nil {
			id := strings.ToLower(m[1])
			if seen[id] {
				continue
			}
			seen[id] = true
			out.Seasons = append(out.Seasons, media.SeasonRef{
				Label:  strings.TrimSpace(b.Text),
				Number: seasonNumber(b.Text, len(out.Seasons)+1),
				ID:     m[1],
			})
			continue
		}
		if out.PlaylistID == "" {
			if m := playlistIDPattern.FindStringSubmatch(b.URL); m != nil {
				out.PlaylistID = m[1]
			}
		}
	}
	return out
}

func seasonNumber(label string, fallback int) int {
	m := seasonNumberPattern.FindStringSubmatch(textutil.ASCIIDigits(label))
	if m == nil {
		return fallback
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
