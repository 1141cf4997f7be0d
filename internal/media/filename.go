package media

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	episodePattern = regexp.MustCompile(`(?i)S(\d{1,2})E(\d{1,3})`)
	qualityPattern = regexp.MustCompile(`(?i)(\d{3,4})p`)
	codecPattern   = regexp.MustCompile(`(?i)(x26[45]|hevc|h\.?26[45])`)
	sourcePattern  = regexp.MustCompile(`(?i)(bluray|web-?dl|webrip|hdtv|dvdrip|bdrip)`)
)

var canonicalSources = map[string]string{
	"bluray": "BluRay",
	"webdl":  "WEB-DL",
	"web-dl": "WEB-DL",
	"webrip": "WEBRip",
	"hdtv":   "HDTV",
	"dvdrip": "DVDRip",
	"bdrip":  "BDRip",
}

// Subtitle/audio variants. An empty SubtitleType means the raw release.
const (
	SubtitleDubbed  = "dubbed"
	SubtitleHardsub = "hardsub"
	SubtitleSoftsub = "softsub"
)

// FileMetadata is the structured view of a release file name. Zero values
// mean the corresponding marker was absent.
type FileMetadata struct {
	Season       int    `json:"season,omitempty"`
	Episode      int    `json:"episode,omitempty"`
	Quality      string `json:"quality"`
	Codec        string `json:"codec"`
	Source       string `json:"source"`
	SubtitleType string `json:"subType"`
}

// ParseFileName extracts episode, quality, codec, source, and subtitle markers
// from a release file name. It never fails; unrecognized names yield a zero
// FileMetadata.
func ParseFileName(name string) FileMetadata {
	var meta FileMetadata
	if name == "" {
		return meta
	}

	if m := episodePattern.FindStringSubmatch(name); m != nil {
		meta.Season, _ = strconv.Atoi(m[1])
		meta.Episode, _ = strconv.Atoi(m[2])
	}
	if m := qualityPattern.FindStringSubmatch(name); m != nil {
		meta.Quality = m[1]
	}
	meta.Codec = parseCodec(name)
	if m := sourcePattern.FindStringSubmatch(name); m != nil {
		meta.Source = canonicalSources[strings.ToLower(m[1])]
	}
	meta.SubtitleType = parseSubtitleType(name)
	return meta
}

func parseCodec(name string) string {
	var codec string
	if m := codecPattern.FindStringSubmatch(name); m != nil {
		switch strings.ReplaceAll(strings.ToUpper(m[1]), ".", "") {
		case "HEVC", "H265", "X265":
			codec = "x265"
		case "H264", "X264":
			codec = "x264"
		}
	}
	if strings.Contains(strings.ToLower(name), "10bit") || strings.Contains(name, "10-bit") {
		if codec == "" {
			return "10bit"
		}
		return codec + " 10bit"
	}
	return codec
}

func parseSubtitleType(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "dubbed"),
		strings.Contains(lower, "dub."),
		strings.Contains(lower, ".farsi."),
		strings.Contains(lower, "farsi-"):
		return SubtitleDubbed
	case strings.Contains(lower, "hardsub"):
		return SubtitleHardsub
	case strings.Contains(lower, "softsub"):
		return SubtitleSoftsub
	default:
		return ""
	}
}
