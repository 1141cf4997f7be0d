package media

import (
	"fmt"
	"sort"
	"strconv"
)

// DownloadItem is one playable file from a catalog manifest.
type DownloadItem struct {
	FileName  string `json:"fileName"`
	URL       string `json:"url"`
	SizeBytes int64  `json:"sizeBytes"`
	Size      string `json:"size"`
	FileMetadata
}

// NewDownloadItem builds an item and derives its metadata from fileName.
func NewDownloadItem(fileName, url string, sizeBytes int64) DownloadItem {
	return DownloadItem{
		FileName:     fileName,
		URL:          url,
		SizeBytes:    sizeBytes,
		Size:         FormatSize(sizeBytes),
		FileMetadata: ParseFileName(fileName),
	}
}

// SeasonRef points at the manifest of one season of a series.
type SeasonRef struct {
	Label  string `json:"text"`
	Number int    `json:"seasonNum"`
	ID     string `json:"seasonId"`
}

// SeasonLabel renders the display label used for season buttons.
func SeasonLabel(number int) string {
	return "فصل " + strconv.Itoa(number)
}

// SortSeasons orders seasons by number, keeping the original order for ties.
func SortSeasons(seasons []SeasonRef) {
	sort.SliceStable(seasons, func(i, j int) bool {
		return seasons[i].Number < seasons[j].Number
	})
}

// SeasonsFromItems describes a series playlist that has no per-season
// manifests: a single season whose ID is the playlist itself, numbered by the
// lowest season parsed from the items (1 when none parse).
func SeasonsFromItems(items []DownloadItem, playlistID string) []SeasonRef {
	if playlistID == "" {
		return nil
	}
	number := 0
	for _, item := range items {
		if item.Season > 0 && (number == 0 || item.Season < number) {
			number = item.Season
		}
	}
	if number == 0 {
		number = 1
	}
	return []SeasonRef{{Label: SeasonLabel(number), Number: number, ID: playlistID}}
}

// FormatSize renders a byte count as "1.25 GB" or "700 MB". Zero and negative
// sizes render as "".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return ""
	}
	gb := float64(bytes) / (1 << 30)
	if gb >= 1 {
		return fmt.Sprintf("%.2f GB", gb)
	}
	return fmt.Sprintf("%.0f MB", float64(bytes)/(1<<20))
}
