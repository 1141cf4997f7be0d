package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ddanialb/Film/internal/media"
	"github.com/ddanialb/Film/internal/playlistcache"
)

type column struct {
	header     string
	alignRight bool
}

func renderTable(columns []column, rows []table.Row) string {
	if len(columns) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.header
		align := text.AlignLeft
		if col.alignRight {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)
	for _, row := range rows {
		tw.AppendRow(row)
	}
	return tw.Render()
}

func itemsTable(items []media.DownloadItem) string {
	columns := []column{
		{header: "#", alignRight: true},
		{header: "Episode"},
		{header: "Quality"},
		{header: "Codec"},
		{header: "Source"},
		{header: "Subs"},
		{header: "Size", alignRight: true},
		{header: "URL"},
	}
	rows := make([]table.Row, 0, len(items))
	for i, item := range items {
		rows = append(rows, table.Row{
			i + 1,
			episodeLabel(item.FileMetadata),
			dash(item.Quality),
			dash(item.Codec),
			dash(item.Source),
			dash(item.SubtitleType),
			item.Size,
			item.URL,
		})
	}
	return renderTable(columns, rows)
}

func cacheTable(entries []playlistcache.Entry, now time.Time) string {
	columns := []column{
		{header: "Content ID"},
		{header: "Type"},
		{header: "Playlist / Seasons"},
		{header: "Age", alignRight: true},
	}
	rows := make([]table.Row, 0, len(entries))
	for _, entry := range entries {
		target := entry.PlaylistID
		if entry.Kind == playlistcache.KindSeries {
			ids := make([]string, 0, len(entry.Seasons))
			for _, s := range entry.Seasons {
				ids = append(ids, fmt.Sprintf("%d:%s", s.Number, s.ID))
			}
			target = strings.Join(ids, " ")
		}
		rows = append(rows, table.Row{
			entry.ContentID,
			string(entry.Kind),
			target,
			now.Sub(entry.CachedAt).Truncate(time.Minute).String(),
		})
	}
	return renderTable(columns, rows)
}

func episodeLabel(meta media.FileMetadata) string {
	if meta.Season == 0 && meta.Episode == 0 {
		return "-"
	}
	return fmt.Sprintf("S%02dE%02d", meta.Season, meta.Episode)
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
