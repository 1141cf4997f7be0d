package streamwide

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/ddanialb/Film/internal/media"
)

type manifestVideo struct {
	URL      string    `json:"url"`
	FileName string    `json:"file_name"`
	Size     flexInt64 `json:"size"`
}

type manifestPayload struct {
	Videos  []manifestVideo            `json:"videos"`
	Domains map[string]json.RawMessage `json:"domains"`
}

func (p manifestPayload) items() []media.DownloadItem {
	var items []media.DownloadItem
	for _, v := range p.Videos {
		if strings.TrimSpace(v.URL) == "" {
			continue
		}
		items = append(items, media.NewDownloadItem(
			manifestFileName(v),
			resolveVideoURL(v.URL, p.Domains),
			int64(v.Size),
		))
	}
	return items
}

// resolveVideoURL turns a relative video path like /videos/12/name.mkv into a
// full URL. The third path segment keys the domain table, whose values are
// either a host prefix string or an {out_domain, in_domain} object.
func resolveVideoURL(path string, domains map[string]json.RawMessage) string {
	var key string
	if parts := strings.Split(path, "/"); len(parts) > 2 {
		key = parts[2]
	}
	if prefix := domainPrefix(domains[key]); prefix != "" {
		return prefix + path
	}
	return "https://ant.out.p" + key + ".streamwide.tv" + path
}

func domainPrefix(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		OutDomain string `json:"out_domain"`
		InDomain  string `json:"in_domain"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if obj.OutDomain != "" {
		return obj.OutDomain
	}
	return obj.InDomain
}

func manifestFileName(v manifestVideo) string {
	idx := strings.LastIndex(v.URL, "/")
	segment := v.URL[idx+1:]
	if segment != "" {
		if decoded, err := url.PathUnescape(segment); err == nil && decoded != "" {
			return decoded
		}
	}
	return v.FileName
}
