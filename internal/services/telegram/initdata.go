package telegram

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type webAppUser struct {
	ID              int64  `json:"id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Username        string `json:"username"`
	LanguageCode    string `json:"language_code"`
	AllowsWriteToPM bool   `json:"allows_write_to_pm"`
}

// BuildInitData renders the WebApp initData query string StreamWide accepts
// at /accounts/telegram/auth/.
func BuildInitData(u User, now time.Time) (string, error) {
	if u.ID == 0 {
		return "", fmt.Errorf("build initData: user id missing")
	}
	userJSON, err := json.Marshal(webAppUser{
		ID:              u.ID,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Username:        u.Username,
		LanguageCode:    "en",
		AllowsWriteToPM: true,
	})
	if err != nil {
		return "", fmt.Errorf("build initData: %w", err)
	}
	id := strconv.FormatInt(u.ID, 10)
	pairs := [][2]string{
		{"auth_date", strconv.FormatInt(now.Unix(), 10)},
		{"query_id", "AAH" + id + "AQAAAA"},
		{"user", string(userJSON)},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, componentEscape(p[0])+"="+componentEscape(p[1]))
	}
	return strings.Join(parts, "&"), nil
}

// componentEscape percent-encodes like a URI component: spaces become %20.
func componentEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
