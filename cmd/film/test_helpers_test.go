package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ddanialb/Film/internal/testsupport"
)

type cliTestEnv struct {
	configPath string
	dataDir    string
	catalog    *httptest.Server
	refreshes  atomic.Int32
	manifests  atomic.Int32
}

// setupCLITestEnv writes a config pointing at a fake catalog and clears every
// environment override so the host environment cannot leak in.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	testsupport.ClearEnv(t)

	env := &cliTestEnv{}
	env.catalog = httptest.NewServer(env.catalogHandler())
	t.Cleanup(env.catalog.Close)

	cfg := testsupport.NewConfig(t,
		testsupport.WithCatalogURL(env.catalog.URL+"/api/v1"),
		testsupport.WithRefreshToken("seed-refresh"),
	)
	env.dataDir = cfg.Paths.DataDir
	env.configPath = testsupport.WriteConfig(t, cfg)
	return env
}

func (e *cliTestEnv) catalogHandler() http.Handler {
	writeJSONBody := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		e.refreshes.Add(1)
		writeJSONBody(w, map[string]string{"access": "access-1"})
	})
	mux.HandleFunc("/api/v1/playlists/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		results := []map[string]any{}
		if q := r.URL.Query().Get("q"); strings.EqualFold(q, "Inception") {
			results = append(results, map[string]any{"id": 501, "title": "Inception", "imdb_id": "tt1375666", "type": "MOV"})
		}
		writeJSONBody(w, map[string]any{"results": results, "next": ""})
	})
	mux.HandleFunc("/api/v1/playlists/videos/source/W/", func(w http.ResponseWriter, r *http.Request) {
		e.manifests.Add(1)
		if r.URL.Query().Get("playlist") != "501" {
			writeJSONBody(w, map[string]any{"videos": []any{}})
			return
		}
		writeJSONBody(w, map[string]any{
			"videos": []map[string]any{{
				"url":       "/videos/9/Inception.2010.1080p.BluRay.x265.mkv",
				"file_name": "Inception.2010.1080p.BluRay.x265.mkv",
				"size":      2147483648,
			}},
			"domains": map[string]any{"9": "https://cdn.example"},
		})
	})
	return mux
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
