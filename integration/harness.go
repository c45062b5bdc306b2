//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	stdsync "sync"
	"testing"

	"filterlaunch/internal/config"
	"filterlaunch/internal/github"
	"filterlaunch/internal/source"
	"filterlaunch/internal/sync"
	"filterlaunch/internal/testutil"
)

// fakeRelease is one published release on the fake API.
type fakeRelease struct {
	Tag     string
	Notes   string
	Archive []byte
}

// fakeBranch is one branch tip on the fake API.
type fakeBranch struct {
	SHA     string
	Message string
	Archive []byte
}

// Harness runs a fake GitHub REST API over httptest. The production client
// talks to it unmodified via its base URL override, so these tests cover the
// whole chain from HTTP wire format down to installed files.
type Harness struct {
	t      *testing.T
	server *httptest.Server

	mu             stdsync.Mutex
	releases       map[string]fakeRelease // "owner/repo"
	branches       map[string]fakeBranch  // "owner/repo@branch"
	failures       map[string]int         // "owner/repo" -> forced HTTP status
	zipballFetches int
}

// NewHarness starts the fake API server; it is torn down with the test.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	h := &Harness{
		t:        t,
		releases: make(map[string]fakeRelease),
		branches: make(map[string]fakeBranch),
		failures: make(map[string]int),
	}
	h.server = httptest.NewServer(http.HandlerFunc(h.handle))
	t.Cleanup(h.server.Close)
	return h
}

// SetRelease publishes a release whose zipball contains the given filter
// files, replacing any previous release of the repository.
func (h *Harness) SetRelease(ownerRepo, tag, notes string, files map[string]string) {
	h.t.Helper()
	entries := make(map[string]string, len(files))
	for name, content := range files {
		entries[ownerRepo+"-"+tag+"/"+name] = content
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releases[ownerRepo] = fakeRelease{Tag: tag, Notes: notes, Archive: testutil.ZipArchive(h.t, entries)}
}

// SetBranch publishes a branch tip whose archive contains the given files.
func (h *Harness) SetBranch(ownerRepo, branch, sha, message string, files map[string]string) {
	h.t.Helper()
	entries := make(map[string]string, len(files))
	for name, content := range files {
		entries[ownerRepo+"-"+sha+"/"+name] = content
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.branches[ownerRepo+"@"+branch] = fakeBranch{SHA: sha, Message: message, Archive: testutil.ZipArchive(h.t, entries)}
}

// Fail forces every API response for the repository to the given status.
// Zero clears the failure.
func (h *Harness) Fail(ownerRepo string, status int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if status == 0 {
		delete(h.failures, ownerRepo)
		return
	}
	h.failures[ownerRepo] = status
}

// ZipballFetches returns how many archive downloads the server has seen.
func (h *Harness) ZipballFetches() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.zipballFetches
}

func (h *Harness) handle(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")

	switch {
	case len(parts) >= 4 && parts[0] == "repos":
		key := parts[1] + "/" + parts[2]
		if status, ok := h.failures[key]; ok {
			http.Error(w, "forced failure", status)
			return
		}
		switch {
		case parts[3] == "releases":
			h.serveReleases(w, key)
		case parts[3] == "branches" && len(parts) == 5:
			h.serveBranch(w, r, key, parts[4])
		default:
			http.NotFound(w, r)
		}

	// Release archives: /zipball/{owner}/{repo}/{tag}
	case len(parts) == 4 && parts[0] == "zipball":
		h.zipballFetches++
		rel, ok := h.releases[parts[1]+"/"+parts[2]]
		if !ok || rel.Tag != parts[3] {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(rel.Archive)

	// Branch archives, as the client constructs them: /{owner}/{repo}/archive/{sha}.zip
	case len(parts) == 4 && parts[2] == "archive":
		h.zipballFetches++
		sha := strings.TrimSuffix(parts[3], ".zip")
		for key, b := range h.branches {
			if strings.HasPrefix(key, parts[0]+"/"+parts[1]+"@") && b.SHA == sha {
				_, _ = w.Write(b.Archive)
				return
			}
		}
		http.NotFound(w, r)

	default:
		http.NotFound(w, r)
	}
}

func (h *Harness) serveReleases(w http.ResponseWriter, key string) {
	rel, ok := h.releases[key]
	if !ok {
		_, _ = w.Write([]byte("[]"))
		return
	}
	_ = json.NewEncoder(w).Encode([]map[string]string{{
		"tag_name":    rel.Tag,
		"body":        rel.Notes,
		"zipball_url": fmt.Sprintf("%s/zipball/%s/%s", h.server.URL, key, rel.Tag),
	}})
}

func (h *Harness) serveBranch(w http.ResponseWriter, r *http.Request, key, branch string) {
	b, ok := h.branches[key+"@"+branch]
	if !ok {
		http.NotFound(w, r)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"name": branch,
		"commit": map[string]any{
			"sha": b.SHA,
			"commit": map[string]any{
				"message": b.Message,
			},
		},
	})
}

// Env bundles the fake API, a filter directory and an engine configured the
// way the CLI would configure them.
type Env struct {
	Harness   *Harness
	FilterDir string
	Notes     *bytes.Buffer

	cfg    *config.Config
	client github.Client
}

// NewEnv creates a ready-to-run environment against a fresh harness.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	h := NewHarness(t)
	cfg := &config.Config{
		Fetch: config.FetchConfig{
			Concurrency:     config.DefaultConcurrency,
			Retries:         1,
			MaxPayloadBytes: config.DefaultMaxPayloadBytes,
		},
	}
	client := github.NewRESTClient(
		github.WithBaseURL(h.server.URL),
		github.WithHTTPClient(h.server.Client()),
		github.WithRetries(cfg.Fetch.Retries),
		github.WithMaxPayloadBytes(cfg.Fetch.MaxPayloadBytes),
	)
	return &Env{
		Harness:   h,
		FilterDir: t.TempDir(),
		Notes:     &bytes.Buffer{},
		cfg:       cfg,
		client:    client,
	}
}

// Sync parses the given source tokens and runs the full pipeline.
func (e *Env) Sync(t *testing.T, tokens ...string) *sync.Result {
	t.Helper()
	descriptors, err := source.ParseAll(tokens)
	if err != nil {
		t.Fatalf("parsing sources: %v", err)
	}
	engine := sync.NewEngine(e.cfg, e.client, testutil.Logger(), e.FilterDir, e.Notes)
	result, err := engine.Run(context.Background(), descriptors)
	if err != nil {
		t.Fatalf("sync run: %v", err)
	}
	return result
}
