// Package gamedir locates the directory the game reads item filters from.
// Under Steam/Proton the game's documents folder lives inside a per-app
// compatibility prefix; the prefix location varies with how Steam was
// installed, so several well-known roots are probed in order.
package gamedir

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	// defaultAppID is the Steam app id of Path of Exile 2.
	defaultAppID = "2694490"

	// prefixDocs is the documents folder inside a Proton prefix.
	prefixDocs = "pfx/drive_c/users/steamuser/My Documents/My Games"

	// gameFolder is the folder the game expects filters in.
	gameFolder = "Path of Exile 2"
)

// Locate probes the candidate compatibility prefixes and returns the filter
// directory of the first one that exists, creating the game folder beneath
// it if needed.
func Locate(logger *slog.Logger) (string, error) {
	appID := os.Getenv("STEAM_COMPAT_APP_ID")
	if appID == "" {
		appID = os.Getenv("SteamGameId")
	}
	if appID == "" {
		appID = defaultAppID
	}

	for _, root := range candidateRoots(appID) {
		docs := filepath.Join(root, prefixDocs)
		logger.Debug("checking candidate game directory", "path", docs)

		if info, err := os.Stat(docs); err != nil || !info.IsDir() {
			continue
		}

		dir := filepath.Join(docs, gameFolder)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Warn("failed to create game data directory", "path", dir, "error", err)
			continue
		}

		logger.Debug("found game directory", "path", dir)
		return dir, nil
	}

	return "", fmt.Errorf("no Steam compatibility prefix found for app %s", appID)
}

// candidateRoots returns the prefix roots to probe, deduplicated, in
// precedence order.
func candidateRoots(appID string) []string {
	var roots []string

	if p := os.Getenv("STEAM_COMPAT_DATA_PATH"); p != "" {
		roots = append(roots, p)
	}

	for _, lib := range splitPathList(os.Getenv("STEAM_COMPAT_LIBRARY_PATHS")) {
		roots = append(roots, filepath.Join(lib, "compatdata", appID))
	}

	if p := os.Getenv("STEAM_BASE_FOLDER"); p != "" {
		roots = append(roots, filepath.Join(p, "steamapps/compatdata", appID))
	}

	for _, dataDir := range splitPathList(os.Getenv("XDG_DATA_DIRS")) {
		roots = append(roots, filepath.Join(dataDir, "Steam/steamapps/compatdata", appID))
	}

	if home := os.Getenv("HOME"); home != "" {
		roots = append(roots, filepath.Join(home, ".local/share/Steam/steamapps/compatdata", appID))
	}

	seen := make(map[string]bool, len(roots))
	unique := roots[:0]
	for _, r := range roots {
		if !seen[r] {
			seen[r] = true
			unique = append(unique, r)
		}
	}
	return unique
}

// splitPathList splits a colon-separated path list, dropping empty entries.
func splitPathList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, string(os.PathListSeparator)) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
