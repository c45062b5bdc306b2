package testutil

import (
	"archive/zip"
	"bytes"
	"log/slog"
	"os"
	"testing"
)

// ZipArchive builds an in-memory zip archive from entry name to content,
// mimicking the layout of GitHub source zipballs (entries nested under a
// top-level directory).
func ZipArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating zip entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("writing zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip archive: %v", err)
	}
	return buf.Bytes()
}

// Logger returns a logger that only surfaces errors during tests.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
