package filter

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// Extension is the item filter file extension the game recognizes.
const Extension = ".filter"

// maxFileBytes caps a single decompressed filter file (20 MiB), guarding
// against decompression bombs inside an otherwise small archive.
const maxFileBytes = 20 << 20

// File is one filter file extracted from a source archive. Name is the
// basename only; archives nest content under a top-level directory that has
// no meaning for installation.
type File struct {
	Name string
	Data []byte
}

// IsFilterFile returns true if the path names an item filter file.
func IsFilterFile(p string) bool {
	return strings.EqualFold(path.Ext(p), Extension)
}

// Extract reads a zip archive and returns every filter file in it, sorted by
// name so repeated runs over the same archive produce identical output. An
// archive without a single filter file is an error.
func Extract(archive []byte) ([]File, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	var files []File
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() || !IsFilterFile(entry.Name) {
			continue
		}

		data, err := readEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", entry.Name, err)
		}

		files = append(files, File{Name: path.Base(entry.Name), Data: data})
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("archive contains no %s files", Extension)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func readEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rc.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(rc, maxFileBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxFileBytes {
		return nil, fmt.Errorf("entry exceeds %d bytes", maxFileBytes)
	}
	return data, nil
}
