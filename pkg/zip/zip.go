// Package zip packages completed artifacts into a single downloadable
// archive.
package zip

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
)

// ErrEmptyArchive indicates an archive was requested with nothing to
// include.
var ErrEmptyArchive = errors.New("zip: no entries to archive")

// Entry is one archive member: the original source name and the artifact
// bytes.
type Entry struct {
	Name string
	Data []byte
}

// Build packages entries into a zip archive. Each member is named
// deterministically as prefix plus the entry's source name.
func Build(prefix string, entries []Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyArchive
	}
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, entry := range entries {
		w, err := zw.Create(prefix + entry.Name)
		if err != nil {
			return nil, fmt.Errorf("zip: create entry %s: %w", entry.Name, err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("zip: write entry %s: %w", entry.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
