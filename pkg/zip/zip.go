// Package zip bundles a finished comic into a single downloadable archive.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// Entry is one file inside the archive.
type Entry struct {
	Name string
	Data []byte
}

// Archive writes the entries into an in-memory zip. Entry names are used
// verbatim, so callers are responsible for keeping them unique.
func Archive(entries []Entry) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, entry := range entries {
		w, err := zw.Create(entry.Name)
		if err != nil {
			return nil, fmt.Errorf("zip: create %s: %w", entry.Name, err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", entry.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close: %w", err)
	}
	return buf.Bytes(), nil
}
