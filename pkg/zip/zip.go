// Package zip bundles generated media files into one downloadable archive.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"
)

// Asset is one file in a bundle.
type Asset struct {
	Filename string
	MIME     string
	Data     []byte
	Modified time.Time
}

// Archive writes the assets into an in-memory zip. Duplicate filenames get a
// numeric suffix before the extension instead of clobbering the earlier entry.
func Archive(assets []Asset) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	seen := make(map[string]int)
	for _, asset := range assets {
		name := dedupe(asset.Filename, seen[asset.Filename])
		seen[asset.Filename]++
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: asset.Modified}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("zip: add %s: %w", name, err)
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: finalize: %w", err)
	}
	return buf.Bytes(), nil
}

func dedupe(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n, ext)
}
