// Package storage persists generated assets. The filesystem store covers
// development and single-node deployments; storage keys map one-to-one onto
// public URLs under the configured base, so a record's FileURL can always be
// resolved back to its bytes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore writes assets below a base directory and serves them under a
// base URL. Safe for concurrent use; keys are sanitized against traversal.
type FileStore struct {
	basePath string
	baseURL  string
}

// NewFileStore initializes a FileStore rooted at basePath whose keys are
// published under baseURL.
func NewFileStore(basePath, baseURL string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("storage: base url is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, baseURL: baseURL}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	return s.basePath
}

// Write persists the bytes at the given relative key and returns the
// canonicalized storage key.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return cleanKey, nil
}

// Read returns the bytes stored at key. Missing keys surface fs.ErrNotExist.
func (s *FileStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	if err != nil {
		return nil, fmt.Errorf("storage: read file: %w", err)
	}
	return data, nil
}

// Remove deletes the asset at key. Removing a key that does not exist is not
// an error; deletion only has to converge.
func (s *FileStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.basePath, filepath.FromSlash(cleanKey))); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: remove file: %w", err)
	}
	return nil
}

// URL returns the public URL serving the given storage key.
func (s *FileStore) URL(key string) string {
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}

// KeyFromURL resolves a public URL back to its storage key. It reports false
// for URLs outside this store's base.
func (s *FileStore) KeyFromURL(fileURL string) (string, bool) {
	rest, ok := strings.CutPrefix(fileURL, s.baseURL+"/")
	if !ok || rest == "" {
		return "", false
	}
	cleanKey, err := sanitizeKey(rest)
	if err != nil {
		return "", false
	}
	return cleanKey, true
}

// AssetKey builds the canonical storage key for a generation asset:
// job scope, then content type, then the record id with a type-appropriate
// extension.
func AssetKey(jobID, contentType, recordID, mimeType string) string {
	return fmt.Sprintf("%s/%s/%s.%s", jobID, contentType, recordID, ExtensionFor(mimeType))
}

// extensions maps asset MIME types to filename extensions.
var extensions = map[string]string{
	"audio/wav":       "wav",
	"audio/mpeg":      "mp3",
	"video/mp4":       "mp4",
	"application/pdf": "pdf",
	"image/png":       "png",
	"image/jpeg":      "jpg",
	"image/svg+xml":   "svg",
}

// ExtensionFor returns the filename extension for a MIME type, defaulting to
// "bin" for unknown types.
func ExtensionFor(mimeType string) string {
	if ext, ok := extensions[strings.ToLower(strings.TrimSpace(mimeType))]; ok {
		return ext
	}
	return "bin"
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
