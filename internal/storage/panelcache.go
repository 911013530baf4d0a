package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PanelCache persists downloaded panel images onto the local filesystem,
// grouped per comic ID so history deletes can cascade to every cached image
// of that comic.
type PanelCache struct {
	basePath string
}

// NewPanelCache initializes a PanelCache rooted at basePath.
func NewPanelCache(basePath string) (*PanelCache, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &PanelCache{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (c *PanelCache) BasePath() string {
	if c == nil {
		return ""
	}
	return c.basePath
}

// Write stores image bytes under the comic's directory and returns the
// cache-relative reference. Names are cleaned to prevent directory traversal.
func (c *PanelCache) Write(ctx context.Context, comicID, name string, data []byte) (string, error) {
	if c == nil {
		return "", errors.New("storage: no cache configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref, err := cacheRef(comicID, name)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(c.basePath, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write image: %w", err)
	}
	return ref, nil
}

// Read returns the bytes previously stored under the reference.
func (c *PanelCache) Read(ctx context.Context, ref string) ([]byte, error) {
	if c == nil {
		return nil, errors.New("storage: no cache configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := sanitizeKey(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(c.basePath, filepath.FromSlash(clean)))
	if err != nil {
		return nil, fmt.Errorf("storage: read image: %w", err)
	}
	return data, nil
}

// List returns the references of every cached image of the comic, in
// lexical order. A comic with nothing cached yields an empty slice.
func (c *PanelCache) List(ctx context.Context, comicID string) ([]string, error) {
	if c == nil {
		return nil, errors.New("storage: no cache configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := sanitizeKey(comicID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(c.basePath, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: list comic images: %w", err)
	}
	refs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		refs = append(refs, key+"/"+entry.Name())
	}
	return refs, nil
}

// Delete removes every cached image of the comic. Missing directories are
// not an error.
func (c *PanelCache) Delete(ctx context.Context, comicID string) error {
	if c == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := sanitizeKey(comicID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(c.basePath, filepath.FromSlash(key))); err != nil {
		return fmt.Errorf("storage: delete comic images: %w", err)
	}
	return nil
}

// DeleteAll clears the whole cache, keeping the root directory.
func (c *PanelCache) DeleteAll(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(c.basePath)
	if err != nil {
		return fmt.Errorf("storage: list cache: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(c.basePath, entry.Name())); err != nil {
			return fmt.Errorf("storage: clear cache: %w", err)
		}
	}
	return nil
}

func cacheRef(comicID, name string) (string, error) {
	id, err := sanitizeKey(comicID)
	if err != nil {
		return "", err
	}
	if strings.Contains(id, "/") {
		return "", errors.New("storage: invalid comic id")
	}
	file, err := sanitizeKey(name)
	if err != nil {
		return "", err
	}
	return id + "/" + file, nil
}

// sanitizeKey normalizes a key and prevents escaping the cache root.
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
