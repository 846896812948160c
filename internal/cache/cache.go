// Package cache implements the content-addressed Result Cache of
// spec.md section 4.3: one file per fingerprint, written atomically
// via write-to-temp-then-rename so readers never observe a partial
// file.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
)

// Cache is rooted at base_dir/.desipipe/cache, per spec.md section 6 --
// shared across every queue in that base_dir (an explicit resolution
// of the "per-queue or process-global" Open Question).
type Cache struct {
	dir string
}

func Open(baseDir string) (*Cache, error) {
	dir := filepath.Join(baseDir, ".desipipe", "cache")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cache: mkdir %s: %w", dir, err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) path(fingerprint string) string {
	return filepath.Join(c.dir, fingerprint+".result")
}

// Has reports whether a result is already cached for fingerprint.
func (c *Cache) Has(fingerprint string) bool {
	_, err := os.Stat(c.path(fingerprint))
	return err == nil
}

// Put writes payload under fingerprint atomically. Per the append-only
// invariant of spec.md section 3, a second Put for the same
// fingerprint is a harmless no-op: re-computation for an unchanged
// fingerprint must produce a byte-identical payload, so skip-on-hit is
// the cheaper and equally correct choice.
func (c *Cache) Put(fingerprint string, payload []byte) error {
	if c.Has(fingerprint) {
		return nil
	}
	dst := c.path(fingerprint)
	tmp, err := os.CreateTemp(c.dir, "tmp-*")
	if err != nil {
		return fmt.Errorf("cache: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cache: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cache: rename: %w", err)
	}
	return nil
}

// Get reads back the payload stored under fingerprint. A caller that
// fails to deserialize the returned bytes should treat this as the
// CacheCorrupt condition of spec.md section 7 and re-run the task
// rather than erroring out of the cache layer itself.
func (c *Cache) Get(fingerprint string) ([]byte, error) {
	b, err := os.ReadFile(c.path(fingerprint))
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", fingerprint, err)
	}
	return b, nil
}
