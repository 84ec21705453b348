package intelligence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CalculateFileSHA256 computes the lowercase hex SHA-256 of a file.
func CalculateFileSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

type digestKey struct {
	path  string
	size  int64
	mtime int64
}

// DigestCache memoizes file digests keyed by path, size and modification
// time, so repeated scans skip rehashing unchanged files.
type DigestCache struct {
	cache *lru.Cache[digestKey, string]
}

// DefaultDigestCacheSize is used when NewDigestCache gets a non-positive size.
const DefaultDigestCacheSize = 65536

func NewDigestCache(size int) (*DigestCache, error) {
	if size <= 0 {
		size = DefaultDigestCacheSize
	}
	c, err := lru.New[digestKey, string](size)
	if err != nil {
		return nil, fmt.Errorf("create digest cache: %w", err)
	}
	return &DigestCache{cache: c}, nil
}

// Digest returns the SHA-256 of path, using the cached value when the file's
// size and mtime are unchanged. A nil cache always hashes.
func (d *DigestCache) Digest(path string, size int64, mtime time.Time) (string, error) {
	if d == nil {
		return CalculateFileSHA256(path)
	}

	key := digestKey{path: path, size: size, mtime: mtime.UnixNano()}
	if sum, ok := d.cache.Get(key); ok {
		return sum, nil
	}
	sum, err := CalculateFileSHA256(path)
	if err != nil {
		return "", err
	}
	d.cache.Add(key, sum)
	return sum, nil
}

// Len returns the number of cached digests.
func (d *DigestCache) Len() int {
	if d == nil {
		return 0
	}
	return d.cache.Len()
}

// Purge drops every cached digest.
func (d *DigestCache) Purge() {
	if d != nil {
		d.cache.Purge()
	}
}
