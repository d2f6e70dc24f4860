// Package cache persists the most recent conversation listing per server
// so position and prefix references keep working across CLI invocations.
//
// Entries are JSON, scoped per key and server URL. Default TTL is
// 5 minutes. Disable with OHC_NO_CACHE=1; point OHC_CACHE_REDIS_URL at a
// Redis instance to use it instead of local files.
package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const DefaultTTL = 5 * time.Minute

// Store reads and writes one cache entry. Implementations: FileStore and
// RedisStore.
type Store interface {
	// Get loads the cached value into dst. Returns false on miss
	// (absent, expired, or caching disabled).
	Get(dst any) bool
	// Put writes the value. Silently no-ops on error or when disabled.
	Put(value any)
	// Clear removes the entry.
	Clear()
}

// NewStore picks the backend: Redis when OHC_CACHE_REDIS_URL is set,
// local files otherwise.
func NewStore(dir, key, baseURL string) Store {
	if redisURL := os.Getenv("OHC_CACHE_REDIS_URL"); redisURL != "" {
		if store, err := NewRedisStore(redisURL, key, baseURL, DefaultTTL); err == nil {
			return store
		}
		// Unparseable URL: fall through to files rather than fail the command.
	}
	return NewFileStore(dir, key, baseURL)
}

type entry struct {
	CachedAt time.Time       `json:"cached_at"`
	Value    json.RawMessage `json:"value"`
}

// FileStore keeps one cache entry in a JSON file.
type FileStore struct {
	path string
	ttl  time.Duration
}

// NewFileStore creates a FileStore with the default 5-minute TTL.
// dir is the cache directory (typically from DefaultDir), key the entry
// name (e.g. "listing"), baseURL the server the entry belongs to.
func NewFileStore(dir, key, baseURL string) *FileStore {
	return NewFileStoreWithTTL(dir, key, baseURL, DefaultTTL)
}

// NewFileStoreWithTTL creates a FileStore with a custom TTL.
func NewFileStoreWithTTL(dir, key, baseURL string, ttl time.Duration) *FileStore {
	return &FileStore{
		path: filepath.Join(dir, cacheFilename(key, baseURL)),
		ttl:  ttl,
	}
}

func cacheFilename(key, baseURL string) string {
	hash := sha1.Sum([]byte(baseURL))
	suffix := hex.EncodeToString(hash[:6])
	return fmt.Sprintf("%s_%s.json", sanitizeKey(key), suffix)
}

// Get loads the cached value into dst. Returns false on miss.
func (s *FileStore) Get(dst any) bool {
	if Disabled() {
		return false
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return false
	}
	if time.Since(e.CachedAt) > s.ttl {
		return false
	}
	return json.Unmarshal(e.Value, dst) == nil
}

// Put writes the value to the cache.
func (s *FileStore) Put(value any) {
	if Disabled() {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	data, err := json.Marshal(entry{
		CachedAt: time.Now(),
		Value:    raw,
	})
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return
	}

	// Atomic-ish write: write temp then rename.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return
	}
	_ = os.Rename(tmp, s.path)
}

// Clear removes this cache file.
func (s *FileStore) Clear() {
	_ = os.Remove(s.path)
}

// ClearAll removes all cache files from the directory. For safety, only
// files matching this project's cache filename scheme are removed.
func ClearAll(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !isCacheFilename(e.Name()) {
			continue
		}
		_ = os.Remove(filepath.Join(dir, e.Name()))
	}
}

// DefaultDir returns the platform-appropriate cache directory,
// "$XDG_CACHE_HOME/ohc" or equivalent.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "ohc"), nil
}

// Disabled reports whether caching is turned off via OHC_NO_CACHE.
func Disabled() bool {
	return os.Getenv("OHC_NO_CACHE") != ""
}

func sanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "cache"
	}
	key = strings.ReplaceAll(key, "/", "-")
	key = strings.ReplaceAll(key, "\\", "-")
	return key
}

func isCacheFilename(name string) bool {
	// Expected: "<key>_<12hex>.json"
	if filepath.Ext(name) != ".json" {
		return false
	}
	base := strings.TrimSuffix(name, ".json")
	i := strings.LastIndexByte(base, '_')
	if i <= 0 {
		return false
	}
	suffix := base[i+1:]
	return len(suffix) == 12 && isHex(suffix)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
