package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
)

// ErrNotFound is returned by Get when no entry exists for the key.
var ErrNotFound = errors.New("cache entry not found")

// Storage defines the interface for cache operations
type Storage interface {
	Get(key string) (*Entry, error)
	Set(key string, content []byte) error
	IsExpired(key string, ttl time.Duration) (bool, error)
}

// Entry represents a cached item with its metadata
type Entry struct {
	Content   []byte    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Age returns how long ago the entry was stored.
func (e *Entry) Age() time.Duration {
	return time.Since(e.Timestamp)
}

// FileStorage implements Storage using the file system. Entries are written
// atomically so a crash never leaves a truncated source behind.
type FileStorage struct {
	baseDir string
}

// NewFileStorage creates a new file-based cache storage
// It ensures the cache directory exists before returning
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("cache directory cannot be empty")
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FileStorage{baseDir: baseDir}, nil
}

// Get retrieves a cached entry by key
func (fs *FileStorage) Get(key string) (*Entry, error) {
	data, err := os.ReadFile(fs.getFilePath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	return &entry, nil
}

// Set stores content in the cache with the current timestamp
func (fs *FileStorage) Set(key string, content []byte) error {
	data, err := json.Marshal(Entry{Content: content, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := renameio.WriteFile(fs.getFilePath(key), data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	return nil
}

// IsExpired checks if a cache entry has exceeded the TTL. A missing entry is expired.
func (fs *FileStorage) IsExpired(key string, ttl time.Duration) (bool, error) {
	entry, err := fs.Get(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("failed to check expiration: %w", err)
	}

	return entry.Age() > ttl, nil
}

// getFilePath generates a file path from a cache key
// The key is hashed to create a safe filename
func (fs *FileStorage) getFilePath(key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(fs.baseDir, hex.EncodeToString(hash[:])+".json")
}

// DeriveKeyFromURL creates a cache key from a source URL
func DeriveKeyFromURL(url string) string {
	return "source:" + url
}
