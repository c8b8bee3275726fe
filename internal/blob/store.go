// Package blob implements content-addressable filesystem storage for
// screenshot uploads (§4.F step 5 "uploadScreenshot"). Grounded on
// internal/services/crawler/image_storage.go's hash-bucketed on-disk
// layout and dedup-by-hash cache, narrowed from "download arbitrary <img>
// URLs found in HTML" to "persist one data-URI screenshot per scrape".
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
)

// Config configures the on-disk layout and the URL prefix returned to
// callers after a successful upload.
type Config struct {
	BaseDir   string // e.g. "./data/screenshots"
	PublicURL string // prefix prepended to the stored relative path, e.g. "/blobs"
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{BaseDir: "./data/screenshots", PublicURL: "/blobs"}
}

// Store implements transform.BlobStore over the local filesystem, keyed by
// the screenshot's SHA256 so identical screenshots are stored once.
type Store struct {
	cfg    Config
	logger arbor.ILogger

	mu    sync.RWMutex
	cache map[string]string // hash -> relative path
}

// NewStore builds a Store, creating BaseDir if it doesn't exist.
func NewStore(cfg Config, logger arbor.ILogger) (*Store, error) {
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob base dir: %w", err)
	}
	return &Store{cfg: cfg, logger: logger, cache: make(map[string]string)}, nil
}

// Upload decodes a "data:<mime>;base64,<payload>" URI, writes it to a
// hash-bucketed path under BaseDir, and returns a public URL for it.
func (s *Store) Upload(ctx context.Context, dataURI string) (string, error) {
	mime, payload, err := splitDataURI(dataURI)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decode base64 payload: %w", err)
	}

	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	s.mu.RLock()
	existing, cached := s.cache[hash]
	s.mu.RUnlock()
	if cached {
		return s.cfg.PublicURL + "/" + existing, nil
	}

	ext := extensionFor(mime)
	relPath := filepath.Join(hash[:2], hash+ext)
	fullPath := filepath.Join(s.cfg.BaseDir, relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	if err := os.WriteFile(fullPath, raw, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}

	s.mu.Lock()
	s.cache[hash] = relPath
	s.mu.Unlock()

	s.logger.Debug().Str("hash", hash).Int("bytes", len(raw)).Msg("blob: screenshot stored")

	return s.cfg.PublicURL + "/" + filepath.ToSlash(relPath), nil
}

func splitDataURI(dataURI string) (mime string, payload string, err error) {
	if !strings.HasPrefix(dataURI, "data:") {
		return "", "", fmt.Errorf("not a data URI")
	}
	rest := strings.TrimPrefix(dataURI, "data:")
	parts := strings.SplitN(rest, ",", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed data URI")
	}
	header := strings.TrimSuffix(parts[0], ";base64")
	return header, parts[1], nil
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
