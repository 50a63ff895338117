// Package storage persists uploaded images and returns their public URLs.
package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/vizionai/vizion/internal/config"
	"github.com/vizionai/vizion/internal/logging"
)

// Storage writes objects and removes them by public URL. Delete is
// idempotent: removing a missing or foreign URL is not an error.
type Storage interface {
	Store(ctx context.Context, data []byte, name, contentType string) (string, error)
	Delete(ctx context.Context, url string) error
}

// New builds the backend named by cfg.Backend ("local" or "s3").
func New(ctx context.Context, cfg config.StorageConfig, log logging.Logger) (Storage, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "local":
		return NewLocal(cfg.UploadsDir, cfg.PublicBaseURL, log)
	case "s3", "r2", "gcs":
		return NewS3(ctx, cfg.S3, log)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// ObjectName returns a unique file name with the given extension.
func ObjectName(ext string) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "png"
	}
	return fmt.Sprintf("%d-%s.%s", time.Now().UnixMilli(), hex.EncodeToString(b), ext)
}
