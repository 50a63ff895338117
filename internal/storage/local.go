package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vizionai/vizion/internal/logging"
)

// Local stores files in a directory served under BaseURL.
type Local struct {
	dir     string
	baseURL string
	log     logging.Logger
}

func NewLocal(dir, baseURL string, log logging.Logger) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("uploads directory is required")
	}
	if log == nil {
		log = logging.Discard()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), log: log}, nil
}

// Dir is the directory the HTTP server serves files from.
func (l *Local) Dir() string { return l.dir }

func (l *Local) Store(_ context.Context, data []byte, name, _ string) (string, error) {
	name = path.Base(name)
	if err := os.WriteFile(filepath.Join(l.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return l.baseURL + "/" + name, nil
}

func (l *Local) Delete(_ context.Context, url string) error {
	if !strings.HasPrefix(url, l.baseURL+"/") {
		return nil
	}
	name := path.Base(url)
	err := os.Remove(filepath.Join(l.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete upload: %w", err)
	}
	l.log.WithField("file", name).Debug("deleted upload")
	return nil
}
