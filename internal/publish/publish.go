package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Publisher stores an encoded calendar under name and reports where it went.
type Publisher interface {
	Publish(ctx context.Context, name string, payload []byte, contentType string) (string, error)
}

// FilePublisher writes calendars into a local directory.
type FilePublisher struct {
	dir string
}

func NewFilePublisher(dir string) *FilePublisher {
	if dir == "" {
		dir = "."
	}
	return &FilePublisher{dir: dir}
}

func (p *FilePublisher) Publish(_ context.Context, name string, payload []byte, _ string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	path := filepath.Join(p.dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("writing calendar: %w", err)
	}
	log.Debug().Str("path", path).Int("bytes", len(payload)).Msg("calendar written")
	return path, nil
}

// checkName refuses names that would escape the target directory or prefix.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid calendar name %q", name)
	}
	return nil
}
