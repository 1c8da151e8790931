// Package media abstracts the external file storage the core schedules
// deletions against when a message with attachments is removed.
package media

import (
	"context"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Remover deletes stored media files. Implementations must treat
// missing files as already removed.
type Remover interface {
	Remove(ctx context.Context, urls ...string) error
}

// NopRemover ignores all removals. Used when no file storage is
// configured.
type NopRemover struct{}

func (NopRemover) Remove(ctx context.Context, urls ...string) error { return nil }

// DirRemover deletes files beneath a local media directory, mapping
// URL paths onto it. Suitable for single-host deployments.
type DirRemover struct {
	Root   string
	Logger zerolog.Logger
}

// Remove deletes each referenced file. Missing files are not errors.
func (d DirRemover) Remove(ctx context.Context, urls ...string) error {
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			d.Logger.Warn().Str("url", raw).Msg("unparseable media url, skipping")
			continue
		}
		name := filepath.Base(u.Path)
		if name == "." || name == "/" {
			continue
		}
		path := filepath.Join(d.Root, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
