// Package delivery enforces the transport upload ceiling and guarantees that
// artifacts are removed after every delivery attempt.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/ytget/yt-saver-bot/internal/logging"
	"github.com/ytget/yt-saver-bot/internal/model"
)

// DefaultMaxBytes is the Bot API upload ceiling for bots.
const DefaultMaxBytes int64 = 50 * 1024 * 1024

var ErrTooLarge = errors.New("file exceeds upload limit")

// UploadFunc sends the artifact to the user.
type UploadFunc func(ctx context.Context, art *model.Artifact) error

// Check returns the size of the file at path, or ErrTooLarge when it exceeds
// limit.
func Check(path string, limit int64) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat artifact: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("artifact %s is a directory", path)
	}
	if info.Size() > limit {
		return info.Size(), fmt.Errorf("%w: %s > %s", ErrTooLarge,
			humanize.IBytes(uint64(info.Size())), humanize.IBytes(uint64(limit)))
	}
	return info.Size(), nil
}

type Gate struct {
	limit int64
	log   logging.Logger
}

func NewGate(limit int64, log logging.Logger) *Gate {
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &Gate{limit: limit, log: log}
}

// Limit returns the configured ceiling in bytes.
func (g *Gate) Limit() int64 { return g.limit }

// Deliver checks the artifact size, uploads it and removes the file whatever
// the outcome.
func (g *Gate) Deliver(ctx context.Context, art *model.Artifact, upload UploadFunc) error {
	defer g.remove(ctx, art.Path)

	size, err := Check(art.Path, g.limit)
	if errors.Is(err, ErrTooLarge) {
		return model.NewError(model.KindTooLarge, humanize.IBytes(uint64(size)), err)
	}
	if err != nil {
		return model.NewError(model.KindAcquisitionFailed, "artifact unreadable", err)
	}
	art.Size = size

	if err := upload(ctx, art); err != nil {
		return model.NewError(model.KindAcquisitionFailed, "upload failed", err)
	}
	return nil
}

func (g *Gate) remove(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		g.log.Warn(ctx, "artifact cleanup failed", "path", path, "error", err)
	}
}
