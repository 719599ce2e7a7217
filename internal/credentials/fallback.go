package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ytget/yt-saver-bot/internal/model"
)

type withDefault struct {
	Store
	path string
}

// WithDefault wraps s so that Get falls back to the operator-provided cookie
// file at path for users without their own jar. An empty path or a missing
// file disables the fallback.
func WithDefault(s Store, path string) Store {
	if path == "" {
		return s
	}
	return &withDefault{Store: s, path: path}
}

func (w *withDefault) Get(ctx context.Context, userID int64) (*model.CredentialRef, error) {
	ref, err := w.Store.Get(ctx, userID)
	if err != nil || ref != nil {
		return ref, err
	}

	_, err = os.Stat(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat default cookie file: %w", err)
	}
	return &model.CredentialRef{UserID: userID, Path: w.path, Shared: true}, nil
}
