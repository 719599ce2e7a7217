// Package session keeps the per-user pipeline state between webhook updates.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/ytget/yt-saver-bot/internal/model"
)

var ErrNotFound = errors.New("session not found")

// DownloadingTTL is the default lifetime of a session with a download in
// flight.
const DownloadingTTL = time.Hour

func downloading(s *model.Session) bool {
	return s.State != nil && s.State.Stage() == model.StageDownloading
}

// lifetime picks the ttl for s: at least busy while a download is in flight.
func lifetime(s *model.Session, ttl, busy time.Duration) time.Duration {
	if downloading(s) && ttl > 0 && busy > ttl {
		return busy
	}
	return ttl
}

// Store persists sessions by user id. Implementations return copies; callers
// own the returned value and must Save it to publish changes.
type Store interface {
	Load(ctx context.Context, id int64) (*model.Session, error)
	Save(ctx context.Context, s *model.Session) error
	Delete(ctx context.Context, id int64) error
}

// LoadOrNew returns the stored session or a fresh idle one.
func LoadOrNew(ctx context.Context, st Store, id, chatID int64) (*model.Session, error) {
	s, err := st.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return model.NewSession(id, chatID), nil
	}
	if err != nil {
		return nil, err
	}
	if chatID != 0 {
		s.ChatID = chatID
	}
	return s, nil
}
