package pipeline

import (
	"context"

	"github.com/ytget/yt-saver-bot/internal/history"
	"github.com/ytget/yt-saver-bot/internal/model"
	"github.com/ytget/yt-saver-bot/internal/worker"
)

// Transport is the chat side of the pipeline.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string) (model.MessageRef, error)
	// SendPrompt sends a photo with caption and buttons, or a text message
	// with buttons when photoURL is empty.
	SendPrompt(ctx context.Context, chatID int64, photoURL, text string, buttons []model.Button) (model.MessageRef, error)
	Edit(ctx context.Context, ref model.MessageRef, text string) error
	SendVideo(ctx context.Context, chatID int64, path, caption string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	FetchDocument(ctx context.Context, fileID string) ([]byte, error)
}

// Submitter accepts background work.
type Submitter interface {
	Submit(t worker.Task) error
}

// RateLimiter admits events per user.
type RateLimiter interface {
	Allow(userID int64) bool
}

// HistoryReader lists finished downloads.
type HistoryReader interface {
	Recent(ctx context.Context, userID int64, limit int) ([]history.Record, error)
}
