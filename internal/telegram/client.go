// Package telegram adapts the Bot API to the pipeline transport.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ytget/yt-saver-bot/internal/credentials"
	"github.com/ytget/yt-saver-bot/internal/logging"
	"github.com/ytget/yt-saver-bot/internal/model"
)

// Timeouts
const (
	DefaultFetchTimeout = 30 * time.Second
)

var ErrDocumentTooLarge = errors.New("document exceeds size limit")

// botAPI is the subset of *tgbotapi.BotAPI the client uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Client sends messages and media through the Bot API.
type Client struct {
	api         botAPI
	http        *http.Client
	maxDocBytes int64
	log         logging.Logger
}

// NewClient authenticates with the Bot API using token.
func NewClient(token string, maxDocBytes int64, log logging.Logger) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot api: %w", err)
	}
	return newClient(api, &http.Client{Timeout: DefaultFetchTimeout}, maxDocBytes, log), nil
}

func newClient(api botAPI, hc *http.Client, maxDocBytes int64, log logging.Logger) *Client {
	if log == nil {
		log = logging.Nop{}
	}
	if maxDocBytes <= 0 {
		maxDocBytes = credentials.DefaultMaxBytes
	}
	return &Client{api: api, http: hc, maxDocBytes: maxDocBytes, log: log}
}

// SetWebhook registers url as the update endpoint.
func (c *Client) SetWebhook(ctx context.Context, url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if _, err := c.api.Request(wh); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	c.log.Info(ctx, "webhook registered", "url", redact(url))
	return nil
}

func (c *Client) SendText(_ context.Context, chatID int64, text string) (model.MessageRef, error) {
	msg, err := c.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return model.MessageRef{}, fmt.Errorf("send message: %w", err)
	}
	return model.MessageRef{ChatID: chatID, MessageID: msg.MessageID}, nil
}

func (c *Client) SendPrompt(_ context.Context, chatID int64, photoURL, text string, buttons []model.Button) (model.MessageRef, error) {
	markup := keyboard(buttons)

	if photoURL != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photoURL))
		photo.Caption = text
		photo.ReplyMarkup = markup
		msg, err := c.api.Send(photo)
		if err != nil {
			return model.MessageRef{}, fmt.Errorf("send photo: %w", err)
		}
		return model.MessageRef{ChatID: chatID, MessageID: msg.MessageID, Caption: true}, nil
	}

	m := tgbotapi.NewMessage(chatID, text)
	m.ReplyMarkup = markup
	msg, err := c.api.Send(m)
	if err != nil {
		return model.MessageRef{}, fmt.Errorf("send prompt: %w", err)
	}
	return model.MessageRef{ChatID: chatID, MessageID: msg.MessageID}, nil
}

// Edit replaces the text, or the caption for media messages. The inline
// keyboard is dropped.
func (c *Client) Edit(_ context.Context, ref model.MessageRef, text string) error {
	var req tgbotapi.Chattable
	if ref.Caption {
		req = tgbotapi.NewEditMessageCaption(ref.ChatID, ref.MessageID, text)
	} else {
		req = tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	}
	if _, err := c.api.Request(req); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// SendVideo uploads the file at path, streaming it from disk.
func (c *Client) SendVideo(_ context.Context, chatID int64, path, caption string) error {
	v := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(path))
	v.Caption = caption
	v.SupportsStreaming = true
	if _, err := c.api.Send(v); err != nil {
		return fmt.Errorf("send video: %w", err)
	}
	return nil
}

func (c *Client) AnswerCallback(_ context.Context, callbackID, text string) error {
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// FetchDocument downloads an uploaded file, refusing anything above the
// configured limit.
func (c *Client) FetchDocument(ctx context.Context, fileID string) ([]byte, error) {
	link, err := c.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", redactErr(err, link))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxDocBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > c.maxDocBytes {
		return nil, ErrDocumentTooLarge
	}
	return data, nil
}

func keyboard(buttons []model.Button) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}
