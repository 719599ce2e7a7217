// Package pipeline drives the per-user download flow: it turns inbound chat
// events into session transitions and offloads probes and downloads to
// worker pools.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ytget/yt-saver-bot/internal/credentials"
	"github.com/ytget/yt-saver-bot/internal/delivery"
	"github.com/ytget/yt-saver-bot/internal/download"
	"github.com/ytget/yt-saver-bot/internal/format"
	"github.com/ytget/yt-saver-bot/internal/logging"
	"github.com/ytget/yt-saver-bot/internal/model"
	"github.com/ytget/yt-saver-bot/internal/session"
	"github.com/ytget/yt-saver-bot/internal/worker"
)

// Commands understood by the bot.
const (
	CmdStart   = "start"
	CmdHelp    = "help"
	CmdCookies = "cookies"
	CmdCancel  = "cancel"
	CmdHistory = "history"
)

const historyLimit = 5

var timeNow = time.Now

// Deps are the collaborators of a Controller. History and Limiter may be nil.
type Deps struct {
	Transport   Transport
	Sessions    session.Store
	Credentials credentials.Store
	Resolver    download.MetadataResolver
	Fetcher     download.Fetcher
	Gate        *delivery.Gate
	History     HistoryReader
	Probes      Submitter
	Downloads   Submitter
	Limiter     RateLimiter
	Log         logging.Logger

	MaxCookieBytes int64
}

// Controller is the pipeline state machine.
type Controller struct {
	Deps
	locks *keyedLocks
}

// New creates a controller.
func New(d Deps) *Controller {
	if d.Log == nil {
		d.Log = logging.Nop{}
	}
	if d.MaxCookieBytes <= 0 {
		d.MaxCookieBytes = credentials.DefaultMaxBytes
	}
	if d.Gate == nil {
		d.Gate = delivery.NewGate(delivery.DefaultMaxBytes, d.Log)
	}
	return &Controller{Deps: d, locks: newKeyedLocks()}
}

// Handle processes one inbound event. Long work is submitted to the pools;
// Handle itself only performs state transitions and short transport calls.
func (c *Controller) Handle(ctx context.Context, ev model.Event) error {
	log := c.Log.With("user", ev.UserID, "kind", ev.Kind.String())

	if c.Limiter != nil && !c.Limiter.Allow(ev.UserID) {
		log.Debug(ctx, "rate limited")
		if ev.Kind == model.EventCallback {
			c.answer(ctx, ev.CallbackID, MsgSlowDown)
		} else {
			c.reply(ctx, ev.ChatID, MsgSlowDown)
		}
		return nil
	}

	unlock := c.locks.Lock(ev.UserID)
	defer unlock()

	sess, err := session.LoadOrNew(ctx, c.Sessions, ev.UserID, ev.ChatID)
	if err != nil {
		log.Error(ctx, "session load failed", "error", err)
		c.reply(ctx, ev.ChatID, MsgDownloadFailed)
		return fmt.Errorf("load session: %w", err)
	}
	before := sess.Version

	switch ev.Kind {
	case model.EventCommand:
		c.onCommand(ctx, sess, ev)
	case model.EventText:
		c.onText(ctx, sess, ev)
	case model.EventDocument:
		c.onDocument(ctx, sess, ev)
	case model.EventCallback:
		c.onCallback(ctx, sess, ev)
	default:
		return nil
	}

	if sess.Version == before {
		return nil
	}
	if err := c.Sessions.Save(ctx, sess); err != nil {
		log.Error(ctx, "session save failed", "error", err)
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (c *Controller) onCommand(ctx context.Context, sess *model.Session, ev model.Event) {
	_, downloading := sess.State.(model.Downloading)

	switch ev.Command {
	case CmdStart:
		c.reply(ctx, sess.ChatID, MsgGreeting)
	case CmdHelp:
		c.reply(ctx, sess.ChatID, MsgHelp)
	case CmdCookies:
		if downloading {
			c.reply(ctx, sess.ChatID, MsgAlreadyDownloading)
			return
		}
		sess.Transition(model.AwaitingCredentials{})
		c.reply(ctx, sess.ChatID, MsgCookiesPrompt)
	case CmdCancel:
		if downloading {
			c.reply(ctx, sess.ChatID, MsgCannotCancel)
			return
		}
		if url := sess.PendingURL(); url != "" {
			c.Log.Info(ctx, "pending link dropped", "user", sess.ID, "stage", sess.State.Stage(), "url", url)
		}
		sess.Transition(model.Idle{})
		c.reply(ctx, sess.ChatID, MsgCancelled)
	case CmdHistory:
		c.reply(ctx, sess.ChatID, c.historyText(ctx, sess.ID))
	default:
		c.reply(ctx, sess.ChatID, MsgHelp)
	}
}

func (c *Controller) onText(ctx context.Context, sess *model.Session, ev model.Event) {
	target := extractURL(ev.Text)
	if target == "" {
		c.reply(ctx, sess.ChatID, MsgNotALink)
		return
	}
	if _, ok := sess.State.(model.Downloading); ok {
		c.reply(ctx, sess.ChatID, MsgAlreadyDownloading)
		return
	}
	c.startResolve(ctx, sess, target)
}

// startResolve bumps the session version and offloads the probe. A result is
// applied only if the version is still current when it arrives.
func (c *Controller) startResolve(ctx context.Context, sess *model.Session, target string) {
	prev, prevVersion := sess.State, sess.Version
	sess.Transition(model.Idle{})
	version := sess.Version
	userID, chatID := sess.ID, sess.ChatID

	err := c.Probes.Submit(c.guard(userID, version, func(ctx context.Context) {
		c.resolveTask(ctx, userID, chatID, target, version)
	}))
	if err != nil {
		// a rejected link leaves the session untouched
		sess.State, sess.Version = prev, prevVersion
		c.Log.Warn(ctx, "probe rejected", "user", userID, "error", err)
		c.reply(ctx, chatID, MsgBusy)
		return
	}
	c.reply(ctx, chatID, MsgFetching)
}

func (c *Controller) resolveTask(ctx context.Context, userID, chatID int64, target string, version uint64) {
	cred := c.credential(ctx, userID)
	meta, err := c.Resolver.Resolve(ctx, target, cred)

	unlock := c.locks.Lock(userID)
	defer unlock()

	sess, ok := c.current(ctx, userID, version)
	if !ok {
		c.Log.Debug(ctx, "stale probe result discarded", "user", userID, "url", target)
		return
	}

	switch {
	case err == nil:
		c.promptQuality(ctx, sess, *meta)
	case model.IsKind(err, model.KindCredentialsRequired):
		c.Log.Info(ctx, "source needs credentials", "user", userID, "url", target)
		url := target
		if meta != nil && meta.WebpageURL != "" {
			url = meta.WebpageURL
		}
		sess.Transition(model.AwaitingCredentials{URL: url})
		c.reply(ctx, chatID, MsgCredentialsNeeded)
	default:
		c.Log.Warn(ctx, "resolution failed", "user", userID, "url", target, "error", err)
		sess.Transition(model.Idle{})
		c.reply(ctx, chatID, MsgResolveFailed)
	}

	c.save(ctx, sess)
}

func (c *Controller) promptQuality(ctx context.Context, sess *model.Session, meta model.Metadata) {
	caption := promptCaption(meta)
	buttons := qualityButtons()

	ref, err := c.Transport.SendPrompt(ctx, sess.ChatID, meta.Thumbnail, caption, buttons)
	if err != nil && meta.Thumbnail != "" {
		c.Log.Warn(ctx, "thumbnail prompt failed, falling back to text", "user", sess.ID, "error", err)
		ref, err = c.Transport.SendPrompt(ctx, sess.ChatID, "", caption, buttons)
	}
	if err != nil {
		c.Log.Error(ctx, "quality prompt failed", "user", sess.ID, "error", err)
		sess.Transition(model.Idle{})
		return
	}

	sess.Transition(model.AwaitingQuality{URL: meta.WebpageURL, Metadata: meta, Prompt: ref})
}

func (c *Controller) onCallback(ctx context.Context, sess *model.Session, ev model.Event) {
	pending, ok := sess.State.(model.AwaitingQuality)
	if !ok || pending.URL == "" || (!pending.Prompt.IsZero() && pending.Prompt.MessageID != ev.MessageID) {
		text := MsgExpired
		if _, busy := sess.State.(model.Downloading); busy {
			text = MsgAlreadyDownloading
		}
		c.Log.Debug(ctx, "invalid action",
			"user", sess.ID,
			"stage", sess.State.Stage(),
			"error", model.NewError(model.KindInvalidAction, "no pending selection", nil))
		c.answer(ctx, ev.CallbackID, text)
		return
	}
	c.answer(ctx, ev.CallbackID, "")

	quality := model.ParseQuality(ev.CallbackData)
	job := model.Downloading{
		URL:      pending.URL,
		Quality:  quality,
		JobID:    download.NewTaskID(),
		Metadata: pending.Metadata,
		Prompt:   pending.Prompt,
	}
	sess.Transition(job)
	version := sess.Version
	userID, chatID := sess.ID, sess.ChatID

	err := c.Downloads.Submit(c.guard(userID, version, func(ctx context.Context) {
		c.downloadTask(ctx, userID, chatID, job, version)
	}))
	if err != nil {
		c.Log.Warn(ctx, "download rejected", "user", userID, "error", err)
		sess.Transition(pending)
		c.reply(ctx, chatID, MsgBusy)
		return
	}

	c.Log.Info(ctx, "download queued", "user", userID, "job", job.JobID, "url", job.URL, "quality", quality)
	c.status(ctx, chatID, job.Prompt, MsgDownloading)
}

func (c *Controller) downloadTask(ctx context.Context, userID, chatID int64, job model.Downloading, version uint64) {
	meta := job.Metadata
	req := download.Request{
		TaskID:     job.JobID,
		UserID:     userID,
		URL:        job.URL,
		Format:     format.Select(job.Quality),
		Quality:    job.Quality,
		SourceID:   meta.SourceID(),
		Title:      meta.Title,
		Platform:   meta.Platform,
		Restricted: meta.Restricted,
		Credential: c.credential(ctx, userID),
	}

	art, err := c.Fetcher.Fetch(ctx, req)
	if err == nil {
		err = c.Gate.Deliver(ctx, art, func(ctx context.Context, a *model.Artifact) error {
			return c.Transport.SendVideo(ctx, chatID, a.Path, videoCaption(meta))
		})
		c.Fetcher.Finish(job.JobID, err)
	}

	var next model.State = model.Idle{}
	switch {
	case err == nil:
		c.Log.Info(ctx, "download delivered", "user", userID, "job", job.JobID, "size", art.Size)
		c.status(ctx, chatID, job.Prompt, MsgDone)
	case model.IsKind(err, model.KindCredentialsRequired):
		c.Log.Info(ctx, "download needs credentials", "user", userID, "job", job.JobID)
		next = model.AwaitingCredentials{URL: job.URL}
		c.status(ctx, chatID, job.Prompt, MsgCredentialsNeeded)
	default:
		c.Log.Warn(ctx, "download failed", "user", userID, "job", job.JobID, "kind", model.KindOf(err), "error", err)
		c.status(ctx, chatID, job.Prompt, failureMessage(model.KindOf(err), c.Gate.Limit()))
	}

	c.settle(ctx, userID, version, next)
}

func (c *Controller) onDocument(ctx context.Context, sess *model.Session, ev model.Event) {
	if !strings.EqualFold(filepath.Ext(ev.FileName), ".txt") || ev.FileSize > c.MaxCookieBytes {
		c.reply(ctx, sess.ChatID, MsgCookiesInvalid)
		return
	}

	data, err := c.Transport.FetchDocument(ctx, ev.FileID)
	if err != nil {
		c.Log.Warn(ctx, "document fetch failed", "user", sess.ID, "error", err)
		c.reply(ctx, sess.ChatID, MsgCookiesFailed)
		return
	}

	if _, err := c.Credentials.Put(ctx, sess.ID, ev.FileName, data); err != nil {
		if errors.Is(err, credentials.ErrInvalidFormat) {
			c.Log.Info(ctx, "cookie file rejected", "user", sess.ID, "error", err)
			c.reply(ctx, sess.ChatID, MsgCookiesInvalid)
			return
		}
		c.Log.Error(ctx, "cookie file store failed", "user", sess.ID, "error", err)
		c.reply(ctx, sess.ChatID, MsgCookiesFailed)
		return
	}
	c.Log.Info(ctx, "cookies stored", "user", sess.ID, "bytes", len(data))
	c.reply(ctx, sess.ChatID, MsgCookiesSaved)

	switch st := sess.State.(type) {
	case model.AwaitingCredentials:
		if st.URL != "" {
			c.startResolve(ctx, sess, st.URL)
			return
		}
		sess.Transition(model.Idle{})
	}
}

// guard recovers a panicking task and returns its session to Idle.
func (c *Controller) guard(userID int64, version uint64, fn worker.Task) worker.Task {
	return func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				c.Log.Error(ctx, "pipeline task panicked", "user", userID, "panic", r)
				c.settle(context.WithoutCancel(ctx), userID, version, model.Idle{})
			}
		}()
		fn(ctx)
	}
}

// settle moves the session to next if no newer transition happened meanwhile.
func (c *Controller) settle(ctx context.Context, userID int64, version uint64, next model.State) {
	unlock := c.locks.Lock(userID)
	defer unlock()

	sess, ok := c.current(ctx, userID, version)
	if !ok {
		return
	}
	sess.Transition(next)
	c.save(ctx, sess)
}

// current loads the session and reports whether it is still at version.
func (c *Controller) current(ctx context.Context, userID int64, version uint64) (*model.Session, bool) {
	sess, err := c.Sessions.Load(ctx, userID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			c.Log.Error(ctx, "session load failed", "user", userID, "error", err)
		}
		return nil, false
	}
	return sess, sess.Version == version
}

func (c *Controller) save(ctx context.Context, sess *model.Session) {
	if err := c.Sessions.Save(ctx, sess); err != nil {
		c.Log.Error(ctx, "session save failed", "user", sess.ID, "error", err)
	}
}

func (c *Controller) credential(ctx context.Context, userID int64) *model.CredentialRef {
	cred, err := c.Credentials.Get(ctx, userID)
	if err != nil {
		c.Log.Warn(ctx, "credential lookup failed", "user", userID, "error", err)
		return nil
	}
	return cred
}

func (c *Controller) historyText(ctx context.Context, userID int64) string {
	if c.History == nil {
		return MsgNoHistory
	}
	records, err := c.History.Recent(ctx, userID, historyLimit)
	if err != nil {
		c.Log.Error(ctx, "history lookup failed", "user", userID, "error", err)
		return MsgHistoryFailed
	}
	return historyMessage(records, timeNow())
}

// status edits the prompt when there is one, otherwise sends a new message.
func (c *Controller) status(ctx context.Context, chatID int64, ref model.MessageRef, text string) {
	if !ref.IsZero() {
		err := c.Transport.Edit(ctx, ref, text)
		if err == nil {
			return
		}
		c.Log.Warn(ctx, "edit failed", "chat", chatID, "error", err)
	}
	c.reply(ctx, chatID, text)
}

func (c *Controller) reply(ctx context.Context, chatID int64, text string) {
	if _, err := c.Transport.SendText(ctx, chatID, text); err != nil {
		c.Log.Warn(ctx, "send failed", "chat", chatID, "error", err)
	}
}

func (c *Controller) answer(ctx context.Context, callbackID, text string) {
	if callbackID == "" {
		return
	}
	if err := c.Transport.AnswerCallback(ctx, callbackID, text); err != nil {
		c.Log.Warn(ctx, "callback answer failed", "error", err)
	}
}
