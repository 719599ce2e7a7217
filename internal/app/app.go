// Package app wires the bot together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ytget/yt-saver-bot/internal/config"
	"github.com/ytget/yt-saver-bot/internal/convert"
	"github.com/ytget/yt-saver-bot/internal/delivery"
	"github.com/ytget/yt-saver-bot/internal/download"
	"github.com/ytget/yt-saver-bot/internal/history"
	"github.com/ytget/yt-saver-bot/internal/logging"
	"github.com/ytget/yt-saver-bot/internal/model"
	"github.com/ytget/yt-saver-bot/internal/pipeline"
	"github.com/ytget/yt-saver-bot/internal/platform"
	"github.com/ytget/yt-saver-bot/internal/ratelimit"
	"github.com/ytget/yt-saver-bot/internal/server"
	"github.com/ytget/yt-saver-bot/internal/telegram"
	"github.com/ytget/yt-saver-bot/internal/worker"
)

// Janitor intervals
const (
	SessionSweepInterval = time.Minute
	LimiterSweepInterval = 5 * time.Minute
	LimiterIdle          = 10 * time.Minute
)

// App is the running bot.
type App struct {
	cfg *config.Config
	log logging.Logger

	bot        *telegram.Client
	server     *server.Server
	controller *pipeline.Controller
	probes     *worker.Pool
	downloads  *worker.Pool
	fetcher    *download.Service
	history    *history.Store

	janitors []func(ctx context.Context)
	closers  []func() error
}

// New builds every component from cfg. ctx bounds background work started
// later by Run.
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	for _, dir := range []string{cfg.DownloadDir, cfg.CookiesDir} {
		if err := platform.CreateDirectoryIfNotExists(dir); err != nil {
			return nil, err
		}
	}

	sessions, err := a.sessionStore(ctx)
	if err != nil {
		return nil, err
	}
	creds, err := a.credentialStore(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.HistoryDB != "" {
		a.history, err = history.Open(cfg.HistoryDB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.history.Close)
	}

	runner, err := a.runner(ctx)
	if err != nil {
		return nil, err
	}

	playlists := platform.NewPlaylistResolver()
	playlists.SetTimeout(cfg.ProbeTimeout)
	resolver := download.NewResolver(runner, playlists, cfg.ProbeTimeout, log.With("component", "resolver"))

	a.fetcher = download.NewService(runner, convert.NewService(log.With("component", "convert")), download.Options{
		DownloadDir: cfg.DownloadDir,
		Retries:     cfg.Retries,
		RetrySleep:  cfg.RetrySleep,
		Timeout:     cfg.DownloadTimeout,
	}, log.With("component", "download"))
	a.fetcher.SetUpdateCallback(a.onTaskUpdate)

	a.bot, err = telegram.NewClient(cfg.BotToken, cfg.MaxCookieBytes, log.With("component", "telegram"))
	if err != nil {
		return nil, err
	}

	a.probes = worker.New(ctx, "probe", cfg.MaxParallelProbes, cfg.QueueSize, log)
	a.downloads = worker.New(ctx, "download", cfg.MaxParallelDownloads, cfg.QueueSize, log)

	limiter := ratelimit.New(cfg.RateLimit, cfg.RateBurst, LimiterIdle)
	a.janitors = append(a.janitors, func(ctx context.Context) { limiter.Run(ctx, LimiterSweepInterval) })
	a.janitors = append(a.janitors, a.sweepDownloads)

	deps := pipeline.Deps{
		Transport:      a.bot,
		Sessions:       sessions,
		Credentials:    creds,
		Resolver:       resolver,
		Fetcher:        a.fetcher,
		Gate:           delivery.NewGate(cfg.MaxUploadBytes, log.With("component", "delivery")),
		Probes:         a.probes,
		Downloads:      a.downloads,
		Limiter:        limiter,
		Log:            log.With("component", "pipeline"),
		MaxCookieBytes: cfg.MaxCookieBytes,
	}
	if a.history != nil {
		deps.History = a.history
	}
	a.controller = pipeline.New(deps)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	a.server = server.New(server.Options{
		Addr:        cfg.ListenAddr,
		WebhookPath: cfg.WebhookPath(),
		WebhookURL:  cfg.WebhookURL(),
		Pools:       []server.PoolStats{a.probes, a.downloads},
	}, a.controller, log.With("component", "http"))

	ok = true
	return a, nil
}

// Run registers the webhook, serves until ctx is done and shuts down.
func (a *App) Run(ctx context.Context) error {
	for _, j := range a.janitors {
		go j(ctx)
	}

	if a.history != nil {
		completed, failed, total, err := a.history.Stats(ctx)
		if err == nil {
			a.log.Info(ctx, "download history", "completed", completed, "failed", failed, "bytes", total)
		}
	}

	if err := a.bot.SetWebhook(ctx, a.cfg.WebhookURL()); err != nil {
		a.log.Error(ctx, "webhook registration failed", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info(ctx, "shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), server.DefaultShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Warn(shutdownCtx, "http shutdown failed", "error", err)
	}

	if n := len(a.fetcher.GetAllTasks()); n > 0 {
		a.log.Warn(shutdownCtx, "abandoning in-flight downloads", "count", n)
	}
	a.probes.Shutdown()
	a.downloads.Shutdown()
	a.close()

	return runErr
}

func (a *App) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.log.Warn(context.Background(), "close failed", "error", err)
	}
}

// onTaskUpdate records finished tasks in the history database.
func (a *App) onTaskUpdate(task *model.DownloadTask) {
	ctx := context.Background()
	if !task.Status.IsFinished() {
		a.log.Debug(ctx, "download progress",
			"task", task.ID,
			"status", task.Status.String(),
			"percent", task.Percent)
		return
	}
	a.log.Info(ctx, "download finished",
		"task", task.ID,
		"user", task.UserID,
		"status", task.Status.String(),
		"bytes", task.FileSize,
		"elapsed", task.Elapsed())
	if a.history == nil {
		return
	}
	if err := a.history.RecordTask(ctx, task); err != nil {
		a.log.Warn(ctx, "history record failed", "task", task.ID, "error", err)
	}
}

// sweepDownloads removes artifacts left behind by crashed or interrupted
// downloads.
func (a *App) sweepDownloads(ctx context.Context) {
	interval := a.cfg.SweepAge / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := platform.SweepStale(a.cfg.DownloadDir, a.cfg.SweepAge, now)
			if err != nil {
				a.log.Warn(ctx, "download sweep failed", "error", err)
				continue
			}
			if n > 0 {
				a.log.Info(ctx, "stale downloads removed", "count", n)
			}
		}
	}
}
