// Package server exposes the webhook endpoint and status routes over gin.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ytget/yt-saver-bot/internal/logging"
	"github.com/ytget/yt-saver-bot/internal/model"
	"github.com/ytget/yt-saver-bot/internal/telegram"
)

// Server timeouts
const (
	DefaultHandleTimeout   = 30 * time.Second
	DefaultReadTimeout     = 15 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	StatusRunning          = "Bot running"
)

// Bot tokens contain ':' which gin reads as a wildcard, so the token is
// matched as a parameter.
const webhookRoute = "/:token"

// EventHandler consumes inbound events.
type EventHandler interface {
	Handle(ctx context.Context, ev model.Event) error
}

// PoolStats reports the load of a worker pool.
type PoolStats interface {
	Name() string
	Stats() (running, queued int)
}

// Options configures the HTTP front. Pools are reported by /healthz.
type Options struct {
	Addr          string
	WebhookPath   string
	WebhookURL    string
	HandleTimeout time.Duration
	Pools         []PoolStats
}

// Server is the HTTP front controller.
type Server struct {
	opts    Options
	secret  string
	engine  *gin.Engine
	srv     *http.Server
	handler EventHandler
	log     logging.Logger
}

// New builds the router. gin mode is left to the caller.
func New(opts Options, handler EventHandler, log logging.Logger) *Server {
	if log == nil {
		log = logging.Nop{}
	}
	if opts.HandleTimeout <= 0 {
		opts.HandleTimeout = DefaultHandleTimeout
	}

	s := &Server{
		opts:    opts,
		secret:  strings.TrimPrefix(opts.WebhookPath, "/"),
		handler: handler,
		log:     log,
	}

	r := gin.New()
	r.Use(s.requestLogger(), gin.CustomRecovery(s.recovered))
	r.GET("/", s.status)
	r.GET("/healthz", s.health)
	r.POST(webhookRoute, s.webhook)
	s.engine = r

	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: DefaultReadTimeout,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe blocks until the server stops. A clean shutdown returns nil.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log.Info(ctx, "http server listening", "addr", s.opts.Addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight handlers.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": StatusRunning, "webhook": s.opts.WebhookURL})
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if len(s.opts.Pools) > 0 {
		pools := gin.H{}
		for _, p := range s.opts.Pools {
			running, queued := p.Stats()
			pools[p.Name()] = gin.H{"running": running, "queued": queued}
		}
		body["pools"] = pools
	}
	c.JSON(http.StatusOK, body)
}

// webhook always answers 200 so the Bot API does not redeliver updates the
// bot cannot use.
func (s *Server) webhook(c *gin.Context) {
	token := c.Param("token")
	if s.secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) != 1 {
		c.Status(http.StatusNotFound)
		return
	}

	var upd tgbotapi.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		s.log.Warn(c.Request.Context(), "malformed update", "error", err)
		c.Status(http.StatusOK)
		return
	}

	ev, ok := telegram.ToEvent(upd)
	if !ok {
		s.log.Debug(c.Request.Context(), "update ignored", "update_id", upd.UpdateID)
		c.Status(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), s.opts.HandleTimeout)
	defer cancel()

	if err := s.handler.Handle(ctx, ev); err != nil {
		s.log.Error(ctx, "update handling failed", "update_id", upd.UpdateID, "user", ev.UserID, "error", err)
	}
	c.Status(http.StatusOK)
}

func (s *Server) recovered(c *gin.Context, err any) {
	s.log.Error(c.Request.Context(), "handler panicked", "panic", err)
	if c.FullPath() == webhookRoute {
		c.AbortWithStatus(http.StatusOK)
		return
	}
	c.AbortWithStatus(http.StatusInternalServerError)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if c.FullPath() == webhookRoute {
			path = "/<token>"
		}
		s.log.Debug(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
