package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ytget/yt-saver-bot/internal/config"
	"github.com/ytget/yt-saver-bot/internal/credentials"
	"github.com/ytget/yt-saver-bot/internal/download"
	"github.com/ytget/yt-saver-bot/internal/session"
)

func (a *App) sessionStore(ctx context.Context) (session.Store, error) {
	switch a.cfg.SessionBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.log.Info(ctx, "sessions stored in redis", "addr", a.cfg.RedisAddr)
		st := session.NewRedisStore(client, a.cfg.SessionTTL)
		st.SetDownloadingTTL(a.downloadingTTL())
		return st, nil
	default:
		st := session.NewMemoryStore(a.cfg.SessionTTL, a.cfg.MaxSessions)
		st.SetDownloadingTTL(a.downloadingTTL())
		a.janitors = append(a.janitors, func(ctx context.Context) { st.Run(ctx, SessionSweepInterval) })
		return st, nil
	}
}

// downloadingTTL outlives the longest download plus its delivery.
func (a *App) downloadingTTL() time.Duration {
	return max(session.DownloadingTTL, 2*a.cfg.DownloadTimeout)
}

func (a *App) credentialStore(ctx context.Context) (credentials.Store, error) {
	var st credentials.Store
	switch a.cfg.CredentialBackend {
	case config.BackendS3:
		client, err := credentials.NewS3Client(ctx, credentials.S3Options{
			Region:    a.cfg.S3Region,
			Endpoint:  a.cfg.S3Endpoint,
			AccessKey: a.cfg.S3AccessKey,
			SecretKey: a.cfg.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		a.log.Info(ctx, "cookies stored in s3", "bucket", a.cfg.S3Bucket, "prefix", a.cfg.S3Prefix)
		st = credentials.NewS3Store(client, a.cfg.S3Bucket, a.cfg.S3Prefix, a.cfg.CookiesDir, a.cfg.MaxCookieBytes)
	default:
		st = credentials.NewFileStore(a.cfg.CookiesDir, a.cfg.MaxCookieBytes)
	}
	return credentials.WithDefault(st, a.cfg.DefaultCookieFile), nil
}

func (a *App) runner(ctx context.Context) (*download.YtdlpRunner, error) {
	exe := a.cfg.YtdlpPath
	if a.cfg.InstallYtdlp && exe == "" {
		path, err := download.Install(ctx)
		if err != nil {
			return nil, err
		}
		a.log.Info(ctx, "yt-dlp installed", "path", path)
		exe = path
	}
	return download.NewYtdlpRunner(exe, a.cfg.UserAgent), nil
}
