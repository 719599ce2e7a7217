package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Environment variable names.
const (
	EnvBotToken        = "BOT_TOKEN"
	EnvPublicHost      = "RENDER_EXTERNAL_HOSTNAME"
	EnvPort            = "PORT"
	EnvCookiesFile     = "COOKIES_FILE"
	EnvMaxUploadMB     = "MAX_UPLOAD_MB"
	EnvDownloadRetries = "DOWNLOAD_RETRIES"
	EnvRetrySleep      = "RETRY_SLEEP"
	EnvProbeTimeout    = "PROBE_TIMEOUT"
	EnvDownloadTimeout = "DOWNLOAD_TIMEOUT"
	EnvRedisAddr       = "REDIS_ADDR"
	EnvLogLevel        = "LOG_LEVEL"
	EnvConfigFile      = "CONFIG_FILE"
)

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str(EnvBotToken, &c.BotToken)
	str(EnvPublicHost, &c.PublicHost)
	str(EnvCookiesFile, &c.DefaultCookieFile)
	str(EnvLogLevel, &c.LogLevel)
	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		c.RedisAddr = v
		c.SessionBackend = BackendRedis
	}

	if v, ok := lookup(EnvPort); ok && v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvPort, v)
		}
		c.ListenAddr = ":" + v
	}

	if v, ok := lookup(EnvMaxUploadMB); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxUploadMB, err)
		}
		c.MaxUploadBytes = n * mib
	}

	if v, ok := lookup(EnvDownloadRetries); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDownloadRetries, err)
		}
		c.Retries = n
	}

	for key, dst := range map[string]*time.Duration{
		EnvRetrySleep:      &c.RetrySleep,
		EnvProbeTimeout:    &c.ProbeTimeout,
		EnvDownloadTimeout: &c.DownloadTimeout,
	} {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}
	return nil
}

// parseDuration accepts Go duration strings and bare integers as seconds.
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}
