// Package config holds runtime settings for the bot: defaults, then an
// optional YAML file, then environment variables. Command-line flags are
// bound on top by the cobra entrypoint.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendFile   = "file"
	BackendS3     = "s3"
)

// DefaultUserAgent is a realistic desktop browser identification.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0 Safari/537.36"

const mib = 1024 * 1024

type Config struct {
	BotToken   string `yaml:"bot_token"`
	PublicHost string `yaml:"public_host"`
	ListenAddr string `yaml:"listen_addr"`

	DownloadDir       string `yaml:"download_dir"`
	CookiesDir        string `yaml:"cookies_dir"`
	DefaultCookieFile string `yaml:"default_cookie_file"`

	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	MaxCookieBytes int64 `yaml:"max_cookie_bytes"`

	Retries         int           `yaml:"retries"`
	RetrySleep      time.Duration `yaml:"retry_sleep"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`

	MaxParallelDownloads int `yaml:"max_parallel_downloads"`
	MaxParallelProbes    int `yaml:"max_parallel_probes"`
	QueueSize            int `yaml:"queue_size"`

	SessionTTL     time.Duration `yaml:"session_ttl"`
	MaxSessions    int           `yaml:"max_sessions"`
	SessionBackend string        `yaml:"session_backend"`
	RedisAddr      string        `yaml:"redis_addr"`
	RedisPassword  string        `yaml:"redis_password"`
	RedisDB        int           `yaml:"redis_db"`

	CredentialBackend string `yaml:"credential_backend"`
	S3Bucket          string `yaml:"s3_bucket"`
	S3Region          string `yaml:"s3_region"`
	S3Endpoint        string `yaml:"s3_endpoint"`
	S3AccessKey       string `yaml:"s3_access_key"`
	S3SecretKey       string `yaml:"s3_secret_key"`
	S3Prefix          string `yaml:"s3_prefix"`

	HistoryDB string `yaml:"history_db"`

	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	SweepAge time.Duration `yaml:"sweep_age"`

	UserAgent    string `yaml:"user_agent"`
	YtdlpPath    string `yaml:"ytdlp_path"`
	InstallYtdlp bool   `yaml:"install_ytdlp"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// LoadDefaults populates Config with values suitable for a single small
// container.
func (c *Config) LoadDefaults() {
	tmp := os.TempDir()

	c.ListenAddr = ":8080"
	c.DownloadDir = filepath.Join(tmp, "yt-saver-bot", "downloads")
	c.CookiesDir = filepath.Join(tmp, "yt-saver-bot", "cookies")
	c.HistoryDB = filepath.Join(tmp, "yt-saver-bot", "history.db")
	c.MaxUploadBytes = 50 * mib
	c.MaxCookieBytes = 1 * mib
	c.Retries = 10
	c.RetrySleep = 3 * time.Second
	c.ProbeTimeout = 60 * time.Second
	c.DownloadTimeout = 10 * time.Minute
	c.MaxParallelDownloads = 2
	c.MaxParallelProbes = 4
	c.QueueSize = 16
	c.SessionTTL = 30 * time.Minute
	c.MaxSessions = 10000
	c.SessionBackend = BackendMemory
	c.CredentialBackend = BackendFile
	c.S3Region = "us-east-1"
	c.S3Prefix = "cookies"
	c.RateLimit = 1
	c.RateBurst = 5
	c.SweepAge = time.Hour
	c.UserAgent = DefaultUserAgent
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty) and the process environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations the bot cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("bot token is required"))
	}
	if c.PublicHost == "" {
		errs = append(errs, errors.New("public host is required"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max_upload_bytes must be positive"))
	}
	if c.MaxCookieBytes <= 0 {
		errs = append(errs, errors.New("max_cookie_bytes must be positive"))
	}
	if c.Retries < 0 {
		errs = append(errs, errors.New("retries must not be negative"))
	}
	if c.ProbeTimeout <= 0 || c.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.MaxParallelDownloads <= 0 || c.MaxParallelProbes <= 0 || c.QueueSize <= 0 {
		errs = append(errs, errors.New("pool sizes must be positive"))
	}
	if c.SessionTTL <= 0 || c.MaxSessions <= 0 {
		errs = append(errs, errors.New("session_ttl and max_sessions must be positive"))
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		errs = append(errs, errors.New("rate_limit and rate_burst must be positive"))
	}

	switch c.SessionBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr is required for the redis session backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q", c.SessionBackend))
	}

	switch c.CredentialBackend {
	case BackendFile:
	case BackendS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("s3_bucket is required for the s3 credential backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown credential backend %q", c.CredentialBackend))
	}

	return errors.Join(errs...)
}

// WebhookPath is the secret path Telegram posts updates to.
func (c *Config) WebhookPath() string {
	return "/" + c.BotToken
}

// WebhookURL is the public HTTPS address registered with Telegram.
func (c *Config) WebhookURL() string {
	host := strings.TrimSuffix(c.PublicHost, "/")
	host = strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")
	return "https://" + host + c.WebhookPath()
}
