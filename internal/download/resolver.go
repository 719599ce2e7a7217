package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ytget/yt-saver-bot/internal/logging"
	"github.com/ytget/yt-saver-bot/internal/model"
)

// Timeout constants
const (
	DefaultProbeTimeout = 60 * time.Second
)

// Availability values yt-dlp reports for sources behind a login.
var restrictedAvailability = map[string]bool{
	"needs_auth":      true,
	"premium_only":    true,
	"subscriber_only": true,
	"private":         true,
}

const adultAgeLimit = 18

// probeInfo is the subset of the yt-dlp info dict the bot reads.
type probeInfo struct {
	Type         string      `json:"_type"`
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Thumbnail    string      `json:"thumbnail"`
	ExtractorKey string      `json:"extractor_key"`
	Extractor    string      `json:"extractor"`
	Uploader     string      `json:"uploader"`
	WebpageURL   string      `json:"webpage_url"`
	Availability string      `json:"availability"`
	AgeLimit     int         `json:"age_limit"`
	Entries      []probeInfo `json:"entries"`
}

// Resolver probes URLs for metadata with a read-only yt-dlp run.
type Resolver struct {
	runner    Runner
	playlists URLNarrower
	timeout   time.Duration
	log       logging.Logger
}

// NewResolver creates a resolver. playlists may be nil.
func NewResolver(runner Runner, playlists URLNarrower, timeout time.Duration, log logging.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &Resolver{runner: runner, playlists: playlists, timeout: timeout, log: log}
}

// Resolve returns metadata for url. Public sources resolve without cred.
func (r *Resolver) Resolve(ctx context.Context, url string, cred *model.CredentialRef) (*model.Metadata, error) {
	target := url
	if r.playlists != nil {
		narrowed, err := r.playlists.Narrow(ctx, url)
		if err != nil {
			r.log.Warn(ctx, "playlist lookup failed", "url", url, "error", err)
			return nil, model.NewError(model.KindResolutionFailed, "playlist lookup failed", err)
		}
		target = narrowed
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	inv := Invocation{URL: target, Probe: true}
	if cred != nil {
		inv.CookieFile = cred.Path
	}

	out, err := r.runner.Run(ctx, inv)
	if out == nil {
		out = &Output{}
	}
	if err != nil {
		r.log.Warn(ctx, "metadata probe failed",
			"url", target,
			"cookies", cred != nil,
			"error", err,
			"stderr", lastLine(out.Stderr))

		if cred == nil && isAuthWall(out.Stderr) {
			return nil, model.NewError(model.KindCredentialsRequired, "source needs a login", err)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, model.NewError(model.KindResolutionFailed, "probe timed out", err)
		}
		return nil, model.NewError(model.KindResolutionFailed, "probe failed", err)
	}

	info, err := decodeProbe(out.Stdout)
	if err != nil {
		r.log.Warn(ctx, "metadata decode failed", "url", target, "error", err)
		return nil, model.NewError(model.KindResolutionFailed, "unreadable probe output", err)
	}

	meta := &model.Metadata{
		ID:         info.ID,
		Title:      info.Title,
		Thumbnail:  info.Thumbnail,
		Platform:   info.ExtractorKey,
		Uploader:   info.Uploader,
		WebpageURL: info.WebpageURL,
		Restricted: isRestricted(info),
	}
	if meta.Platform == "" {
		meta.Platform = info.Extractor
	}
	if meta.WebpageURL == "" {
		meta.WebpageURL = target
	}
	if meta.Restricted && cred == nil {
		return meta, model.NewError(model.KindCredentialsRequired, "source is restricted: "+info.Availability, nil)
	}
	return meta, nil
}

// decodeProbe reads the info dict from yt-dlp stdout. A playlist result is
// reduced to its first entry.
func decodeProbe(stdout string) (*probeInfo, error) {
	body := strings.TrimSpace(stdout)
	if i := strings.LastIndex(body, "\n{"); i >= 0 {
		body = body[i+1:]
	}
	if body == "" {
		return nil, errors.New("empty probe output")
	}

	var info probeInfo
	if err := json.Unmarshal([]byte(body), &info); err != nil {
		return nil, fmt.Errorf("decode probe json: %w", err)
	}
	if info.Type == "playlist" {
		if len(info.Entries) == 0 {
			return nil, errors.New("playlist has no entries")
		}
		first := info.Entries[0]
		if first.ExtractorKey == "" {
			first.ExtractorKey = info.ExtractorKey
		}
		return &first, nil
	}
	if info.ID == "" {
		return nil, errors.New("probe output has no id")
	}
	return &info, nil
}

func isRestricted(info *probeInfo) bool {
	return restrictedAvailability[info.Availability] || info.AgeLimit >= adultAgeLimit
}
