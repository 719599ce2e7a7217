package platform

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/ytdlp/v2"
)

// Timeout constants
const (
	DefaultPlaylistParseTimeout = 30 * time.Second
)

// URL parameters
const (
	PlaylistURLParam = "list"
	VideoURLParam    = "v"
)

// URL templates
const (
	YouTubeVideoURLTemplate = "https://www.youtube.com/watch?v=%s"
)

var youtubeHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
}

// PlaylistFetcher returns the video ids of a playlist in order.
type PlaylistFetcher func(ctx context.Context, playlistID string) ([]string, error)

// PlaylistResolver narrows YouTube playlist links to a single video.
type PlaylistResolver struct {
	timeout time.Duration
	fetch   PlaylistFetcher
}

// NewPlaylistResolver creates a resolver backed by the ytdlp playlist client.
func NewPlaylistResolver() *PlaylistResolver {
	return &PlaylistResolver{
		timeout: DefaultPlaylistParseTimeout,
		fetch:   fetchPlaylistIDs,
	}
}

// NewPlaylistResolverWithFetcher creates a resolver with a custom fetcher.
func NewPlaylistResolverWithFetcher(fetch PlaylistFetcher) *PlaylistResolver {
	return &PlaylistResolver{timeout: DefaultPlaylistParseTimeout, fetch: fetch}
}

// SetTimeout sets the timeout for playlist lookups
func (p *PlaylistResolver) SetTimeout(timeout time.Duration) {
	p.timeout = timeout
}

// Narrow returns the watch URL of the first playlist entry when rawURL is a
// YouTube playlist link without a video id. Any other URL is returned as is.
func (p *PlaylistResolver) Narrow(ctx context.Context, rawURL string) (string, error) {
	playlistID, ok := playlistOnly(rawURL)
	if !ok {
		return rawURL, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ids, err := p.fetch(ctx, playlistID)
	if err != nil {
		return "", fmt.Errorf("failed to get playlist items: %w", err)
	}
	for _, id := range ids {
		if id != "" {
			return fmt.Sprintf(YouTubeVideoURLTemplate, id), nil
		}
	}
	return "", fmt.Errorf("playlist %s has no videos", playlistID)
}

// extractPlaylistID returns the list parameter of a YouTube URL.
func extractPlaylistID(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	if !q.Has(PlaylistURLParam) {
		return "", fmt.Errorf("URL does not contain playlist parameter")
	}
	id := q.Get(PlaylistURLParam)
	if id == "" {
		return "", fmt.Errorf("empty playlist ID")
	}
	return id, nil
}

// playlistOnly reports whether rawURL is a YouTube playlist link that names
// no video.
func playlistOnly(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !youtubeHosts[strings.ToLower(u.Hostname())] {
		return "", false
	}
	if u.Query().Get(VideoURLParam) != "" {
		return "", false
	}
	id, err := extractPlaylistID(rawURL)
	if err != nil {
		return "", false
	}
	return id, true
}

func fetchPlaylistIDs(ctx context.Context, playlistID string) ([]string, error) {
	items, err := ytdlp.New().GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.VideoID)
	}
	return ids, nil
}
