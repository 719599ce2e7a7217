package download

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/ytget/yt-saver-bot/internal/config"
)

// yt-dlp request shaping
const (
	AcceptLanguage       = "en-US,en;q=0.9"
	YouTubeExtractorArgs = "youtube:player_client=web,android"
	MergeOutputFormat    = "mp4"
	ProgressInterval     = 500 * time.Millisecond
)

// YtdlpRunner runs the yt-dlp executable through go-ytdlp.
type YtdlpRunner struct {
	executable string
	userAgent  string
}

// NewYtdlpRunner uses executable when set, otherwise yt-dlp from PATH or
// the go-ytdlp cache.
func NewYtdlpRunner(executable, userAgent string) *YtdlpRunner {
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	return &YtdlpRunner{executable: executable, userAgent: userAgent}
}

// Install downloads a yt-dlp build into the go-ytdlp cache and returns its
// path.
func Install(ctx context.Context) (string, error) {
	resolved, err := ytdlp.Install(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("install yt-dlp: %w", err)
	}
	return resolved.Executable, nil
}

func (r *YtdlpRunner) Run(ctx context.Context, inv Invocation) (*Output, error) {
	dl := r.command(inv)

	res, err := dl.Run(ctx, inv.URL)
	out := &Output{}
	if res != nil {
		out.Stdout = res.Stdout
		out.Stderr = res.Stderr
	}
	return out, err
}

func (r *YtdlpRunner) command(inv Invocation) *ytdlp.Command {
	dl := ytdlp.New().
		NoPlaylist().
		UserAgent(r.userAgent).
		AddHeaders("Accept-Language:" + AcceptLanguage).
		ExtractorArgs(YouTubeExtractorArgs)

	if r.executable != "" {
		dl.SetExecutable(r.executable)
	}
	if inv.CookieFile != "" {
		dl.Cookies(inv.CookieFile)
	}

	if inv.Probe {
		return dl.SkipDownload().DumpSingleJSON()
	}

	dl.Format(inv.Format).
		MergeOutputFormat(MergeOutputFormat).
		Output(inv.OutputTemplate).
		ForceOverwrites()

	if inv.Retries > 0 {
		dl.Retries(strconv.Itoa(inv.Retries)).
			FragmentRetries(strconv.Itoa(inv.Retries))
	}
	if inv.RetrySleep > 0 {
		dl.RetrySleep(strconv.FormatFloat(inv.RetrySleep.Seconds(), 'f', -1, 64))
	}

	if inv.OnProgress != nil {
		onProgress := inv.OnProgress
		dl.ProgressFunc(ProgressInterval, func(update ytdlp.ProgressUpdate) {
			p := Progress{
				Downloaded: int64(update.DownloadedBytes),
				Total:      int64(update.TotalBytes),
			}
			if update.Info != nil && update.Info.Title != nil {
				p.Title = *update.Info.Title
			}
			onProgress(p)
		})
	}
	return dl
}
