package download

import (
	"context"
	"time"

	"github.com/ytget/yt-saver-bot/internal/model"
)

// Invocation describes a single yt-dlp run.
type Invocation struct {
	URL        string
	CookieFile string

	// Probe runs with --skip-download --dump-single-json.
	Probe bool

	Format         string
	OutputTemplate string
	Retries        int
	RetrySleep     time.Duration
	OnProgress     func(Progress)
}

// Progress is a download progress sample.
type Progress struct {
	Downloaded int64
	Total      int64
	Title      string
}

// Output holds what yt-dlp printed.
type Output struct {
	Stdout string
	Stderr string
}

// Runner executes yt-dlp.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*Output, error)
}

// MetadataResolver probes a URL without downloading.
type MetadataResolver interface {
	Resolve(ctx context.Context, url string, cred *model.CredentialRef) (*model.Metadata, error)
}

// Fetcher acquires media into a local artifact.
type Fetcher interface {
	SetUpdateCallback(func(*model.DownloadTask))
	Fetch(ctx context.Context, req Request) (*model.Artifact, error)
	Finish(taskID string, err error)
	GetTask(id string) (*model.DownloadTask, bool)
	GetAllTasks() []*model.DownloadTask
}

// URLNarrower rewrites URLs before probing, e.g. playlist links.
type URLNarrower interface {
	Narrow(ctx context.Context, url string) (string, error)
}
