package pipeline

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-saver-bot/internal/format"
	"github.com/ytget/yt-saver-bot/internal/history"
	"github.com/ytget/yt-saver-bot/internal/logging"
	"github.com/ytget/yt-saver-bot/internal/model"
)

const (
	videoURL      = "https://www.youtube.com/watch?v=abc"
	otherURL      = "https://www.youtube.com/watch?v=xyz"
	restrictedURL = "https://www.instagram.com/reel/priv"
)

func requireNoFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestUnsupportedHost(t *testing.T) {
	h := newHarness(t)

	h.text(t, "https://example.com/not-a-video")
	require.Equal(t, MsgFetching, h.transport.lastText())
	require.Equal(t, 1, h.probes.drain(context.Background()))

	require.Equal(t, MsgResolveFailed, h.transport.lastText())
	require.Equal(t, model.Idle{}, h.state(t))
	require.Empty(t, h.transport.prompts)
}

func TestNonLinkTextGetsHelp(t *testing.T) {
	h := newHarness(t)

	h.text(t, "hello there")

	require.Equal(t, MsgNotALink, h.transport.lastText())
	require.Zero(t, h.probes.pending())
}

func TestSuccessfulDownload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.text(t, "look at this "+videoURL+" !")
	h.probes.drain(ctx)

	st, ok := h.state(t).(model.AwaitingQuality)
	require.True(t, ok)
	require.Equal(t, videoURL, st.URL)
	require.Len(t, h.transport.prompts, 1)
	p := h.transport.prompts[0]
	require.Equal(t, "https://i.ytimg.com/vi/abc/hq.jpg", p.PhotoURL)
	require.Contains(t, p.Text, "🎬 Clip")
	require.Contains(t, p.Text, "📌 Platform: Youtube")
	require.Equal(t, []model.Button{
		{Text: "Best", Data: "best"},
		{Text: "1080p", Data: "1080"},
		{Text: "720p", Data: "720"},
	}, p.Buttons)

	h.press(t, p.Ref.MessageID, "720")
	job, ok := h.state(t).(model.Downloading)
	require.True(t, ok)
	require.Equal(t, videoURL, job.URL)
	require.Equal(t, model.Quality720p, job.Quality)
	require.Equal(t, MsgDownloading, h.transport.lastEdit())
	require.Equal(t, []string{""}, h.transport.answers)

	require.Equal(t, 1, h.downloads.drain(ctx))

	require.Len(t, h.transport.videos, 1)
	require.Equal(t, 10*mib, h.transport.videos[0].Size)
	require.Equal(t, "Clip", h.transport.videos[0].Caption)
	require.Equal(t, MsgDone, h.transport.lastEdit())
	require.Equal(t, model.Idle{}, h.state(t))
	requireNoFiles(t, h.fetcher.dir)

	require.Len(t, h.fetcher.requests, 1)
	req := h.fetcher.requests[0]
	require.Equal(t, format.Expr720p, req.Format)
	require.Equal(t, "youtube-abc", req.SourceID)
	require.Equal(t, job.JobID, req.TaskID)
	require.Contains(t, h.fetcher.finished, job.JobID)
	require.NoError(t, h.fetcher.finished[job.JobID])
}

func TestTooLargeArtifact(t *testing.T) {
	h := newHarness(t)
	h.fetcher.size = 80 * mib
	ctx := context.Background()

	h.text(t, videoURL)
	h.probes.drain(ctx)
	h.press(t, h.promptRef(t).MessageID, "best")
	h.downloads.drain(ctx)

	require.Empty(t, h.transport.videos)
	require.Equal(t, "❌ File is larger than 50 MiB. Telegram cannot send it.", h.transport.lastEdit())
	require.Equal(t, model.Idle{}, h.state(t))
	requireNoFiles(t, h.fetcher.dir)

	var job string
	for id := range h.fetcher.finished {
		job = id
	}
	require.True(t, model.IsKind(h.fetcher.finished[job], model.KindTooLarge))
}

func TestRestrictedSourceNeedsCookies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.text(t, restrictedURL)
	h.probes.drain(ctx)

	require.Equal(t, model.AwaitingCredentials{URL: restrictedURL}, h.state(t))
	require.Equal(t, MsgCredentialsNeeded, h.transport.lastText())
	require.Empty(t, h.transport.prompts)

	h.upload(t, "cookies.txt", []byte(sampleJar))
	require.Contains(t, h.transport.texts, MsgCookiesSaved)
	require.Equal(t, 1, h.probes.pending())

	h.probes.drain(ctx)
	st, ok := h.state(t).(model.AwaitingQuality)
	require.True(t, ok)
	require.Equal(t, restrictedURL, st.URL)
	require.True(t, st.Metadata.Restricted)
	require.Len(t, h.transport.prompts, 1)
	require.Empty(t, h.transport.prompts[0].PhotoURL)

	h.press(t, h.promptRef(t).MessageID, "best")
	h.downloads.drain(ctx)

	require.Len(t, h.transport.videos, 1)
	require.NotNil(t, h.fetcher.requests[0].Credential)
	require.Equal(t, model.Idle{}, h.state(t))
}

func TestStaleButton(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("no pending selection", func(t *testing.T) {
		h.press(t, 1, "best")
		require.Equal(t, []string{MsgExpired}, h.transport.answers)
		require.Equal(t, model.Idle{}, h.state(t))
		require.Zero(t, h.downloads.pending())
	})

	t.Run("old prompt", func(t *testing.T) {
		h.text(t, videoURL)
		h.probes.drain(ctx)
		old := h.promptRef(t)

		h.text(t, otherURL)
		h.probes.drain(ctx)
		current := h.promptRef(t)
		require.NotEqual(t, old.MessageID, current.MessageID)

		h.press(t, old.MessageID, "best")
		require.Equal(t, MsgExpired, h.transport.answers[len(h.transport.answers)-1])
		_, ok := h.state(t).(model.AwaitingQuality)
		require.True(t, ok)
		require.Zero(t, h.downloads.pending())
	})
}

func TestBusyDownloadPool(t *testing.T) {
	h := newHarness(t)
	h.downloads.full = true

	h.text(t, videoURL)
	h.probes.drain(context.Background())
	h.press(t, h.promptRef(t).MessageID, "best")

	require.Equal(t, MsgBusy, h.transport.lastText())
	st, ok := h.state(t).(model.AwaitingQuality)
	require.True(t, ok)
	require.Equal(t, videoURL, st.URL)
}

func TestBusyProbePool(t *testing.T) {
	h := newHarness(t)
	h.probes.full = true

	h.text(t, videoURL)

	require.Equal(t, MsgBusy, h.transport.lastText())
	require.Equal(t, model.Idle{}, h.state(t))
}

func TestBusyProbePoolKeepsPendingSelection(t *testing.T) {
	h := newHarness(t)

	h.text(t, videoURL)
	h.probes.drain(context.Background())
	ref := h.promptRef(t)

	h.probes.full = true
	h.text(t, otherURL)
	require.Equal(t, MsgBusy, h.transport.lastText())

	st, ok := h.state(t).(model.AwaitingQuality)
	require.True(t, ok)
	require.Equal(t, videoURL, st.URL)

	h.press(t, ref.MessageID, "720")
	require.Equal(t, 1, h.downloads.drain(context.Background()))
	require.Len(t, h.fetcher.requests, 1)
	require.Equal(t, videoURL, h.fetcher.requests[0].URL)
	require.Equal(t, model.Quality720p, h.fetcher.requests[0].Quality)
}

func TestBusyProbePoolKeepsInFlightResolve(t *testing.T) {
	h := newHarness(t)

	h.text(t, videoURL)
	h.probes.full = true
	h.text(t, otherURL)
	require.Equal(t, MsgBusy, h.transport.lastText())

	h.probes.full = false
	require.Equal(t, 1, h.probes.drain(context.Background()))
	st, ok := h.state(t).(model.AwaitingQuality)
	require.True(t, ok)
	require.Equal(t, videoURL, st.URL)
}

func TestStaleProbeResultDiscarded(t *testing.T) {
	h := newHarness(t)

	h.text(t, videoURL)
	h.text(t, otherURL)
	require.Equal(t, 2, h.probes.drain(context.Background()))

	require.Equal(t, 2, h.resolver.calls)
	require.Len(t, h.transport.prompts, 1)
	require.Contains(t, h.transport.prompts[0].Text, "Other clip")
	st, ok := h.state(t).(model.AwaitingQuality)
	require.True(t, ok)
	require.Equal(t, otherURL, st.URL)
}

func TestLinkWhileDownloading(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.text(t, videoURL)
	h.probes.drain(ctx)
	h.press(t, h.promptRef(t).MessageID, "best")

	h.text(t, otherURL)
	require.Equal(t, MsgAlreadyDownloading, h.transport.lastText())
	require.Zero(t, h.probes.pending())

	h.press(t, h.promptRef(t).MessageID, "best")
	require.Equal(t, MsgAlreadyDownloading, h.transport.answers[len(h.transport.answers)-1])

	h.command(t, CmdCancel)
	require.Equal(t, MsgCannotCancel, h.transport.lastText())

	_, ok := h.state(t).(model.Downloading)
	require.True(t, ok)
	require.Equal(t, 1, h.downloads.drain(ctx))
	require.Equal(t, model.Idle{}, h.state(t))
}

func TestRateLimited(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Limiter = denyLimiter{}

	h.text(t, videoURL)
	h.press(t, 1, "best")

	require.Equal(t, []string{MsgSlowDown}, h.transport.texts)
	require.Equal(t, []string{MsgSlowDown}, h.transport.answers)
	require.Zero(t, h.probes.pending())
	require.Zero(t, h.sessions.Len())
}

func TestThumbnailFallback(t *testing.T) {
	h := newHarness(t)
	h.transport.photoErr = os.ErrDeadlineExceeded

	h.text(t, videoURL)
	h.probes.drain(context.Background())

	require.Len(t, h.transport.prompts, 1)
	require.Empty(t, h.transport.prompts[0].PhotoURL)
	require.False(t, h.promptRef(t).Caption)
	_, ok := h.state(t).(model.AwaitingQuality)
	require.True(t, ok)
}

func TestDownloadOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantText  string
		wantState model.State
	}{
		{
			name:      "acquisition failed",
			err:       model.NewError(model.KindAcquisitionFailed, "yt-dlp failed", nil),
			wantText:  MsgDownloadFailed,
			wantState: model.Idle{},
		},
		{
			name:      "credentials required",
			err:       model.NewError(model.KindCredentialsRequired, "source needs a login", nil),
			wantText:  MsgCredentialsNeeded,
			wantState: model.AwaitingCredentials{URL: videoURL},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.fetcher.err = tt.err
			ctx := context.Background()

			h.text(t, videoURL)
			h.probes.drain(ctx)
			h.press(t, h.promptRef(t).MessageID, "1080")
			h.downloads.drain(ctx)

			require.Equal(t, tt.wantText, h.transport.lastEdit())
			require.Equal(t, tt.wantState, h.state(t))
			require.Empty(t, h.transport.videos)
			require.Empty(t, h.fetcher.finished)
		})
	}
}

func TestPanickingTaskReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	h.fetcher.panicMsg = "boom"
	ctx := context.Background()

	h.text(t, videoURL)
	h.probes.drain(ctx)
	h.press(t, h.promptRef(t).MessageID, "best")
	require.NotPanics(t, func() { h.downloads.drain(ctx) })

	require.Equal(t, model.Idle{}, h.state(t))
	require.Zero(t, h.ctrl.locks.size())
}

func TestCookiesCommand(t *testing.T) {
	h := newHarness(t)

	h.command(t, CmdCookies)
	require.Equal(t, MsgCookiesPrompt, h.transport.lastText())
	require.Equal(t, model.AwaitingCredentials{}, h.state(t))

	h.upload(t, "notes.pdf", []byte(sampleJar))
	require.Equal(t, MsgCookiesInvalid, h.transport.lastText())
	require.Equal(t, model.AwaitingCredentials{}, h.state(t))

	h.upload(t, "cookies.txt", []byte("just some text\n"))
	require.Equal(t, MsgCookiesInvalid, h.transport.lastText())

	h.upload(t, "cookies.txt", []byte(sampleJar))
	require.Equal(t, MsgCookiesSaved, h.transport.lastText())
	require.Equal(t, model.Idle{}, h.state(t))
	require.Zero(t, h.probes.pending())

	ref, err := h.creds.Get(context.Background(), testUser)
	require.NoError(t, err)
	require.NotNil(t, ref)
}

func TestCookiesKeepPendingSelection(t *testing.T) {
	h := newHarness(t)

	h.text(t, videoURL)
	h.probes.drain(context.Background())
	h.upload(t, "cookies.txt", []byte(sampleJar))

	st, ok := h.state(t).(model.AwaitingQuality)
	require.True(t, ok)
	require.Equal(t, videoURL, st.URL)
}

func TestCancel(t *testing.T) {
	h := newHarness(t)

	h.text(t, videoURL)
	h.probes.drain(context.Background())
	h.command(t, CmdCancel)

	require.Equal(t, MsgCancelled, h.transport.lastText())
	require.Equal(t, model.Idle{}, h.state(t))

	h.press(t, h.promptRef(t).MessageID, "best")
	require.Equal(t, MsgExpired, h.transport.answers[len(h.transport.answers)-1])
}

func TestCancelLogsPendingLink(t *testing.T) {
	h := newHarness(t)
	var buf bytes.Buffer
	log, err := logging.New(&buf, "debug", "text")
	require.NoError(t, err)
	h.ctrl.Log = log

	h.text(t, videoURL)
	h.probes.drain(context.Background())
	h.command(t, CmdCancel)

	out := buf.String()
	require.Contains(t, out, `msg="pending link dropped"`)
	require.Contains(t, out, videoURL)
	require.Contains(t, out, "stage=awaiting_quality")
}

func TestCommands(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{CmdStart, MsgGreeting},
		{CmdHelp, MsgHelp},
		{"nope", MsgHelp},
		{CmdHistory, MsgNoHistory},
	}

	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			h := newHarness(t)
			h.command(t, tt.cmd)
			require.Equal(t, tt.want, h.transport.lastText())
		})
	}
}

func TestHistoryCommand(t *testing.T) {
	h := newHarness(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = time.Now })

	h.ctrl.History = fakeHistory{records: []history.Record{
		{Title: "Clip", Status: "Completed", SizeBytes: 10 * mib, CompletedAt: now.Add(-2 * time.Hour)},
		{URL: "https://x.example/v", Status: "Error", CompletedAt: now.Add(-3 * time.Hour)},
	}}

	h.command(t, CmdHistory)

	out := h.transport.lastText()
	require.Contains(t, out, "✅ Clip (10 MiB), 2 hours ago")
	require.Contains(t, out, "❌ https://x.example/v, 3 hours ago")
}
