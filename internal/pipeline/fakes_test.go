package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-saver-bot/internal/credentials"
	"github.com/ytget/yt-saver-bot/internal/delivery"
	"github.com/ytget/yt-saver-bot/internal/download"
	"github.com/ytget/yt-saver-bot/internal/history"
	"github.com/ytget/yt-saver-bot/internal/model"
	"github.com/ytget/yt-saver-bot/internal/session"
	"github.com/ytget/yt-saver-bot/internal/worker"
)

const (
	testUser = int64(42)
	testChat = int64(4200)
	mib      = int64(1 << 20)
)

const sampleJar = "# Netscape HTTP Cookie File\n" +
	".instagram.com\tTRUE\t/\tTRUE\t1767225600\tsessionid\tabc123\n"

type prompt struct {
	PhotoURL string
	Text     string
	Buttons  []model.Button
	Ref      model.MessageRef
}

type edit struct {
	Ref  model.MessageRef
	Text string
}

type video struct {
	Path    string
	Caption string
	Size    int64
}

type fakeTransport struct {
	mu      sync.Mutex
	nextID  int
	texts   []string
	prompts []prompt
	edits   []edit
	videos  []video
	answers []string

	photoErr error
	docs     map[string][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{nextID: 100, docs: make(map[string][]byte)}
}

func (f *fakeTransport) SendText(_ context.Context, chatID int64, text string) (model.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.texts = append(f.texts, text)
	return model.MessageRef{ChatID: chatID, MessageID: f.nextID}, nil
}

func (f *fakeTransport) SendPrompt(_ context.Context, chatID int64, photoURL, text string, buttons []model.Button) (model.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if photoURL != "" && f.photoErr != nil {
		return model.MessageRef{}, f.photoErr
	}
	f.nextID++
	ref := model.MessageRef{ChatID: chatID, MessageID: f.nextID, Caption: photoURL != ""}
	f.prompts = append(f.prompts, prompt{PhotoURL: photoURL, Text: text, Buttons: buttons, Ref: ref})
	return ref, nil
}

func (f *fakeTransport) Edit(_ context.Context, ref model.MessageRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, edit{Ref: ref, Text: text})
	return nil
}

func (f *fakeTransport) SendVideo(_ context.Context, _ int64, path, caption string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videos = append(f.videos, video{Path: path, Caption: caption, Size: info.Size()})
	return nil
}

func (f *fakeTransport) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeTransport) FetchDocument(_ context.Context, fileID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.docs[fileID]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

func (f *fakeTransport) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

func (f *fakeTransport) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return ""
	}
	return f.edits[len(f.edits)-1].Text
}

// fakeResolver serves metadata by URL. Restricted sources need a credential.
type fakeResolver struct {
	mu      sync.Mutex
	sources map[string]model.Metadata
	calls   int
}

func (r *fakeResolver) Resolve(_ context.Context, url string, cred *model.CredentialRef) (*model.Metadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	meta, ok := r.sources[url]
	if !ok {
		return nil, model.NewError(model.KindResolutionFailed, "unsupported url", nil)
	}
	if meta.Restricted && cred == nil {
		return &meta, model.NewError(model.KindCredentialsRequired, "login required", nil)
	}
	return &meta, nil
}

// fakeFetcher writes a sparse artifact of the configured size.
type fakeFetcher struct {
	mu       sync.Mutex
	dir      string
	size     int64
	err      error
	panicMsg string
	requests []download.Request
	finished map[string]error
}

func (f *fakeFetcher) SetUpdateCallback(func(*model.DownloadTask)) {}

func (f *fakeFetcher) Fetch(_ context.Context, req download.Request) (*model.Artifact, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if req.Restricted && req.Credential == nil {
		return nil, model.NewError(model.KindCredentialsRequired, "restricted source without cookies", nil)
	}
	if f.err != nil {
		return nil, f.err
	}

	path := filepath.Join(f.dir, req.SourceID+"-"+req.TaskID+".mp4")
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := file.Truncate(f.size); err != nil {
		return nil, err
	}
	return &model.Artifact{Path: path, SourceID: req.SourceID, Size: f.size}, nil
}

func (f *fakeFetcher) Finish(taskID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished == nil {
		f.finished = make(map[string]error)
	}
	f.finished[taskID] = err
}

func (f *fakeFetcher) GetTask(string) (*model.DownloadTask, bool) { return nil, false }
func (f *fakeFetcher) GetAllTasks() []*model.DownloadTask         { return nil }

// queueSubmitter holds tasks until drain so tests control ordering.
type queueSubmitter struct {
	mu    sync.Mutex
	tasks []worker.Task
	full  bool
}

func (q *queueSubmitter) Submit(t worker.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return worker.ErrQueueFull
	}
	q.tasks = append(q.tasks, t)
	return nil
}

func (q *queueSubmitter) drain(ctx context.Context) int {
	n := 0
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return n
		}
		t := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		t(ctx)
		n++
	}
}

func (q *queueSubmitter) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

type denyLimiter struct{}

func (denyLimiter) Allow(int64) bool { return false }

type fakeHistory struct {
	records []history.Record
	err     error
}

func (h fakeHistory) Recent(context.Context, int64, int) ([]history.Record, error) {
	return h.records, h.err
}

type harness struct {
	ctrl      *Controller
	transport *fakeTransport
	resolver  *fakeResolver
	fetcher   *fakeFetcher
	sessions  *session.MemoryStore
	creds     *credentials.FileStore
	probes    *queueSubmitter
	downloads *queueSubmitter
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		transport: newFakeTransport(),
		resolver: &fakeResolver{sources: map[string]model.Metadata{
			"https://www.youtube.com/watch?v=abc": {
				ID:         "abc",
				Title:      "Clip",
				Thumbnail:  "https://i.ytimg.com/vi/abc/hq.jpg",
				Platform:   "Youtube",
				WebpageURL: "https://www.youtube.com/watch?v=abc",
			},
			"https://www.youtube.com/watch?v=xyz": {
				ID:         "xyz",
				Title:      "Other clip",
				Platform:   "Youtube",
				WebpageURL: "https://www.youtube.com/watch?v=xyz",
			},
			"https://www.instagram.com/reel/priv": {
				ID:         "priv",
				Title:      "Private reel",
				Platform:   "Instagram",
				WebpageURL: "https://www.instagram.com/reel/priv",
				Restricted: true,
			},
		}},
		fetcher:   &fakeFetcher{dir: t.TempDir(), size: 10 * mib},
		sessions:  session.NewMemoryStore(time.Hour, 100),
		creds:     credentials.NewFileStore(t.TempDir(), credentials.DefaultMaxBytes),
		probes:    &queueSubmitter{},
		downloads: &queueSubmitter{},
	}
	h.ctrl = New(Deps{
		Transport:   h.transport,
		Sessions:    h.sessions,
		Credentials: h.creds,
		Resolver:    h.resolver,
		Fetcher:     h.fetcher,
		Gate:        delivery.NewGate(delivery.DefaultMaxBytes, nil),
		Probes:      h.probes,
		Downloads:   h.downloads,
	})
	return h
}

func (h *harness) handle(t *testing.T, ev model.Event) {
	t.Helper()
	if ev.UserID == 0 {
		ev.UserID = testUser
	}
	if ev.ChatID == 0 {
		ev.ChatID = testChat
	}
	require.NoError(t, h.ctrl.Handle(context.Background(), ev))
}

func (h *harness) text(t *testing.T, s string) {
	t.Helper()
	h.handle(t, model.Event{Kind: model.EventText, Text: s})
}

func (h *harness) command(t *testing.T, cmd string) {
	t.Helper()
	h.handle(t, model.Event{Kind: model.EventCommand, Command: cmd})
}

func (h *harness) press(t *testing.T, messageID int, data string) {
	t.Helper()
	h.handle(t, model.Event{Kind: model.EventCallback, MessageID: messageID, CallbackID: "cb", CallbackData: data})
}

func (h *harness) upload(t *testing.T, name string, data []byte) {
	t.Helper()
	h.transport.docs["doc-"+name] = data
	h.handle(t, model.Event{Kind: model.EventDocument, FileID: "doc-" + name, FileName: name, FileSize: int64(len(data))})
}

func (h *harness) state(t *testing.T) model.State {
	t.Helper()
	sess, err := h.sessions.Load(context.Background(), testUser)
	if errors.Is(err, session.ErrNotFound) {
		return model.Idle{}
	}
	require.NoError(t, err)
	return sess.State
}

// promptRef returns the reference of the last quality prompt.
func (h *harness) promptRef(t *testing.T) model.MessageRef {
	t.Helper()
	h.transport.mu.Lock()
	defer h.transport.mu.Unlock()
	require.NotEmpty(t, h.transport.prompts)
	return h.transport.prompts[len(h.transport.prompts)-1].Ref
}
