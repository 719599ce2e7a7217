package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ytget/yt-saver-bot/internal/convert"
	"github.com/ytget/yt-saver-bot/internal/logging"
	"github.com/ytget/yt-saver-bot/internal/model"
	"github.com/ytget/yt-saver-bot/internal/platform"
)

// Retry and timeout defaults
const (
	DefaultDownloadTimeout = 10 * time.Minute
	DefaultRetries         = 10
	DefaultRetrySleep      = 3 * time.Second
	OuterRetries           = 1
	OuterRetryBackoff      = 2 * time.Second
	TaskIDPrefix           = "dl-"
	OutputTemplateSuffix   = ".%(ext)s"
)

// Request describes one acquisition.
type Request struct {
	TaskID     string
	UserID     int64
	URL        string
	Format     string
	Quality    model.Quality
	SourceID   string
	Title      string
	Platform   string
	Restricted bool
	Credential *model.CredentialRef
}

// Options configures the acquisition engine.
type Options struct {
	DownloadDir string
	Retries     int
	RetrySleep  time.Duration
	Timeout     time.Duration
}

// Service handles download operations
type Service struct {
	tasks      map[string]*model.DownloadTask
	tasksMutex sync.RWMutex
	onUpdate   func(*model.DownloadTask)

	runner     Runner
	normalizer convert.Normalizer
	opts       Options
	backoff    time.Duration
	log        logging.Logger
}

// NewService creates a new download service
func NewService(runner Runner, normalizer convert.Normalizer, opts Options, log logging.Logger) *Service {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultDownloadTimeout
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &Service{
		tasks:      make(map[string]*model.DownloadTask),
		runner:     runner,
		normalizer: normalizer,
		opts:       opts,
		backoff:    OuterRetryBackoff,
		log:        log,
	}
}

// SetUpdateCallback sets the callback function for task updates
func (s *Service) SetUpdateCallback(callback func(*model.DownloadTask)) {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()
	s.onUpdate = callback
}

// GetTask returns an in-flight task by ID
func (s *Service) GetTask(id string) (*model.DownloadTask, bool) {
	s.tasksMutex.RLock()
	defer s.tasksMutex.RUnlock()
	task, exists := s.tasks[id]
	if !exists {
		return nil, false
	}
	cp := *task
	return &cp, true
}

// GetAllTasks returns copies of all in-flight tasks
func (s *Service) GetAllTasks() []*model.DownloadTask {
	s.tasksMutex.RLock()
	defer s.tasksMutex.RUnlock()

	tasks := make([]*model.DownloadTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		cp := *task
		tasks = append(tasks, &cp)
	}
	return tasks
}

// Fetch downloads req.URL into <download_dir>/<sourceID>-<taskID>.mp4. On
// success the task stays registered in the Delivering state until Finish is
// called.
func (s *Service) Fetch(ctx context.Context, req Request) (*model.Artifact, error) {
	if req.Restricted && req.Credential == nil {
		return nil, model.NewError(model.KindCredentialsRequired, "restricted source without cookies", nil)
	}
	if req.SourceID == "" {
		return nil, model.NewError(model.KindAcquisitionFailed, "missing source id", nil)
	}

	task := s.addTask(req)
	stem := artifactStem(req.SourceID, task.ID)

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	inv := Invocation{
		URL:            req.URL,
		Format:         req.Format,
		OutputTemplate: filepath.Join(s.opts.DownloadDir, stem+OutputTemplateSuffix),
		Retries:        s.opts.Retries,
		RetrySleep:     s.opts.RetrySleep,
		OnProgress: func(p Progress) {
			s.updateTaskProgress(task, p)
		},
	}
	if req.Credential != nil {
		inv.CookieFile = req.Credential.Path
	}

	s.setStatus(task, model.TaskStatusDownloading)

	out, err := s.downloadWithRetry(ctx, inv, task)
	if err != nil {
		s.cleanup(ctx, stem)
		stderr := ""
		if out != nil {
			stderr = out.Stderr
		}
		var kerr *model.Error
		if req.Credential == nil && isAuthWall(stderr) {
			kerr = model.NewError(model.KindCredentialsRequired, "source needs a login", err)
		} else {
			kerr = model.NewError(model.KindAcquisitionFailed, "yt-dlp failed", err)
		}
		s.log.Warn(ctx, "download failed",
			"task", task.ID,
			"url", req.URL,
			"error", err,
			"stderr", lastLine(stderr))
		s.Finish(task.ID, kerr)
		return nil, kerr
	}

	path, err := platform.FindArtifact(s.opts.DownloadDir, stem)
	if err != nil {
		s.cleanup(ctx, stem)
		kerr := model.NewError(model.KindAcquisitionFailed, "no output file", err)
		s.Finish(task.ID, kerr)
		return nil, kerr
	}

	if s.normalizer != nil {
		path, err = s.normalizer.Normalize(ctx, path)
		if err != nil {
			s.cleanup(ctx, stem)
			kerr := model.NewError(model.KindAcquisitionFailed, "container normalization failed", err)
			s.Finish(task.ID, kerr)
			return nil, kerr
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		s.cleanup(ctx, stem)
		kerr := model.NewError(model.KindAcquisitionFailed, "output file vanished", err)
		s.Finish(task.ID, kerr)
		return nil, kerr
	}

	s.tasksMutex.Lock()
	task.Status = model.TaskStatusDelivering
	task.Percent = 100
	task.OutputPath = path
	task.FileSize = info.Size()
	s.tasksMutex.Unlock()
	s.notifyUpdate(task)

	return &model.Artifact{Path: path, SourceID: req.SourceID, Size: info.Size()}, nil
}

// Finish records the final outcome of a task and forgets it.
func (s *Service) Finish(taskID string, err error) {
	s.tasksMutex.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.tasksMutex.Unlock()
		return
	}
	if err != nil {
		task.Status = model.TaskStatusError
		task.LastError = err.Error()
	} else {
		task.Status = model.TaskStatusCompleted
	}
	task.FinishedAt = time.Now()
	delete(s.tasks, taskID)
	s.tasksMutex.Unlock()

	s.notifyUpdate(task)
}

// downloadWithRetry attempts download with retry logic
func (s *Service) downloadWithRetry(ctx context.Context, inv Invocation, task *model.DownloadTask) (*Output, error) {
	var lastErr error
	var out *Output

	for attempt := 0; attempt <= OuterRetries; attempt++ {
		if attempt > 0 {
			// Backoff delay
			select {
			case <-time.After(s.backoff):
			case <-ctx.Done():
				return out, ctx.Err()
			}

			s.log.Info(ctx, "retrying download", "task", task.ID, "attempt", attempt+1)
		}

		res, err := s.runner.Run(ctx, inv)
		if err == nil {
			return res, nil
		}

		lastErr = err
		out = res
		s.log.Warn(ctx, "download attempt failed", "task", task.ID, "attempt", attempt+1, "error", err)

		if ctx.Err() != nil {
			return out, errors.Join(err, ctx.Err())
		}
		if res != nil && isPermanent(res.Stderr) {
			return out, err
		}
	}

	return out, lastErr
}

// updateTaskProgress updates task progress from yt-dlp output
func (s *Service) updateTaskProgress(task *model.DownloadTask, p Progress) {
	s.tasksMutex.Lock()
	if p.Total > 0 {
		percent := int(float64(p.Downloaded) / float64(p.Total) * 100)
		if percent > 100 {
			percent = 100
		}
		task.Percent = percent
	}
	if p.Title != "" && task.Title == "" {
		task.Title = p.Title
	}
	s.tasksMutex.Unlock()

	s.notifyUpdate(task)
}

func (s *Service) addTask(req Request) *model.DownloadTask {
	id := req.TaskID
	if id == "" {
		id = NewTaskID()
	}
	task := &model.DownloadTask{
		ID:        id,
		UserID:    req.UserID,
		URL:       req.URL,
		Quality:   req.Quality,
		Status:    model.TaskStatusPending,
		Title:     req.Title,
		Platform:  req.Platform,
		StartedAt: time.Now(),
	}

	s.tasksMutex.Lock()
	s.tasks[task.ID] = task
	s.tasksMutex.Unlock()

	s.notifyUpdate(task)
	return task
}

func (s *Service) setStatus(task *model.DownloadTask, status model.TaskStatus) {
	s.tasksMutex.Lock()
	task.Status = status
	s.tasksMutex.Unlock()
	s.notifyUpdate(task)
}

func (s *Service) cleanup(ctx context.Context, stem string) {
	if _, err := platform.RemoveArtifacts(s.opts.DownloadDir, stem); err != nil {
		s.log.Warn(ctx, "leftover cleanup failed", "stem", stem, "error", err)
	}
}

// artifactStem scopes output files to one job.
func artifactStem(sourceID, taskID string) string {
	return sourceID + "-" + taskID
}

// notifyUpdate calls the update callback with a snapshot of task
func (s *Service) notifyUpdate(task *model.DownloadTask) {
	s.tasksMutex.RLock()
	cb := s.onUpdate
	snapshot := *task
	s.tasksMutex.RUnlock()

	if cb != nil {
		cb(&snapshot)
	}
}

// NewTaskID generates a time-ordered task ID using UUID v7
func NewTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf(TaskIDPrefix+"%d", time.Now().UnixNano())
	}
	return TaskIDPrefix + id.String()
}
