package model

import (
	"strings"
	"time"
)

// DownloadTask represents a single acquisition and delivery attempt
type DownloadTask struct {
	ID         string
	UserID     int64
	URL        string
	Quality    Quality
	Status     TaskStatus
	Percent    int       // 0 to 100
	LastError  string    // internal diagnostic, never shown to users
	OutputPath string    // path to downloaded artifact
	StartedAt  time.Time // when download started
	FinishedAt time.Time // when the task reached a final status
	Title      string    // video title
	Platform   string    // extractor key, e.g. "Youtube"
	FileSize   int64     // artifact size in bytes
}

// Elapsed returns how long the task ran, or ran so far if still active
func (dt *DownloadTask) Elapsed() time.Duration {
	if dt.StartedAt.IsZero() {
		return 0
	}
	if dt.FinishedAt.IsZero() {
		return time.Since(dt.StartedAt)
	}
	return dt.FinishedAt.Sub(dt.StartedAt)
}

// GetDisplayTitle returns title, filename, or URL in order of preference
func (dt *DownloadTask) GetDisplayTitle() string {
	// First priority: video title (non-URL)
	if dt.Title != "" && !strings.HasPrefix(dt.Title, "http") {
		return dt.Title
	}

	// Second priority: filename from OutputPath
	if dt.OutputPath != "" {
		parts := strings.FieldsFunc(dt.OutputPath, func(r rune) bool {
			return r == '/' || r == '\\'
		})
		if len(parts) > 0 {
			filename := parts[len(parts)-1]
			if idx := strings.LastIndex(filename, "."); idx > 0 {
				filename = filename[:idx]
			}
			return filename
		}
	}

	return dt.URL
}
