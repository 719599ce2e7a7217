package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// File permissions
const (
	DefaultDirPermissions = 0755
)

// Extensions yt-dlp uses for in-progress downloads.
var (
	SkippedExtensions = []string{".part", ".ytdl"}
)

// Extensions preferred when several finished files share a source id.
var (
	PreferredExtensions = []string{".mp4", ".mkv", ".webm", ".mov"}
)

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// FindArtifact returns the finished file in dir named <sourceID>.<ext>,
// ignoring partial downloads.
func FindArtifact(dir, sourceID string) (string, error) {
	matches, err := artifactFiles(dir, sourceID)
	if err != nil {
		return "", err
	}

	var finished []string
	for _, m := range matches {
		if !isPartialFile(m) {
			finished = append(finished, m)
		}
	}
	if len(finished) == 0 {
		return "", fmt.Errorf("no artifact for %s in %s: %w", sourceID, dir, os.ErrNotExist)
	}

	sort.SliceStable(finished, func(i, j int) bool {
		return extensionRank(finished[i]) < extensionRank(finished[j])
	})
	return finished[0], nil
}

// RemoveArtifacts deletes every file in dir that belongs to sourceID,
// partial downloads included.
func RemoveArtifacts(dir, sourceID string) (int, error) {
	matches, err := artifactFiles(dir, sourceID)
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// SweepStale removes regular files in dir last modified before now-maxAge.
func SweepStale(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	cutoff := now.Add(-maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func artifactFiles(dir, sourceID string) ([]string, error) {
	if sourceID == "" || strings.ContainsAny(sourceID, `/\*?[`) {
		return nil, fmt.Errorf("invalid source id %q", sourceID)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	prefix := sourceID + "."
	var out []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		out = append(out, filepath.Join(dir, entry.Name()))
	}
	return out, nil
}

func isPartialFile(name string) bool {
	for _, ext := range SkippedExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return strings.Contains(filepath.Base(name), ".part-Frag")
}

func extensionRank(name string) int {
	ext := strings.ToLower(filepath.Ext(name))
	for i, e := range PreferredExtensions {
		if ext == e {
			return i
		}
	}
	return len(PreferredExtensions)
}
