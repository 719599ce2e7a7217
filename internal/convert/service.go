// Package convert normalizes downloaded media to an mp4 container.
package convert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ytget/yt-saver-bot/internal/logging"
)

// FFmpeg constants for remuxing
const (
	FFmpegCommand      = "ffmpeg"
	FFmpegLogLevel     = "error"
	CopyCodec          = "copy"
	FastStartFlag      = "+faststart"
	OutputExtensionMP4 = ".mp4"
	RemuxTempSuffix    = ".remux"
)

type runFunc func(ctx context.Context, name string, args ...string) error

// Service remuxes non-mp4 containers with ffmpeg and falls back to renaming
// the file when ffmpeg is unavailable or fails.
type Service struct {
	ffmpeg string
	run    runFunc
	log    logging.Logger
}

// NewService creates a normalizer using the ffmpeg found on PATH.
func NewService(log logging.Logger) *Service {
	if log == nil {
		log = logging.Nop{}
	}
	return &Service{
		ffmpeg: FFmpegCommand,
		run:    runCommand,
		log:    log,
	}
}

// Normalize returns the path of an .mp4 file holding the media at path.
// The source file is consumed.
func (s *Service) Normalize(ctx context.Context, path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), OutputExtensionMP4) {
		return path, nil
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("input file does not exist: %w", err)
	}

	outputPath := generateOutputPath(path)
	tmpPath := outputPath + RemuxTempSuffix + OutputExtensionMP4

	err := s.run(ctx, s.ffmpeg, s.BuildFFmpegArgs(path, tmpPath)...)
	if err == nil {
		if err := os.Rename(tmpPath, outputPath); err != nil {
			os.Remove(tmpPath)
			return "", fmt.Errorf("failed to move remuxed file: %w", err)
		}
		os.Remove(path)
		return outputPath, nil
	}

	os.Remove(tmpPath)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	s.log.Warn(ctx, "remux failed, renaming container", "path", path, "error", err)

	if err := os.Rename(path, outputPath); err != nil {
		return "", fmt.Errorf("failed to rename %s: %w", path, err)
	}
	return outputPath, nil
}

// BuildFFmpegArgs builds the ffmpeg command arguments
func (s *Service) BuildFFmpegArgs(inputPath, outputPath string) []string {
	return []string{
		"-y",                        // Overwrite output file
		"-loglevel", FFmpegLogLevel, // Errors only
		"-i", inputPath, // Input file
		"-c", CopyCodec, // Keep streams as they are
		"-movflags", FastStartFlag, // MP4 optimization
		outputPath,
	}
}

// generateOutputPath swaps the extension for .mp4
func generateOutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	return strings.TrimSuffix(inputPath, ext) + OutputExtensionMP4
}

func runCommand(ctx context.Context, name string, args ...string) error {
	if _, err := exec.LookPath(name); err != nil {
		return err
	}
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}
