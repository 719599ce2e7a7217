package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ytget/yt-saver-bot/internal/model"
)

// FileName is the per-user cookie jar file name.
const FileName = "cookies.txt"

// Store keeps one cookie jar per user.
type Store interface {
	// Put validates and stores data for userID, replacing any previous jar.
	Put(ctx context.Context, userID int64, fileName string, data []byte) (*model.CredentialRef, error)
	// Get returns the jar for userID, or nil when there is none.
	Get(ctx context.Context, userID int64) (*model.CredentialRef, error)
}

// FileStore writes jars to <dir>/<userID>/cookies.txt.
type FileStore struct {
	dir      string
	maxBytes int64
}

func NewFileStore(dir string, maxBytes int64) *FileStore {
	return &FileStore{dir: dir, maxBytes: maxBytes}
}

func (s *FileStore) Put(_ context.Context, userID int64, fileName string, data []byte) (*model.CredentialRef, error) {
	if err := Validate(fileName, data, s.maxBytes); err != nil {
		return nil, err
	}
	path := userPath(s.dir, userID)
	if err := writeFileAtomic(path, data); err != nil {
		return nil, err
	}
	return &model.CredentialRef{UserID: userID, Path: path}, nil
}

func (s *FileStore) Get(_ context.Context, userID int64) (*model.CredentialRef, error) {
	path := userPath(s.dir, userID)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat cookie file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cookie path %s is a directory", path)
	}
	return &model.CredentialRef{UserID: userID, Path: path}, nil
}

func userPath(dir string, userID int64) string {
	return filepath.Join(dir, strconv.FormatInt(userID, 10), FileName)
}

// writeFileAtomic writes data with mode 0600 via a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create cookie dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cookies-*")
	if err != nil {
		return fmt.Errorf("create temp cookie file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cookie file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod cookie file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cookie file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename cookie file: %w", err)
	}
	return nil
}
