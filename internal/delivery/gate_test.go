package delivery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-saver-bot/internal/model"
)

const mib = 1024 * 1024

// sparse creates a file of the given size without writing its contents.
func sparse(t *testing.T, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "youtube-abc.mp4")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
	return path
}

func TestCheck(t *testing.T) {
	path := sparse(t, 10*mib)

	size, err := Check(path, DefaultMaxBytes)
	require.NoError(t, err)
	require.Equal(t, int64(10*mib), size)

	_, err = Check(path, 5*mib)
	require.ErrorIs(t, err, ErrTooLarge)

	_, err = Check(filepath.Join(t.TempDir(), "missing.mp4"), DefaultMaxBytes)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrTooLarge)
}

func TestGate_DeliverSuccessRemovesFile(t *testing.T) {
	path := sparse(t, 10*mib)
	g := NewGate(0, nil)

	var uploaded int64
	err := g.Deliver(context.Background(), &model.Artifact{Path: path, SourceID: "youtube-abc"}, func(_ context.Context, art *model.Artifact) error {
		uploaded = art.Size
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(10*mib), uploaded)

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestGate_DeliverTooLargeRemovesFile(t *testing.T) {
	path := sparse(t, 80*mib)
	g := NewGate(DefaultMaxBytes, nil)

	err := g.Deliver(context.Background(), &model.Artifact{Path: path}, func(context.Context, *model.Artifact) error {
		t.Fatal("upload must not be attempted")
		return nil
	})
	require.Equal(t, model.KindTooLarge, model.KindOf(err))
	require.ErrorIs(t, err, ErrTooLarge)

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestGate_DeliverUploadFailureRemovesFile(t *testing.T) {
	path := sparse(t, mib)
	g := NewGate(DefaultMaxBytes, nil)

	err := g.Deliver(context.Background(), &model.Artifact{Path: path}, func(context.Context, *model.Artifact) error {
		return errors.New("Bad Request: file too big")
	})
	require.Equal(t, model.KindAcquisitionFailed, model.KindOf(err))

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestGate_Limit(t *testing.T) {
	require.Equal(t, DefaultMaxBytes, NewGate(-1, nil).Limit())
	require.Equal(t, int64(20*mib), NewGate(20*mib, nil).Limit())
}
