package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	base := errors.New("exit status 1")
	err := NewError(KindAcquisitionFailed, "yt-dlp failed", base)
	wrapped := fmt.Errorf("fetch: %w", err)

	require.Equal(t, KindAcquisitionFailed, KindOf(wrapped))
	require.True(t, IsKind(wrapped, KindAcquisitionFailed))
	require.ErrorIs(t, wrapped, base)
	require.Equal(t, KindUnknown, KindOf(base))
	require.False(t, IsKind(nil, KindUnknown))
}

func TestError_Message(t *testing.T) {
	require.Equal(t, "too_large: 80 MiB", NewError(KindTooLarge, "80 MiB", nil).Error())
	require.Equal(t, "credentials_required: restricted: boom",
		NewError(KindCredentialsRequired, "restricted", errors.New("boom")).Error())
}
