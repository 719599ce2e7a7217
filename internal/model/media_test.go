package model

import "testing"

func TestMetadata_SourceID(t *testing.T) {
	tests := []struct {
		name     string
		meta     Metadata
		expected string
	}{
		{name: "youtube", meta: Metadata{ID: "dQw4w9WgXcQ", Platform: "Youtube"}, expected: "youtube-dQw4w9WgXcQ"},
		{name: "path separators", meta: Metadata{ID: "../../etc/passwd", Platform: "Generic"}, expected: "generic-_etc_passwd"},
		{name: "empty platform", meta: Metadata{ID: "abc"}, expected: "media-abc"},
		{name: "empty id", meta: Metadata{Platform: "TikTok"}, expected: "tiktok-unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.meta.SourceID(); got != tt.expected {
				t.Errorf("SourceID() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestMetadata_SourceIDIsDeterministic(t *testing.T) {
	m := Metadata{ID: "abc123", Platform: "Instagram"}
	if m.SourceID() != m.SourceID() {
		t.Error("SourceID must be stable across calls")
	}
}
