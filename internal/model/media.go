package model

import (
	"regexp"
	"strings"
)

// Metadata describes a resolved media source. It is derived per submission and
// never persisted beyond the session that asked for it.
type Metadata struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	Platform   string `json:"platform"`
	Uploader   string `json:"uploader,omitempty"`
	WebpageURL string `json:"webpage_url,omitempty"`
	// Restricted is set when the source is known to need authentication.
	Restricted bool `json:"restricted,omitempty"`
}

var unsafeIDChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SourceID returns a filesystem-safe stable identifier for the source,
// used to derive the artifact path.
func (m *Metadata) SourceID() string {
	platform := strings.ToLower(unsafeIDChars.ReplaceAllString(m.Platform, ""))
	if platform == "" {
		platform = "media"
	}
	id := unsafeIDChars.ReplaceAllString(m.ID, "_")
	if id == "" {
		id = "unknown"
	}
	return platform + "-" + id
}

// Artifact is a downloaded media file awaiting delivery.
type Artifact struct {
	Path     string
	SourceID string
	Size     int64
}

// CredentialRef points at a cookie jar usable by the download engine.
type CredentialRef struct {
	UserID int64
	Path   string
	// Shared marks the operator supplied default cookie file.
	Shared bool
}
