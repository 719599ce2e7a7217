package download

import "strings"

// Lowercased stderr fragments yt-dlp prints when a source needs a login.
var authWallMarkers = []string{
	"sign in to confirm",
	"login required",
	"log in",
	"use --cookies",
	"cookies-from-browser",
	"private video",
	"this video is private",
	"members-only",
	"join this channel",
	"confirm your age",
	"age-restricted",
	"inappropriate for some users",
	"requires authentication",
	"account authentication is required",
}

// Failures that will not go away on a second attempt.
var permanentMarkers = []string{
	"unsupported url",
	"is not a valid url",
	"video unavailable",
	"http error 404",
	"http error 410",
	"requested format is not available",
	"no video formats found",
	"has been removed",
}

func isAuthWall(stderr string) bool {
	return containsAny(strings.ToLower(stderr), authWallMarkers)
}

func isPermanent(stderr string) bool {
	s := strings.ToLower(stderr)
	return containsAny(s, permanentMarkers) || containsAny(s, authWallMarkers)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// lastLine trims stderr to its final non-empty line for logs.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
