// Package download resolves media metadata and acquires media files with
// yt-dlp (via github.com/lrstanley/go-ytdlp). It tracks in-flight tasks,
// applies the retry policy and classifies failures into pipeline error kinds.
package download
