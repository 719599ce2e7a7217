// Package format maps a quality choice to a yt-dlp format expression.
package format

import "github.com/ytget/yt-saver-bot/internal/model"

// Format expressions passed to yt-dlp -f.
const (
	ExprBest    = "bestvideo+bestaudio/best"
	Expr1080p   = "bestvideo[height<=1080]+bestaudio/best[height<=1080]"
	Expr720p    = "bestvideo[height<=720]+bestaudio/best[height<=720]"
	ExprDefault = "bv*+ba/b"
)

// Select returns the format expression for q. Unknown values select the best
// available format.
func Select(q model.Quality) string {
	switch q {
	case model.Quality1080p:
		return Expr1080p
	case model.Quality720p:
		return Expr720p
	case model.QualityDefault:
		return ExprDefault
	default:
		return ExprBest
	}
}
