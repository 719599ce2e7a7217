package convert

import "context"

// Normalizer turns a finished download into an .mp4 file.
type Normalizer interface {
	Normalize(ctx context.Context, path string) (string, error)
}
