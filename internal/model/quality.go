package model

import "strings"

// Quality is the user-facing quality choice offered on the inline keyboard.
type Quality string

const (
	QualityBest    Quality = "best"
	Quality1080p   Quality = "1080p"
	Quality720p    Quality = "720p"
	QualityDefault Quality = "default"
)

// Qualities lists every supported choice in presentation order.
func Qualities() []Quality {
	return []Quality{QualityBest, Quality1080p, Quality720p, QualityDefault}
}

// ParseQuality maps a callback payload or free-form choice to a Quality.
// Unknown input falls back to QualityBest.
func ParseQuality(s string) Quality {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "best":
		return QualityBest
	case "1080", "1080p":
		return Quality1080p
	case "720", "720p":
		return Quality720p
	case "dl", "download", "default":
		return QualityDefault
	default:
		return QualityBest
	}
}

// CallbackData is the compact payload carried by the quality button.
func (q Quality) CallbackData() string {
	switch q {
	case Quality1080p:
		return "1080"
	case Quality720p:
		return "720"
	case QualityDefault:
		return "dl"
	default:
		return "best"
	}
}

// Label is the button caption for the quality.
func (q Quality) Label() string {
	switch q {
	case Quality1080p:
		return "1080p"
	case Quality720p:
		return "720p"
	case QualityDefault:
		return "Download MP4"
	default:
		return "Best"
	}
}

func (q Quality) String() string {
	return string(q)
}
