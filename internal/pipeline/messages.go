package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ytget/yt-saver-bot/internal/history"
	"github.com/ytget/yt-saver-bot/internal/model"
)

// User-facing texts. Internal error detail never reaches these.
const (
	MsgGreeting = "Send any video link (YouTube, Instagram, FB, TikTok)."
	MsgHelp     = "Send a video link and pick a quality.\n\n" +
		"/cookies - upload a cookies.txt for videos that need a login\n" +
		"/history - your last downloads\n" +
		"/cancel - forget the current link"
	MsgNotALink           = "That doesn't look like a link. " + MsgGreeting
	MsgFetching           = "🔍 Fetching video details..."
	MsgResolveFailed      = "❌ Unable to fetch video details."
	MsgChooseQuality      = "Choose a quality:"
	MsgDownloading        = "⏳ Downloading… Please wait..."
	MsgDone               = "✅ Done!"
	MsgDownloadFailed     = "❌ Download failed. Try another link."
	MsgCredentialsNeeded  = "🔒 This video needs a login. Send your cookies.txt file (Netscape format) and I'll try again."
	MsgCookiesPrompt      = "📎 Send your cookies.txt file (Netscape format)."
	MsgCookiesSaved       = "✅ Cookies saved."
	MsgCookiesInvalid     = "❌ Please send a cookies.txt file in Netscape format."
	MsgCookiesFailed      = "❌ Couldn't save your cookies. Please try again."
	MsgAlreadyDownloading = "⏳ A download is already in progress. Please wait."
	MsgExpired            = "⚠️ This button has expired. Send the link again."
	MsgBusy               = "🚦 Too many downloads right now. Please try again in a minute."
	MsgSlowDown           = "🐢 Slow down a little, please."
	MsgCancelled          = "Cancelled. Send a new link whenever you like."
	MsgCannotCancel       = "⏳ The current download can't be stopped. It will finish shortly."
	MsgNoHistory          = "No downloads yet."
	MsgHistoryFailed      = "❌ Couldn't load your history."
)

const maxTitleRunes = 200

func tooLargeMessage(limit int64) string {
	return fmt.Sprintf("❌ File is larger than %s. Telegram cannot send it.", humanize.IBytes(uint64(limit)))
}

// failureMessage picks the reply for a failed download by error kind.
func failureMessage(kind model.ErrorKind, limit int64) string {
	switch kind {
	case model.KindTooLarge:
		return tooLargeMessage(limit)
	case model.KindCredentialsRequired:
		return MsgCredentialsNeeded
	case model.KindResolutionFailed:
		return MsgResolveFailed
	case model.KindInvalidAction:
		return MsgExpired
	default:
		return MsgDownloadFailed
	}
}

func promptCaption(meta model.Metadata) string {
	title := meta.Title
	if title == "" {
		title = "Untitled"
	}
	platform := meta.Platform
	if platform == "" {
		platform = "Unknown"
	}
	return fmt.Sprintf("🎬 %s\n📌 Platform: %s\n\n%s", truncate(title, maxTitleRunes), platform, MsgChooseQuality)
}

func videoCaption(meta model.Metadata) string {
	return truncate(meta.Title, maxTitleRunes)
}

func qualityButtons() []model.Button {
	qs := model.Qualities()
	buttons := make([]model.Button, 0, len(qs))
	for _, q := range qs {
		if q == model.QualityDefault {
			continue
		}
		buttons = append(buttons, model.Button{Text: q.Label(), Data: q.CallbackData()})
	}
	return buttons
}

func historyMessage(records []history.Record, now time.Time) string {
	if len(records) == 0 {
		return MsgNoHistory
	}
	var b strings.Builder
	b.WriteString("🗂 Your last downloads:\n")
	for _, r := range records {
		mark := "✅"
		if r.Status != model.TaskStatusCompleted.String() {
			mark = "❌"
		}
		title := r.Title
		if title == "" {
			title = r.URL
		}
		fmt.Fprintf(&b, "\n%s %s", mark, truncate(title, 60))
		if r.SizeBytes > 0 && mark == "✅" {
			fmt.Fprintf(&b, " (%s)", humanize.IBytes(uint64(r.SizeBytes)))
		}
		fmt.Fprintf(&b, ", %s", humanize.RelTime(r.CompletedAt, now, "ago", "from now"))
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
