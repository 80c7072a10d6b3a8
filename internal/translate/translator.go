package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hououinkami/wegram/internal/correlator"
	"github.com/hououinkami/wegram/internal/gateway"
	"github.com/hououinkami/wegram/internal/registry"
	"github.com/hououinkami/wegram/internal/telegrambot"
)

// VoiceConverter isolates the two voice transcoding legs (OGG<->PCM via
// ffmpeg, PCM<->SILK via the WeChat codec) behind the narrowest interface
// the translators need, grounded on the teacher's
// internal/provider/ipad/voiceconv.go graceful-degradation shape: a missing
// ffmpeg binary is a construction-time error, not a per-call one.
type VoiceConverter interface {
	// OGGToSILK converts a Telegram voice note (OGG/Opus) into a WeChat
	// SILK payload plus its duration in milliseconds.
	OGGToSILK(ctx context.Context, ogg []byte) (silk []byte, durationMs int, err error)
	// SILKToOGG converts a WeChat voice message (SILK) into an OGG/Opus
	// payload suitable for Telegram's sendVoice.
	SILKToOGG(ctx context.Context, silk []byte, durationMs int) (ogg []byte, err error)
}

// StickerConverter turns a downloaded Telegram sticker into the
// GIF/static-image payload WeChat's SEND_EMOJI accepts. The implementation
// in internal/media converts webp and webm and returns an error for tgs.
type StickerConverter interface {
	ToWeChatEmoji(ctx context.Context, data []byte, mimeType string) (gifData string, totalLen int64, md5 string, err error)
}

// Downloader fetches a Telegram file by file_id, returning its raw bytes.
type Downloader interface {
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Translator holds every dependency shared by the WeChat->Telegram (G) and
// Telegram->WeChat (H) directions: the gateway and bot clients, the
// registry, the correlator, group-member display-name cache, and the
// media conversion strategies.
type Translator struct {
	GW       *gateway.Client
	Bot      *telegrambot.Client
	Reg      *registry.Registry
	Corr     *correlator.Correlator
	Groups   *GroupCache
	Voice    VoiceConverter
	Sticker  StickerConverter
	Files    Downloader
	MyWxid   string
	Provision GroupProvisioner
	Log      *slog.Logger
}

// GroupProvisioner is (I), invoked synchronously by (G) when a message
// arrives for a wxid with no registry entry and auto-creation is enabled.
type GroupProvisioner interface {
	Provision(ctx context.Context, wxid, displayName, avatarURL string, isGroup bool) (chatID int64, err error)
}

// senderLine renders spec.md §4.7's sender-line convention: an expandable
// blockquote naming the sender for group messages, nothing for 1:1 chats.
func senderLine(displayName string) string {
	if displayName == "" {
		return ""
	}
	return fmt.Sprintf("<blockquote expandable>%s</blockquote>\n", displayName)
}

// stripSenderLine removes a leading sender-line blockquote so outbound
// replies from Telegram don't echo it back into WeChat (spec.md §4.8's
// "text with expandable-blockquote first entity" row).
func stripSenderLine(text string) string {
	const open = "<blockquote expandable>"
	if !strings.HasPrefix(text, open) {
		return text
	}
	closeIdx := strings.Index(text, "</blockquote>")
	if closeIdx < 0 {
		return text
	}
	rest := text[closeIdx+len("</blockquote>"):]
	return strings.TrimPrefix(rest, "\n")
}
