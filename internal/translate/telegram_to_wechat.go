package translate

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/hououinkami/wegram/internal/correlator"
	"github.com/hououinkami/wegram/internal/registry"
	"github.com/hououinkami/wegram/internal/wire"
)

// TelegramUpdate is the canonical shape TranslateOutbound consumes. Only
// the Bot-API poller (bridge/ingress.go) builds it; nothing in the bridge
// sets FromUserSession.
type TelegramUpdate struct {
	ChatID      int64
	MessageID   int64
	FromBot     bool
	IsAdminEvent bool // members joined/left, title/photo changed, pinned
	ReplyToID   int64

	Text     string
	HasLink  bool
	LinkURL  string
	LinkTitle string

	PhotoFileID  string
	VideoFileID  string
	VoiceFileID  string
	VoiceDurSec  int
	StickerFileID       string
	StickerFileUniqueID string
	StickerMIME         string
	DocumentFileID   string
	DocumentFileName string

	HasLocation bool
	Latitude    float64
	Longitude   float64
	VenueTitle  string

	FromUserSession bool // observed via (C) rather than (B)
	SendTime        time.Time
}

// CommandDispatcher is (K): a `/`-prefixed Telegram message is routed here
// instead of being translated. The full update (not just chatID/text) is
// passed through so scope-gated commands like /revoke can reach the
// message it replied to.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, upd TelegramUpdate) (handled bool, err error)
}

// TranslateOutbound is the (H) entry point: translate one Telegram update
// into a WeChat gateway call, recording the result in the correlator.
func (t *Translator) TranslateOutbound(ctx context.Context, cmds CommandDispatcher, upd TelegramUpdate) error {
	if upd.FromBot || upd.IsAdminEvent {
		return nil
	}

	// Commands dispatch before the contact lookup: bot-DM-scope commands
	// (/friend, /add, /login) run in a chat with no registry row at all,
	// and a mirror-group command should still be deletable even if its
	// own contact lookup later fails for some other reason.
	if strings.HasPrefix(strings.TrimSpace(upd.Text), "/") {
		handled, cmdErr := cmds.Dispatch(ctx, upd)
		if cmdErr != nil {
			return fmt.Errorf("dispatch command: %w", cmdErr)
		}
		if handled {
			_ = t.Bot.DeleteMessage(ctx, upd.ChatID, upd.MessageID)
			return nil
		}
	}

	contact, err := t.Reg.Contacts.GetByChatID(ctx, upd.ChatID)
	if err == registry.ErrContactNotFound {
		return nil // silent drop per spec.md §4.8: not a mirror group, not a recognized command
	}
	if err != nil {
		return fmt.Errorf("lookup contact by chat id: %w", err)
	}

	result, err := t.sendToWeChat(ctx, contact, upd)
	if err != nil {
		return fmt.Errorf("send to wechat: %w", err)
	}
	if result == nil {
		return nil
	}

	rec := correlator.Record{
		TgMsgID:     upd.MessageID,
		FromWxid:    t.MyWxid,
		ToWxid:      contact.Wxid,
		WxMsgID:     result.NewMsgId,
		ClientMsgID: result.ClientMsgId,
		CreateTime:  result.CreateTime,
		Content:     upd.Text,
	}
	if upd.FromUserSession {
		if telethonID, ok := t.correlateUserSessionSend(upd); ok {
			rec.TelethonMsgID = telethonID
		}
	}
	return t.Corr.Put(rec)
}

func (t *Translator) sendToWeChat(ctx context.Context, contact *registry.Contact, upd TelegramUpdate) (*wire.SendResult, error) {
	toWxid := contact.Wxid

	switch {
	case upd.StickerFileID != "":
		return t.sendSticker(ctx, toWxid, upd)

	case upd.PhotoFileID != "":
		data, err := t.Files.Download(ctx, upd.PhotoFileID)
		if err != nil {
			return nil, fmt.Errorf("download photo: %w", err)
		}
		resp, err := t.GW.SendImage(ctx, toWxid, base64.StdEncoding.EncodeToString(data))
		return decodeSendResult(resp, err)

	case upd.VideoFileID != "":
		data, err := t.Files.Download(ctx, upd.VideoFileID)
		if err != nil {
			return nil, fmt.Errorf("download video: %w", err)
		}
		thumb := neutralThumbnailBase64()
		resp, err := t.GW.SendVideo(ctx, toWxid, base64.StdEncoding.EncodeToString(data), thumb, 0)
		return decodeSendResult(resp, err)

	case upd.VoiceFileID != "":
		return t.sendVoiceToWeChat(ctx, toWxid, upd)

	case upd.DocumentFileID != "":
		data, err := t.Files.Download(ctx, upd.DocumentFileID)
		if err != nil {
			return nil, fmt.Errorf("download document: %w", err)
		}
		resp, err := t.GW.UploadFile(ctx, toWxid, upd.DocumentFileName, base64.StdEncoding.EncodeToString(data))
		return decodeSendResult(resp, err)

	case upd.HasLocation:
		resp, err := t.GW.SendLocation(ctx, toWxid, upd.Latitude, upd.Longitude, upd.VenueTitle, "")
		return decodeSendResult(resp, err)

	case upd.ReplyToID != 0:
		return t.sendQuoteReply(ctx, toWxid, upd)

	case upd.HasLink:
		xmlPayload := fmt.Sprintf(`<msg><appmsg><title>%s</title><des></des><type>5</type><url>%s</url></appmsg></msg>`,
			upd.LinkTitle, upd.LinkURL)
		resp, err := t.GW.SendApp(ctx, toWxid, xmlPayload)
		return decodeSendResult(resp, err)

	default:
		text := stripSenderLine(upd.Text)
		if alias, ok := IsEmojiAliasOnly(text); ok {
			text = alias
		} else {
			text = RewriteEmojiAliases(text)
		}
		resp, err := t.GW.SendText(ctx, toWxid, text)
		return decodeSendResult(resp, err)
	}
}

func (t *Translator) sendSticker(ctx context.Context, toWxid string, upd TelegramUpdate) (*wire.SendResult, error) {
	if t.Reg.Stickers != nil {
		if entry, err := t.Reg.Stickers.Get(upd.StickerFileUniqueID); err == nil {
			resp, err := t.GW.SendEmoji(ctx, toWxid, entry.MD5, entry.Size)
			return decodeSendResult(resp, err)
		}
	}

	data, err := t.Files.Download(ctx, upd.StickerFileID)
	if err != nil {
		return nil, fmt.Errorf("download sticker: %w", err)
	}
	if t.Sticker == nil {
		return nil, fmt.Errorf("no sticker converter configured")
	}
	gifData, totalLen, md5sum, err := t.Sticker.ToWeChatEmoji(ctx, data, upd.StickerMIME)
	if err != nil {
		return nil, fmt.Errorf("convert sticker: %w", err)
	}
	_ = gifData // payload submitted with empty md5 below; gateway side-indexes it

	resp, err := t.GW.SendEmoji(ctx, toWxid, "", totalLen)
	result, err := decodeSendResult(resp, err)
	if err != nil || result == nil {
		return result, err
	}
	if t.Reg.Stickers != nil && md5sum != "" {
		_ = t.Reg.Stickers.Put(registry.StickerEntry{
			FileUniqueID: upd.StickerFileUniqueID, MD5: md5sum, Size: totalLen, Name: upd.StickerFileID,
		})
	}
	return result, nil
}

func (t *Translator) sendVoiceToWeChat(ctx context.Context, toWxid string, upd TelegramUpdate) (*wire.SendResult, error) {
	ogg, err := t.Files.Download(ctx, upd.VoiceFileID)
	if err != nil {
		return nil, fmt.Errorf("download voice: %w", err)
	}
	if t.Voice == nil {
		return nil, fmt.Errorf("no voice converter configured")
	}
	silk, durationMs, err := t.Voice.OGGToSILK(ctx, ogg)
	if err != nil {
		return nil, fmt.Errorf("transcode voice: %w", err)
	}
	resp, err := t.GW.SendVoice(ctx, toWxid, base64.StdEncoding.EncodeToString(silk), durationMs)
	return decodeSendResult(resp, err)
}

func (t *Translator) sendQuoteReply(ctx context.Context, toWxid string, upd TelegramUpdate) (*wire.SendResult, error) {
	rec, err := t.Corr.TGToWeChat(upd.ReplyToID)
	if err != nil {
		// No correlation: fall back to a plain text send rather than
		// dropping the message outright.
		resp, sendErr := t.GW.SendText(ctx, toWxid, upd.Text)
		return decodeSendResult(resp, sendErr)
	}
	xmlPayload := fmt.Sprintf(
		`<msg><appmsg><title>%s</title><type>57</type><refermsg><svrid>%d</svrid><content>%s</content></refermsg></appmsg></msg>`,
		upd.Text, rec.WxMsgID, rec.Content)
	resp, err := t.GW.SendApp(ctx, toWxid, xmlPayload)
	return decodeSendResult(resp, err)
}

// correlateUserSessionSend is the time-window correlation check: it
// accepts upd.MessageID when upd.SendTime is set and no more than 2s old.
// It walks no message history and does not compare message bodies.
func (t *Translator) correlateUserSessionSend(upd TelegramUpdate) (int64, bool) {
	if upd.SendTime.IsZero() {
		return 0, false
	}
	if time.Since(upd.SendTime) > 2*time.Second {
		return 0, false
	}
	return upd.MessageID, true
}

func decodeSendResult(resp map[string]any, err error) (*wire.SendResult, error) {
	if err != nil {
		return nil, err
	}
	data, _ := resp["Data"].(map[string]any)
	if data == nil {
		data = resp
	}
	result := &wire.SendResult{}
	if v, ok := data["NewMsgId"].(float64); ok {
		result.NewMsgId = int64(v)
	}
	if v, ok := data["ClientMsgId"].(string); ok {
		result.ClientMsgId = v
	}
	if v, ok := data["CreateTime"].(float64); ok {
		result.CreateTime = int64(v)
	}
	if v, ok := data["ToUserName"].(string); ok {
		result.ToUserName = v
	}
	return result, nil
}

// neutralThumbnailBase64 is the fallback video thumbnail spec.md §4.8
// requires "if absent": a minimal 1x1 black JPEG.
func neutralThumbnailBase64() string {
	const blackPixelJPEG = "/9j/4AAQSkZJRgABAQAAAQABAAD/2wBDAAMCAgICAgMCAgIDAwMDBAYEBAQEBAgGBgUGCQgKCgkICQkKDA8MCgsOCwkJDRENDg8QEBEQCgwSExIQEw8QEBD/2wBDAQMDAwQDBAgEBAgQCwkLEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBD/wAARCAABAAEDASIAAhEBAxEB/8QAFQABAQAAAAAAAAAAAAAAAAAAAAj/xAAUEAEAAAAAAAAAAAAAAAAAAAAA/8QAFQEBAQAAAAAAAAAAAAAAAAAAAAX/xAAUEQEAAAAAAAAAAAAAAAAAAAAA/9oADAMBAAIRAxEAPwCdABmX/9k="
	return blackPixelJPEG
}
