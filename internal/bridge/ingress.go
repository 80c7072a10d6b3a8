package bridge

import (
	"context"
	"time"

	"github.com/hououinkami/wegram/internal/command"
	"github.com/hououinkami/wegram/internal/telegrambot"
	"github.com/hououinkami/wegram/internal/translate"
)

// handleTelegramUpdate is the Bot API poller's per-update entry point:
// route a callback-query button press to the command surface, everything
// else through the ordinary outbound translation path.
func (b *Bridge) handleTelegramUpdate(ctx context.Context, u telegrambot.Update) {
	if u.CallbackQuery != nil {
		cc := &command.Context{Ctx: ctx}
		if u.CallbackQuery.Message != nil {
			cc.ChatID = u.CallbackQuery.Message.Chat.ID
		}
		if err := b.Commands.HandleCallback(cc, u.CallbackQuery.Data, u.CallbackQuery.ID); err != nil {
			b.Log.Error("callback handling failed", "error", err)
		}
		return
	}
	if u.Message == nil {
		return
	}

	upd := toTelegramUpdate(*u.Message)
	start := time.Now()
	if err := b.Translator.TranslateOutbound(ctx, b.Commands, upd); err != nil {
		b.Log.Error("outbound translation failed", "chat_id", upd.ChatID, "error", err)
		b.Metrics.IncrMessagesFailed()
		return
	}
	b.Metrics.ObserveTelegramToWeChatLatency(time.Since(start))
	b.Metrics.IncrMessagesSent()
}

// toTelegramUpdate converts one Bot API message into the canonical
// translate.TelegramUpdate shape TranslateOutbound consumes.
func toTelegramUpdate(msg telegrambot.FullMessage) translate.TelegramUpdate {
	upd := translate.TelegramUpdate{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Text:      msg.Text,
		SendTime:  time.Unix(msg.Date, 0),
	}
	if msg.From != nil {
		upd.FromBot = msg.From.IsBot
	}
	if msg.ReplyToMessage != nil {
		upd.ReplyToID = msg.ReplyToMessage.MessageID
	}
	if msg.NewChatTitle != "" || len(msg.NewChatPhoto) > 0 || msg.PinnedMessage != nil ||
		len(msg.NewChatMembers) > 0 || msg.LeftChatMember != nil {
		upd.IsAdminEvent = true
	}

	if len(msg.Photo) > 0 {
		upd.PhotoFileID = msg.Photo[len(msg.Photo)-1].FileID
	}
	if msg.Video != nil {
		upd.VideoFileID = msg.Video.FileID
	}
	if msg.Voice != nil {
		upd.VoiceFileID = msg.Voice.FileID
		upd.VoiceDurSec = msg.Voice.Duration
	}
	if msg.Sticker != nil {
		upd.StickerFileID = msg.Sticker.FileID
		upd.StickerFileUniqueID = msg.Sticker.FileUniqueID
		switch {
		case msg.Sticker.IsVideo:
			upd.StickerMIME = "video/webm"
		case msg.Sticker.IsAnimated:
			upd.StickerMIME = "application/x-tgsticker"
		default:
			upd.StickerMIME = "image/webp"
		}
	}
	if msg.Document != nil {
		upd.DocumentFileID = msg.Document.FileID
		upd.DocumentFileName = msg.Document.FileName
	}
	if msg.Location != nil {
		upd.HasLocation = true
		upd.Latitude = msg.Location.Latitude
		upd.Longitude = msg.Location.Longitude
	}
	if msg.Venue != nil {
		upd.HasLocation = true
		upd.Latitude = msg.Venue.Location.Latitude
		upd.Longitude = msg.Venue.Location.Longitude
		upd.VenueTitle = msg.Venue.Title
	}

	return upd
}
