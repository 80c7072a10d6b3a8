// Package revoke implements the Revocation/Edit Handler (component J):
// the two Telegram-originated revocation flows named in spec.md §4.10.
// The third flow (WeChat system revokemsg -> Telegram reply) lives in
// (G)'s own sendSysMsg, since it is just one more inbound message-type
// branch and needs none of this package's WeChat-call plumbing.
package revoke

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hououinkami/wegram/internal/correlator"
	"github.com/hououinkami/wegram/internal/gateway"
	"github.com/hououinkami/wegram/internal/locale"
	"github.com/hououinkami/wegram/internal/telegrambot"
)

// Handler drives WeChat REVOKE calls from Telegram-side revocation
// triggers and cleans up the triggering command message.
type Handler struct {
	GW   *gateway.Client
	Bot  *telegrambot.Client
	Corr *correlator.Correlator
	Log  *slog.Logger

	// Lang selects the locale table HandleCommand's notices are drawn
	// from; defaults to "zh" if left unset.
	Lang string
}

// New builds a Handler.
func New(gw *gateway.Client, bot *telegrambot.Client, corr *correlator.Correlator, log *slog.Logger) *Handler {
	return &Handler{GW: gw, Bot: bot, Corr: corr, Log: log.With("component", "revoke")}
}

// HandleCommand runs the /revoke (or /rm) command flow: chatID/commandMsgID
// name the command message itself, replyToID the Telegram message it
// replied to. Per spec.md §4.10, a miss notifies the user instead of
// failing silently; a hit calls REVOKE and deletes the command message.
func (h *Handler) HandleCommand(ctx context.Context, chatID, commandMsgID, replyToID int64) error {
	if replyToID == 0 {
		_, err := h.Bot.SendMessage(ctx, chatID, locale.Get(h.Lang, "no_reply"), 0)
		return err
	}

	rec, err := h.Corr.TGToWeChat(replyToID)
	if err == correlator.ErrCorrelationMiss {
		_, sendErr := h.Bot.SendMessage(ctx, chatID, locale.Get(h.Lang, "revoke_failed"), replyToID)
		return sendErr
	}
	if err != nil {
		return fmt.Errorf("lookup tg message %d: %w", replyToID, err)
	}

	if _, err := h.GW.Revoke(ctx, rec.ToWxid, rec.ClientMsgID, rec.CreateTime, rec.WxMsgID); err != nil {
		return fmt.Errorf("revoke wechat message for tg %d: %w", replyToID, err)
	}

	return h.Bot.DeleteMessage(ctx, chatID, commandMsgID)
}

// HandleUserSessionDelete runs the user-session delete-event flow: each id
// in deletedIDs is a user-session (telethon) message id observed deleted.
// Misses are skipped silently (the user session's own delete events cover
// messages this bridge never correlated, e.g. ones sent before it started).
func (h *Handler) HandleUserSessionDelete(ctx context.Context, deletedIDs []int64) error {
	for _, id := range deletedIDs {
		rec, err := h.Corr.TelethonToWeChat(id)
		if err == correlator.ErrCorrelationMiss {
			continue
		}
		if err != nil {
			return fmt.Errorf("lookup telethon message %d: %w", id, err)
		}
		if _, err := h.GW.Revoke(ctx, rec.ToWxid, rec.ClientMsgID, rec.CreateTime, rec.WxMsgID); err != nil {
			h.Log.Warn("revoke failed for deleted user-session message", "telethon_msg_id", id, "error", err)
		}
	}
	return nil
}
