package translate

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/hououinkami/wegram/internal/correlator"
	"github.com/hououinkami/wegram/internal/gateway"
	"github.com/hououinkami/wegram/internal/registry"
	"github.com/hououinkami/wegram/internal/telegrambot"
	"github.com/hououinkami/wegram/internal/wire"
)

// reprovisionKey marks a context already inside handleGroupGone, so a
// second group-gone failure is returned instead of re-provisioning again.
type reprovisionKey struct{}

// TranslateInbound is the (G) entry point: translate one decoded WeChat
// AddMsg and deliver it to its mirror Telegram chat, recording the result
// in the correlator. Called by the dispatcher's per-contact worker.
func (t *Translator) TranslateInbound(ctx context.Context, msg wire.AddMsg) error {
	contact, chatID, err := t.resolveChat(ctx, msg)
	if err != nil {
		return err
	}
	if contact == nil || chatID == registry.UnboundChatID {
		return nil // provisioning declined, or contact has is_receive=false
	}

	isSelf := msg.FromUserName == t.MyWxid
	var sender string
	if contact.IsGroup && !isSelf {
		sender, err = t.Groups.DisplayName(ctx, msg.FromUserName, msg.FromUserName)
		if err != nil {
			t.Log.Warn("group member lookup failed", "chatroom", msg.FromUserName, "error", err)
			sender = msg.FromUserName
		}
	}

	tgMsgID, err := t.sendByType(ctx, chatID, msg, sender)
	if err != nil {
		if isGroupGoneErr(err) && ctx.Value(reprovisionKey{}) == nil {
			return t.handleGroupGone(context.WithValue(ctx, reprovisionKey{}, true), contact, msg)
		}
		return fmt.Errorf("send to telegram: %w", err)
	}
	if tgMsgID == 0 {
		return nil // dropped: unknown/blacklisted type or no bridgeable content
	}

	return t.Corr.Put(correlator.Record{
		TgMsgID:    tgMsgID,
		FromWxid:   msg.FromUserName,
		ToWxid:     msg.ToUserName,
		WxMsgID:    msg.NewMsgId,
		CreateTime: msg.CreateTime,
		Content:    msg.Content,
	})
}

func (t *Translator) resolveChat(ctx context.Context, msg wire.AddMsg) (*registry.Contact, int64, error) {
	contact, err := t.Reg.Contacts.Get(ctx, msg.FromUserName)
	if err == registry.ErrContactNotFound {
		if t.Provision == nil {
			return nil, 0, nil
		}
		info, infoErr := t.GW.UserInfo(ctx, msg.FromUserName)
		if infoErr != nil {
			return nil, 0, fmt.Errorf("lookup new contact: %w", infoErr)
		}
		name, _ := info["NickName"].(string)
		avatar, _ := info["AvatarURL"].(string)
		isGroup := strings.HasSuffix(msg.FromUserName, "@chatroom")

		if _, provErr := t.Provision.Provision(ctx, msg.FromUserName, name, avatar, isGroup); provErr != nil {
			return nil, 0, fmt.Errorf("auto-provision group: %w", provErr)
		}
		contact, err = t.Reg.Contacts.Get(ctx, msg.FromUserName)
		if err != nil {
			return nil, 0, fmt.Errorf("reload provisioned contact: %w", err)
		}
		return contact, contact.ChatID, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("lookup contact: %w", err)
	}
	if !contact.IsReceive {
		return contact, registry.UnboundChatID, nil
	}
	return contact, contact.ChatID, nil
}

// handleGroupGone implements spec.md §4.7's "mirror group externally
// deleted" recovery: drop the stale binding and re-provision exactly once.
func (t *Translator) handleGroupGone(ctx context.Context, contact *registry.Contact, msg wire.AddMsg) error {
	if err := t.Reg.Contacts.Delete(ctx, contact.Wxid); err != nil {
		return fmt.Errorf("drop stale contact after group deletion: %w", err)
	}
	if t.Provision == nil {
		return nil
	}
	if _, err := t.Provision.Provision(ctx, contact.Wxid, contact.Name, contact.AvatarURL, contact.IsGroup); err != nil {
		return fmt.Errorf("re-provision after group deletion: %w", err)
	}
	return t.TranslateInbound(ctx, msg)
}

func isGroupGoneErr(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "chat not found") ||
		strings.Contains(s, "group was deactivated") ||
		strings.Contains(s, "kicked")
}

// sendByType implements spec.md §4.7's message-type table, returning the
// Telegram message id delivered, or 0 for a silently dropped message.
func (t *Translator) sendByType(ctx context.Context, chatID int64, msg wire.AddMsg, sender string) (int64, error) {
	prefix := senderLine(sender)

	switch wire.MsgType(msg.MsgType) {
	case wire.MsgText:
		m, err := t.Bot.SendMessage(ctx, chatID, prefix+msg.Content, 0)
		return msgID(m, err)

	case wire.MsgImage:
		return t.sendImage(ctx, chatID, msg, prefix)

	case wire.MsgVoice:
		return t.sendVoice(ctx, chatID, msg, prefix)

	case wire.MsgVideo:
		return t.sendVideo(ctx, chatID, msg, prefix)

	case wire.MsgEmoji:
		return t.sendAnimatedSticker(ctx, chatID, msg, prefix)

	case wire.MsgLocation:
		return t.sendLocation(ctx, chatID, msg, prefix)

	case wire.MsgApp:
		return t.sendAppMsg(ctx, chatID, msg, prefix)

	case wire.MsgRevoke:
		return t.sendSysMsg(ctx, chatID, msg, prefix)

	case wire.MsgVoIP:
		m, err := t.Bot.SendMessage(ctx, chatID, prefix+"[通话] "+msg.Content, 0)
		return msgID(m, err)

	default:
		t.Log.Debug("dropping unsupported msg type", "msg_type", msg.MsgType, "msg_id", msg.MsgId)
		return 0, nil
	}
}

func msgID(m telegrambot.Message, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return m.MessageID, nil
}

func (t *Translator) sendImage(ctx context.Context, chatID int64, msg wire.AddMsg, prefix string) (int64, error) {
	desc, err := gateway.ParseDescriptor(wire.MediaImage, msg)
	if err != nil {
		return 0, err
	}
	data, _, err := t.GW.FetchMedia(ctx, desc)
	if err != nil {
		return 0, fmt.Errorf("fetch image: %w", err)
	}
	m, err := t.Bot.SendPhoto(ctx, chatID, dataURI("image/jpeg", data), strings.TrimSuffix(prefix, "\n"))
	return msgID(m, err)
}

func (t *Translator) sendVideo(ctx context.Context, chatID int64, msg wire.AddMsg, prefix string) (int64, error) {
	desc, err := gateway.ParseDescriptor(wire.MediaVideo, msg)
	if err != nil {
		return 0, err
	}
	data, _, err := t.GW.FetchMedia(ctx, desc)
	if err != nil {
		return 0, fmt.Errorf("fetch video: %w", err)
	}
	m, err := t.Bot.SendVideo(ctx, chatID, dataURI("video/mp4", data), strings.TrimSuffix(prefix, "\n"))
	return msgID(m, err)
}

func (t *Translator) sendVoice(ctx context.Context, chatID int64, msg wire.AddMsg, prefix string) (int64, error) {
	desc, err := gateway.ParseDescriptor(wire.MediaVoice, msg)
	if err != nil {
		return 0, err
	}
	silk, _, err := t.GW.FetchMedia(ctx, desc)
	if err != nil {
		return 0, fmt.Errorf("fetch voice: %w", err)
	}
	if t.Voice == nil {
		m, err := t.Bot.SendMessage(ctx, chatID, prefix+"[语音]", 0)
		return msgID(m, err)
	}
	ogg, err := t.Voice.SILKToOGG(ctx, silk, 0)
	if err != nil {
		t.Log.Warn("silk to ogg transcode failed", "error", err)
		m, mErr := t.Bot.SendMessage(ctx, chatID, prefix+"[语音]", 0)
		return msgID(m, mErr)
	}
	m, err := t.Bot.SendVoice(ctx, chatID, dataURI("audio/ogg", ogg), 0)
	return msgID(m, err)
}

func (t *Translator) sendAnimatedSticker(ctx context.Context, chatID int64, msg wire.AddMsg, prefix string) (int64, error) {
	desc, err := gateway.ParseDescriptor(wire.MediaEmoji, msg)
	if err != nil {
		return 0, err
	}
	data, _, err := t.GW.FetchMedia(ctx, desc)
	if err != nil {
		return 0, fmt.Errorf("fetch emoji: %w", err)
	}
	m, err := t.Bot.SendAnimation(ctx, chatID, dataURI("image/gif", data))
	return msgID(m, err)
}

func (t *Translator) sendLocation(ctx context.Context, chatID int64, msg wire.AddMsg, prefix string) (int64, error) {
	lat, lon, label := parseLocation(msg.Content)
	if prefix == "" {
		m, err := t.Bot.SendVenue(ctx, chatID, lat, lon, label, "")
		return msgID(m, err)
	}
	// SendVenue carries no caption field for a sender line; emit it as a
	// companion text message immediately before the venue.
	if _, err := t.Bot.SendMessage(ctx, chatID, strings.TrimSuffix(prefix, "\n"), 0); err != nil {
		return 0, err
	}
	m, err := t.Bot.SendVenue(ctx, chatID, lat, lon, label, "")
	return msgID(m, err)
}

func (t *Translator) sendAppMsg(ctx context.Context, chatID int64, msg wire.AddMsg, prefix string) (int64, error) {
	app, err := wire.DecodeAppMsg([]byte(msg.Content))
	if err != nil {
		t.Log.Debug("dropping unsupported appmsg", "error", err, "msg_id", msg.MsgId)
		return 0, nil
	}

	switch v := app.(type) {
	case wire.AppMsgLink:
		text := fmt.Sprintf(`%s<a href="%s">%s</a>`, prefix, v.URL, v.Title)
		if v.Des != "" {
			text += "\n" + v.Des
		}
		for _, item := range v.Items {
			text += fmt.Sprintf(`%s  - <a href="%s">%s</a>`, "\n", item.URL, item.Title)
		}
		m, err := t.Bot.SendMessage(ctx, chatID, text, 0)
		return msgID(m, err)

	case wire.AppMsgFile:
		d := gateway.Descriptor{MsgID: msg.NewMsgId, FromWxid: msg.FromUserName, ToWxid: msg.ToUserName,
			Kind: wire.MediaApp, DataLen: v.TotalLen, AttachID: v.AppAttachID}
		data, _, fetchErr := t.GW.FetchMedia(ctx, d)
		if fetchErr != nil {
			return 0, fmt.Errorf("fetch app file: %w", fetchErr)
		}
		m, err := t.Bot.SendDocument(ctx, chatID, dataURI("application/octet-stream", data), prefix+v.Title)
		return msgID(m, err)

	case wire.AppMsgChatHistory:
		var b strings.Builder
		b.WriteString(prefix)
		b.WriteString("<blockquote expandable>")
		b.WriteString(v.Title)
		for _, r := range v.Records {
			fmt.Fprintf(&b, "\n%s %s: %s", r.SourceTime, r.SourceName, r.DataDesc)
		}
		b.WriteString("</blockquote>")
		m, err := t.Bot.SendMessage(ctx, chatID, b.String(), 0)
		return msgID(m, err)

	case wire.AppMsgMiniProgram:
		m, err := t.Bot.SendMessage(ctx, chatID, fmt.Sprintf("%s[小程序] %s - %s", prefix, v.Title, v.SourceName), 0)
		return msgID(m, err)

	case wire.AppMsgChannel:
		m, err := t.Bot.SendMessage(ctx, chatID, fmt.Sprintf("%s[视频号] %s %s", prefix, v.NickName, v.Desc), 0)
		return msgID(m, err)

	case wire.AppMsgNote:
		m, err := t.Bot.SendMessage(ctx, chatID, fmt.Sprintf("%s[协作笔记] %s", prefix, v.Title), 0)
		return msgID(m, err)

	case wire.AppMsgQuote:
		replyTo := int64(0)
		if rec, err := t.Corr.WeChatToTG(v.ReferMsgSvrID); err == nil {
			replyTo = rec
		}
		m, err := t.Bot.SendMessage(ctx, chatID, prefix+v.Title, replyTo)
		return msgID(m, err)

	case wire.AppMsgTransfer:
		m, err := t.Bot.SendMessage(ctx, chatID, fmt.Sprintf("%s[转账] %s", prefix, v.FeeDesc), 0)
		return msgID(m, err)

	default:
		t.Log.Debug("dropping unhandled appmsg variant", "msg_id", msg.MsgId)
		return 0, nil
	}
}

func (t *Translator) sendSysMsg(ctx context.Context, chatID int64, msg wire.AddMsg, prefix string) (int64, error) {
	sys, err := wire.DecodeSysMsg([]byte(msg.Content))
	if err != nil {
		t.Log.Debug("dropping unsupported sysmsg", "error", err, "msg_id", msg.MsgId)
		return 0, nil
	}

	switch v := sys.(type) {
	case wire.SysMsgRevoke:
		if msg.FromUserName == t.MyWxid {
			return 0, nil // self-originated revocation already visible on the Telegram side
		}
		replyTo := int64(0)
		if tg, err := t.Corr.WeChatToTG(v.NewMsgID); err == nil {
			replyTo = tg
		}
		m, err := t.Bot.SendMessage(ctx, chatID, prefix+v.ReplaceMsg, replyTo)
		return msgID(m, err)
	case wire.SysMsgPat:
		text := strings.ReplaceAll(v.Template, "${wxid}", v.FromWxid)
		m, err := t.Bot.SendMessage(ctx, chatID, prefix+text, 0)
		return msgID(m, err)
	default:
		return 0, nil
	}
}

func dataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// parseLocation extracts x, y, label from a MsgLocation's XML content.
func parseLocation(content string) (lat, lon float64, label string) {
	find := func(attr string) string {
		key := attr + `="`
		i := strings.Index(content, key)
		if i < 0 {
			return ""
		}
		rest := content[i+len(key):]
		j := strings.Index(rest, `"`)
		if j < 0 {
			return ""
		}
		return rest[:j]
	}
	fmt.Sscanf(find("x"), "%f", &lat)
	fmt.Sscanf(find("y"), "%f", &lon)
	label = find("label")
	return
}
