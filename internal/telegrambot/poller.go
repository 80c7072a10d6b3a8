package telegrambot

import (
	"context"
	"time"
)

// pollTimeoutSeconds is the long-poll wait getUpdates blocks for server-side
// before returning an empty batch, trading one idle round trip per cycle
// for near-instant delivery once an update is actually pending.
const pollTimeoutSeconds = 30

// Update is the subset of Telegram's Update object the bridge consumes:
// either an ordinary message or a callback-query button press, never both.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *FullMessage   `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// FullMessage is the richer message shape the poller decodes, beyond the
// narrow Message type used for send-call responses.
type FullMessage struct {
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date"`
	Chat      Chat   `json:"chat"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text,omitempty"`

	ReplyToMessage *FullMessage `json:"reply_to_message,omitempty"`

	Photo    []PhotoSize `json:"photo,omitempty"`
	Video    *FileAsset  `json:"video,omitempty"`
	Voice    *VoiceAsset `json:"voice,omitempty"`
	Sticker  *Sticker    `json:"sticker,omitempty"`
	Document *FileAsset  `json:"document,omitempty"`
	Location *Location   `json:"location,omitempty"`
	Venue    *Venue      `json:"venue,omitempty"`

	NewChatTitle string      `json:"new_chat_title,omitempty"`
	NewChatPhoto []PhotoSize `json:"new_chat_photo,omitempty"`
	PinnedMessage *FullMessage `json:"pinned_message,omitempty"`
	NewChatMembers []User     `json:"new_chat_members,omitempty"`
	LeftChatMember *User       `json:"left_chat_member,omitempty"`
}

type PhotoSize struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
}

type FileAsset struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

type VoiceAsset struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
}

type Sticker struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	IsAnimated   bool   `json:"is_animated"`
	IsVideo      bool   `json:"is_video"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Venue struct {
	Location Location `json:"location"`
	Title    string   `json:"title"`
	Address  string   `json:"address"`
}

// CallbackQuery is an inline-keyboard button press, routed to the command
// surface's HandleCallback rather than through ordinary translation.
type CallbackQuery struct {
	ID      string       `json:"id"`
	From    User         `json:"from"`
	Message *FullMessage `json:"message,omitempty"`
	Data    string       `json:"data"`
}

// getUpdates calls the Bot API's getUpdates with a 30s long-poll timeout,
// confirming offset-1 as processed.
func (c *Client) getUpdates(ctx context.Context, offset int64) ([]Update, error) {
	params := map[string]any{
		"offset":  offset,
		"timeout": pollTimeoutSeconds,
	}
	var updates []Update
	err := c.callJSON(ctx, "getUpdates", params, &updates)
	return updates, err
}

// Poll runs the long-poll loop until ctx is canceled, invoking handle for
// every update in arrival order. A getUpdates error is logged and retried
// after a short pause rather than ending the loop — grounded on the same
// "never drop the whole connection over one bad reply" instinct as (A)'s
// reconnector, scaled down since getUpdates has no session to rebuild.
func (c *Client) Poll(ctx context.Context, handle func(Update)) {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := c.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("getUpdates failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			handle(u)
		}
	}
}
