// Package telegrambot implements the Telegram Bot Client (component B): an
// HTTP client over api.telegram.org/bot{token}/{method}, grounded on
// KurtSkinny-telegram-userbot's botapionotifier.BotSender — a single
// http.Client with a shared pool, a token-bucket pacer, and a permanent-vs-
// transient error split driving a bounded retry loop.
package telegrambot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Client is the bot-side Telegram API client.
type Client struct {
	token   string
	baseURL string
	pool    *TransportPool
	pacer   *Pacer
	log     *slog.Logger
}

// New creates a Client for the given bot token.
func New(token string, log *slog.Logger) *Client {
	return &Client{
		token:   token,
		baseURL: "https://api.telegram.org/bot" + token,
		pool:    NewTransportPool(),
		pacer:   NewPacer(25, 25),
		log:     log.With("component", "telegrambot"),
	}
}

// callJSON POSTs method with a JSON body and decodes "result" into out (if
// non-nil), applying the full pacing + retry policy.
func (c *Client) callJSON(ctx context.Context, method string, params map[string]any, out any) error {
	return c.withRetry(ctx, func() error {
		if err := c.pacer.Wait(ctx); err != nil {
			return &errPermanent{err}
		}

		body, err := json.Marshal(params)
		if err != nil {
			return &errPermanent{fmt.Errorf("marshal %s params: %w", method, err)}
		}

		url := c.baseURL + "/" + method
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return &errPermanent{fmt.Errorf("build %s request: %w", method, err)}
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.pool.Client().Do(req)
		if err != nil {
			return classifyTransportErr(err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read %s response: %w", method, err)
		}

		if apiErr := classifyHTTP(resp.StatusCode, raw); apiErr != nil {
			return apiErr
		}

		if out == nil {
			return nil
		}
		var envelope struct {
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return fmt.Errorf("decode %s envelope: %w", method, err)
		}
		return json.Unmarshal(envelope.Result, out)
	})
}

// Message is the subset of Telegram's Message object the bridge consumes.
type Message struct {
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text,omitempty"`
}

// Chat is the subset of Telegram's Chat object the bridge consumes.
type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// File is the result of getFile.
type File struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

// User is the subset of Telegram's User object the bridge consumes.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsBot    bool   `json:"is_bot"`
}

// GetMe returns the bot's own identity, needed to invite it into a group
// created through the user session (spec.md §4.9 step 1).
func (c *Client) GetMe(ctx context.Context) (User, error) {
	var me User
	err := c.callJSON(ctx, "getMe", map[string]any{}, &me)
	return me, err
}

// InlineKeyboardButton is one button of an inline keyboard row.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// InlineKeyboard is a grid of button rows, serialized as Telegram's
// reply_markup.inline_keyboard.
type InlineKeyboard [][]InlineKeyboardButton

// SendMessageKeyboard sends text with an inline keyboard attached — used
// by the /add command to present an "add" callback button (spec.md
// §4.11).
func (c *Client) SendMessageKeyboard(ctx context.Context, chatID int64, text string, kb InlineKeyboard) (Message, error) {
	params := map[string]any{
		"chat_id": chatID, "text": FormatText(text), "parse_mode": "HTML",
		"reply_markup": map[string]any{"inline_keyboard": kb},
	}
	var msg Message
	err := c.callJSON(ctx, "sendMessage", params, &msg)
	return msg, err
}

// AnswerCallbackQuery acknowledges an inline keyboard button press,
// optionally showing text as a toast notification.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	params := map[string]any{"callback_query_id": callbackQueryID}
	if text != "" {
		params["text"] = text
	}
	return c.callJSON(ctx, "answerCallbackQuery", params, nil)
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) (Message, error) {
	params := map[string]any{"chat_id": chatID, "text": FormatText(text), "parse_mode": "HTML"}
	if replyTo != 0 {
		params["reply_to_message_id"] = replyTo
	}
	var msg Message
	err := c.callJSON(ctx, "sendMessage", params, &msg)
	return msg, err
}

func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo, caption string) (Message, error) {
	params := map[string]any{"chat_id": chatID, "photo": photo}
	if caption != "" {
		params["caption"] = FormatText(caption)
		params["parse_mode"] = "HTML"
	}
	var msg Message
	err := c.callJSON(ctx, "sendPhoto", params, &msg)
	return msg, err
}

func (c *Client) SendDocument(ctx context.Context, chatID int64, document, caption string) (Message, error) {
	params := map[string]any{"chat_id": chatID, "document": document}
	if caption != "" {
		params["caption"] = FormatText(caption)
	}
	var msg Message
	err := c.callJSON(ctx, "sendDocument", params, &msg)
	return msg, err
}

func (c *Client) SendVideo(ctx context.Context, chatID int64, video, caption string) (Message, error) {
	params := map[string]any{"chat_id": chatID, "video": video}
	if caption != "" {
		params["caption"] = FormatText(caption)
	}
	var msg Message
	err := c.callJSON(ctx, "sendVideo", params, &msg)
	return msg, err
}

func (c *Client) SendAudio(ctx context.Context, chatID int64, audio string) (Message, error) {
	var msg Message
	err := c.callJSON(ctx, "sendAudio", map[string]any{"chat_id": chatID, "audio": audio}, &msg)
	return msg, err
}

func (c *Client) SendVoice(ctx context.Context, chatID int64, voice string, durationSec int) (Message, error) {
	params := map[string]any{"chat_id": chatID, "voice": voice}
	if durationSec > 0 {
		params["duration"] = durationSec
	}
	var msg Message
	err := c.callJSON(ctx, "sendVoice", params, &msg)
	return msg, err
}

func (c *Client) SendAnimation(ctx context.Context, chatID int64, animation string) (Message, error) {
	var msg Message
	err := c.callJSON(ctx, "sendAnimation", map[string]any{"chat_id": chatID, "animation": animation}, &msg)
	return msg, err
}

func (c *Client) SendSticker(ctx context.Context, chatID int64, sticker string) (Message, error) {
	var msg Message
	err := c.callJSON(ctx, "sendSticker", map[string]any{"chat_id": chatID, "sticker": sticker}, &msg)
	return msg, err
}

// MediaGroupItem is one entry of an InputMedia array for sendMediaGroup.
type MediaGroupItem struct {
	Type    string `json:"type"`
	Media   string `json:"media"`
	Caption string `json:"caption,omitempty"`
}

func (c *Client) SendMediaGroup(ctx context.Context, chatID int64, items []MediaGroupItem) ([]Message, error) {
	var msgs []Message
	err := c.callJSON(ctx, "sendMediaGroup", map[string]any{"chat_id": chatID, "media": items}, &msgs)
	return msgs, err
}

func (c *Client) SendLocation(ctx context.Context, chatID int64, lat, lon float64) (Message, error) {
	var msg Message
	err := c.callJSON(ctx, "sendLocation", map[string]any{"chat_id": chatID, "latitude": lat, "longitude": lon}, &msg)
	return msg, err
}

func (c *Client) SendVenue(ctx context.Context, chatID int64, lat, lon float64, title, address string) (Message, error) {
	params := map[string]any{
		"chat_id": chatID, "latitude": lat, "longitude": lon, "title": title, "address": address,
	}
	var msg Message
	err := c.callJSON(ctx, "sendVenue", params, &msg)
	return msg, err
}

func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	params := map[string]any{
		"chat_id": chatID, "message_id": messageID, "text": FormatText(text), "parse_mode": "HTML",
	}
	return c.callJSON(ctx, "editMessageText", params, nil)
}

func (c *Client) EditMessageCaption(ctx context.Context, chatID, messageID int64, caption string) error {
	params := map[string]any{
		"chat_id": chatID, "message_id": messageID, "caption": FormatText(caption),
	}
	return c.callJSON(ctx, "editMessageCaption", params, nil)
}

func (c *Client) EditMessageMedia(ctx context.Context, chatID, messageID int64, media MediaGroupItem) error {
	params := map[string]any{"chat_id": chatID, "message_id": messageID, "media": media}
	return c.callJSON(ctx, "editMessageMedia", params, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.callJSON(ctx, "deleteMessage", map[string]any{"chat_id": chatID, "message_id": messageID}, nil)
}

func (c *Client) GetFile(ctx context.Context, fileID string) (File, error) {
	var f File
	err := c.callJSON(ctx, "getFile", map[string]any{"file_id": fileID}, &f)
	return f, err
}

func (c *Client) GetChat(ctx context.Context, chatID int64) (Chat, error) {
	var chat Chat
	err := c.callJSON(ctx, "getChat", map[string]any{"chat_id": chatID}, &chat)
	return chat, err
}

func (c *Client) SetChatTitle(ctx context.Context, chatID int64, title string) error {
	return c.callJSON(ctx, "setChatTitle", map[string]any{"chat_id": chatID, "title": title}, nil)
}

func (c *Client) SetChatPhoto(ctx context.Context, chatID int64, photo string) error {
	return c.callJSON(ctx, "setChatPhoto", map[string]any{"chat_id": chatID, "photo": photo}, nil)
}

func (c *Client) SetChatDescription(ctx context.Context, chatID int64, description string) error {
	return c.callJSON(ctx, "setChatDescription", map[string]any{"chat_id": chatID, "description": description}, nil)
}

func (c *Client) DeleteChatPhoto(ctx context.Context, chatID int64) error {
	return c.callJSON(ctx, "deleteChatPhoto", map[string]any{"chat_id": chatID}, nil)
}

// FileURL builds the download URL for a getFile result, per Bot API's
// file.telegram.org convention.
func (c *Client) FileURL(f File) string {
	return fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", c.token, f.FilePath)
}
