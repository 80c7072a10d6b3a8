package telegramuser

import (
	"context"
	"fmt"

	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
)

// CreatedGroup describes a freshly created basic group chat.
type CreatedGroup struct {
	ChatID int64
}

// CreateGroup creates a basic group titled title with the bot (identified
// by botUsername) as its sole invited member, then promotes the bot to
// administrator — the group-creation responsibility named in spec.md §4.3
// that only the user client (not the bot) can perform.
func (c *Client) CreateGroup(ctx context.Context, title, botUsername string) (CreatedGroup, error) {
	result, err := c.Invoke(ctx, func(ctx context.Context, api *tg.Client) (any, error) {
		botUser, err := resolveUser(ctx, api, botUsername)
		if err != nil {
			return nil, err
		}

		updates, err := api.MessagesCreateChat(ctx, &tg.MessagesCreateChatRequest{
			Title: title,
			Users: []tg.InputUserClass{&tg.InputUser{UserID: botUser.ID, AccessHash: botUser.AccessHash}},
		})
		if err != nil {
			return nil, fmt.Errorf("create chat %q: %w", title, err)
		}

		chatID, err := extractChatID(updates)
		if err != nil {
			return nil, err
		}

		if err := promoteAdmin(ctx, api, chatID, botUser); err != nil {
			return nil, err
		}

		return CreatedGroup{ChatID: chatID}, nil
	})
	if err != nil {
		return CreatedGroup{}, err
	}
	return result.(CreatedGroup), nil
}

// PromoteAdmin makes botUsername an administrator of the basic group
// chatID — the standalone form of CreateGroup's promote step, used when
// chat_id was instead recovered via FindRecentChatByTitle.
func (c *Client) PromoteAdmin(ctx context.Context, chatID int64, botUsername string) error {
	_, err := c.Invoke(ctx, func(ctx context.Context, api *tg.Client) (any, error) {
		botUser, err := resolveUser(ctx, api, botUsername)
		if err != nil {
			return nil, err
		}
		return nil, promoteAdmin(ctx, api, chatID, botUser)
	})
	return err
}

func resolveUser(ctx context.Context, api *tg.Client, username string) (*tg.User, error) {
	resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return nil, fmt.Errorf("resolve username %q: %w", username, err)
	}
	for _, u := range resolved.Users {
		if user, ok := u.(*tg.User); ok {
			return user, nil
		}
	}
	return nil, fmt.Errorf("resolve username %q: no user in response", username)
}

func promoteAdmin(ctx context.Context, api *tg.Client, chatID int64, user *tg.User) error {
	_, err := api.MessagesEditChatAdmin(ctx, &tg.MessagesEditChatAdminRequest{
		ChatID:  chatID,
		UserID:  &tg.InputUser{UserID: user.ID, AccessHash: user.AccessHash},
		IsAdmin: true,
	})
	if err != nil {
		return fmt.Errorf("promote bot in chat %d: %w", chatID, err)
	}
	return nil
}

// FindRecentChatByTitle scans the last 20 dialogs for a basic group (not a
// channel/supergroup) whose title matches exactly, the fallback spec.md
// §4.9 step 2 names for an ambiguous create-chat response.
func (c *Client) FindRecentChatByTitle(ctx context.Context, title string) (int64, error) {
	result, err := c.Invoke(ctx, func(ctx context.Context, api *tg.Client) (any, error) {
		dialogs, err := api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetPeer: &tg.InputPeerEmpty{},
			Limit:      20,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch recent dialogs: %w", err)
		}

		var chats []tg.ChatClass
		switch d := dialogs.(type) {
		case *tg.MessagesDialogs:
			chats = d.Chats
		case *tg.MessagesDialogsSlice:
			chats = d.Chats
		default:
			return nil, fmt.Errorf("fetch recent dialogs: unexpected response type %T", dialogs)
		}

		for _, ch := range chats {
			if chat, ok := ch.(*tg.Chat); ok && chat.Title == title {
				return chat.ID, nil
			}
		}
		return nil, fmt.Errorf("find recent chat %q: no match among last 20 dialogs", title)
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// extractChatID finds the newly created chat's id among an Updates
// response's embedded Chat entities.
func extractChatID(updates tg.UpdatesClass) (int64, error) {
	switch u := updates.(type) {
	case *tg.Updates:
		for _, ch := range u.Chats {
			if chat, ok := ch.(*tg.Chat); ok {
				return chat.ID, nil
			}
		}
	case *tg.UpdatesCombined:
		for _, ch := range u.Chats {
			if chat, ok := ch.(*tg.Chat); ok {
				return chat.ID, nil
			}
		}
	}
	return 0, fmt.Errorf("extract chat id: no Chat entity in updates response")
}

// UploadAvatar sets peer's photo from raw image bytes, uploading it through
// the gotd uploader first.
// UploadAvatar accepts chatID in either sign (Bot-API's negated convention
// or MTProto's raw positive id), normalizing the same way InputPeer does.
func (c *Client) UploadAvatar(ctx context.Context, chatID int64, data []byte) error {
	if chatID < 0 {
		chatID = -chatID
	}
	_, err := c.Invoke(ctx, func(ctx context.Context, api *tg.Client) (any, error) {
		file, err := uploader.NewUploader(api).FromBytes(ctx, "avatar.jpg", data)
		if err != nil {
			return nil, fmt.Errorf("upload avatar: %w", err)
		}
		_, err = api.MessagesEditChatPhoto(ctx, &tg.MessagesEditChatPhotoRequest{
			ChatID: chatID,
			Photo:  &tg.InputChatUploadedPhoto{File: file},
		})
		if err != nil {
			return nil, fmt.Errorf("set chat photo for %d: %w", chatID, err)
		}
		return nil, nil
	})
	return err
}
