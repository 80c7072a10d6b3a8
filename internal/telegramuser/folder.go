package telegramuser

import (
	"context"
	"fmt"

	"github.com/gotd/td/tg"
)

// InputPeer builds the InputPeer addressing a chat by its Bot-API-style
// chat_id: supergroups/channels use InputPeerChannel{id,access_hash},
// basic groups use InputPeerChat{abs(id)} (spec.md §4.3).
func InputPeer(chatID int64, accessHash int64, isChannel bool) tg.InputPeerClass {
	if isChannel {
		return &tg.InputPeerChannel{ChannelID: chatID, AccessHash: accessHash}
	}
	if chatID < 0 {
		chatID = -chatID
	}
	return &tg.InputPeerChat{ChatID: chatID}
}

// PlaceInFolder runs the folder-placement algorithm named in spec.md §4.3:
// fetch all dialog filters, skip the default filter, locate by title
// equality; if absent create a new filter (groups=true, id = max existing +
// 1, include-list containing only peer); if present, append peer to the
// existing include-list, preserving every other property.
func (c *Client) PlaceInFolder(ctx context.Context, title string, peer tg.InputPeerClass) error {
	_, err := c.Invoke(ctx, func(ctx context.Context, api *tg.Client) (any, error) {
		filters, err := api.MessagesGetDialogFilters(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch dialog filters: %w", err)
		}

		var existing *tg.DialogFilter
		maxID := 0
		for _, f := range filters {
			df, ok := f.(*tg.DialogFilter)
			if !ok {
				continue // skip DialogFilterDefault and DialogFilterChatlist variants
			}
			if df.ID > maxID {
				maxID = df.ID
			}
			if df.Title == title {
				existing = df
			}
		}

		if existing == nil {
			newFilter := &tg.DialogFilter{
				ID:           maxID + 1,
				Title:        title,
				Groups:       true,
				IncludePeers: []tg.InputPeerClass{peer},
			}
			_, err := api.MessagesUpdateDialogFilter(ctx, &tg.MessagesUpdateDialogFilterRequest{
				ID:     newFilter.ID,
				Filter: newFilter,
			})
			if err != nil {
				return nil, fmt.Errorf("create dialog filter %q: %w", title, err)
			}
			return nil, nil
		}

		updated := *existing
		updated.IncludePeers = append(append([]tg.InputPeerClass{}, existing.IncludePeers...), peer)
		_, err = api.MessagesUpdateDialogFilter(ctx, &tg.MessagesUpdateDialogFilterRequest{
			ID:     updated.ID,
			Filter: &updated,
		})
		if err != nil {
			return nil, fmt.Errorf("extend dialog filter %q: %w", title, err)
		}
		return nil, nil
	})
	return err
}
