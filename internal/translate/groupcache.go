// Package translate implements the WeChat<->Telegram translators
// (components G and H): wire-format classification, media conversion
// dispatch, sender-line rendering, and WeChat-emoji-alias rewriting.
package translate

import (
	"context"
	"sync"
	"time"

	"github.com/hououinkami/wegram/internal/gateway"
)

// groupMembershipTTL is the §3 "GroupMembership" cache lifetime: entries
// expire 2 hours after fetch. The cache is keyed by chatroom id only; the
// server version is not consulted.
const groupMembershipTTL = 2 * time.Hour

// Member is the subset of GROUP_MEMBER response fields the translator
// needs to render a sender line.
type Member struct {
	Wxid        string
	DisplayName string
}

type groupCacheEntry struct {
	members   map[string]Member
	expiresAt time.Time
}

// GroupCache is an in-memory TTL cache over (D)'s GROUP_MEMBER gateway
// call. Unlike the teacher's DB-backed GroupMemberStore, this is
// deliberately not persisted: spec.md §3 describes GroupMembership as a
// cache, not durable state, so a process restart simply re-fetches.
type GroupCache struct {
	gw *gateway.Client

	mu      sync.Mutex
	entries map[string]groupCacheEntry
}

// NewGroupCache creates a cache fetching fresh member lists from gw.
func NewGroupCache(gw *gateway.Client) *GroupCache {
	return &GroupCache{gw: gw, entries: make(map[string]groupCacheEntry)}
}

// DisplayName resolves wxid's display name within chatroomID, refreshing
// the member list if the cached copy has expired or chatroomID is unseen.
func (c *GroupCache) DisplayName(ctx context.Context, chatroomID, wxid string) (string, error) {
	members, err := c.members(ctx, chatroomID)
	if err != nil {
		return "", err
	}
	if m, ok := members[wxid]; ok && m.DisplayName != "" {
		return m.DisplayName, nil
	}
	return wxid, nil
}

func (c *GroupCache) members(ctx context.Context, chatroomID string) (map[string]Member, error) {
	c.mu.Lock()
	entry, ok := c.entries[chatroomID]
	c.mu.Unlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.members, nil
	}

	resp, err := c.gw.GroupMember(ctx, chatroomID)
	if err != nil {
		return nil, err
	}
	members := parseMembers(resp)

	c.mu.Lock()
	c.entries[chatroomID] = groupCacheEntry{members: members, expiresAt: time.Now().Add(groupMembershipTTL)}
	c.mu.Unlock()
	return members, nil
}

func parseMembers(resp map[string]any) map[string]Member {
	out := make(map[string]Member)
	data, ok := resp["Data"].(map[string]any)
	if !ok {
		return out
	}
	list, ok := data["MemberList"].([]any)
	if !ok {
		return out
	}
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		wxid, _ := entry["Wxid"].(string)
		if wxid == "" {
			continue
		}
		display, _ := entry["DisplayName"].(string)
		if display == "" {
			display, _ = entry["NickName"].(string)
		}
		out[wxid] = Member{Wxid: wxid, DisplayName: display}
	}
	return out
}

// Invalidate drops the cached member list for chatroomID, forcing a
// refetch on the next lookup (e.g. after a GROUP_MEMBER_UPDATE event).
func (c *GroupCache) Invalidate(chatroomID string) {
	c.mu.Lock()
	delete(c.entries, chatroomID)
	c.mu.Unlock()
}
