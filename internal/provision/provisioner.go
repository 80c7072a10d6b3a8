// Package provision implements the Group Provisioner (component I):
// spec.md §4.9's create-group-then-register flow, the one place in the
// bridge that drives both the user session (to create and configure a
// Telegram group) and the registry (to persist the resulting mapping) in
// a single operation.
package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hououinkami/wegram/internal/media"
	"github.com/hououinkami/wegram/internal/registry"
	"github.com/hououinkami/wegram/internal/telegrambot"
	"github.com/hououinkami/wegram/internal/telegramuser"
)

// httpTimeout bounds the avatar download named in step 4.
const httpTimeout = 15 * time.Second

// Provisioner implements translate.GroupProvisioner: it owns no state of
// its own beyond its collaborators, matching the teacher's
// PuppetManager.GetOrCreate shape (check, then create-and-persist) minus
// the Matrix room/puppet-user bookkeeping this domain has no use for.
type Provisioner struct {
	Tg         *telegramuser.Client
	Bot        *telegrambot.Client
	Reg        *registry.Registry
	ChatFolder string
	httpClient *http.Client
	log        *slog.Logger
}

// New builds a Provisioner. chatFolder is the dialog-filter title every
// provisioned group is placed into (spec.md §4.3).
func New(tg *telegramuser.Client, bot *telegrambot.Client, reg *registry.Registry, chatFolder string, log *slog.Logger) *Provisioner {
	return &Provisioner{
		Tg:         tg,
		Bot:        bot,
		Reg:        reg,
		ChatFolder: chatFolder,
		httpClient: &http.Client{Timeout: httpTimeout},
		log:        log.With("component", "provision"),
	}
}

// Provision runs spec.md §4.9's six steps. The precondition (no existing
// mapping) is the caller's responsibility (translate.resolveChat checks
// the registry before calling in); Provision itself is unconditional.
//
// Per the failure semantics named in §4.9: once the group exists (step 1
// succeeds), every later step's failure is logged and swallowed rather
// than aborting the whole operation, so the registry row still gets
// written with whatever chat_id was obtained — a half-configured group is
// recoverable by /update, a missing registry row is not.
func (p *Provisioner) Provision(ctx context.Context, wxid, displayName, avatarURL string, isGroup bool) (int64, error) {
	log := p.log.With("wxid", wxid, "name", displayName)

	me, err := p.Bot.GetMe(ctx)
	if err != nil {
		return 0, fmt.Errorf("provision %s: resolve bot identity: %w", wxid, err)
	}

	chatID, err := p.createAndPromote(ctx, displayName, me.Username)
	if err != nil {
		return 0, fmt.Errorf("provision %s: %w", wxid, err)
	}
	log = log.With("chat_id", chatID)
	log.Info("group created")

	if avatarURL != "" {
		if err := p.setAvatar(ctx, chatID, avatarURL); err != nil {
			log.Warn("avatar setup failed, group left unconfigured", "error", err)
		}
	}

	peer := telegramuser.InputPeer(chatID, 0, false)
	if err := p.Tg.PlaceInFolder(ctx, p.ChatFolder, peer); err != nil {
		log.Warn("folder placement failed, group left outside target folder", "error", err)
	}

	contact := &registry.Contact{
		Wxid:      wxid,
		Name:      displayName,
		ChatID:    chatID,
		IsGroup:   strings.HasSuffix(wxid, "@chatroom"),
		IsReceive: true,
		AvatarURL: avatarURL,
	}
	if err := p.Reg.Contacts.Save(ctx, contact); err != nil {
		return chatID, fmt.Errorf("provision %s: registry insert after chat_id %d obtained: %w", wxid, chatID, err)
	}

	return chatID, nil
}

// createAndPromote runs steps 1-3: create the basic group, recover its
// chat_id (falling back to a dialog scan if the create response was
// ambiguous), and promote the bot. The Bot-API convention stores a basic
// group's chat_id as the negation of its MTProto id; negation happens once
// here so every downstream consumer (registry, InputPeer) sees the same
// sign spec.md §4.3 assumes.
func (p *Provisioner) createAndPromote(ctx context.Context, title, botUsername string) (int64, error) {
	created, err := p.Tg.CreateGroup(ctx, title, botUsername)
	if err == nil {
		return -created.ChatID, nil
	}
	if !isAmbiguousCreateErr(err) {
		return 0, fmt.Errorf("create group %q: %w", title, err)
	}

	rawID, findErr := p.Tg.FindRecentChatByTitle(ctx, title)
	if findErr != nil {
		return 0, fmt.Errorf("create group %q: ambiguous response (%v), recovery scan failed: %w", title, err, findErr)
	}
	if promoteErr := p.Tg.PromoteAdmin(ctx, rawID, botUsername); promoteErr != nil {
		return -rawID, fmt.Errorf("recovered chat_id %d but promote failed: %w", -rawID, promoteErr)
	}
	return -rawID, nil
}

// isAmbiguousCreateErr distinguishes "the chat was created but its id
// couldn't be read back from the response" (recoverable via dialog scan)
// from outright creation failures (not recoverable).
func isAmbiguousCreateErr(err error) bool {
	return strings.Contains(err.Error(), "no Chat entity in updates response")
}

// setAvatar runs step 4: download, normalize to square JPEG >= 512px, and
// assign as the group's photo.
func (p *Provisioner) setAvatar(ctx context.Context, chatID int64, avatarURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, avatarURL, nil)
	if err != nil {
		return fmt.Errorf("build avatar request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download avatar: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("download avatar: http %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read avatar body: %w", err)
	}

	normalized, err := media.NormalizeAvatar(raw)
	if err != nil {
		return fmt.Errorf("normalize avatar: %w", err)
	}

	if err := p.Tg.UploadAvatar(ctx, chatID, normalized); err != nil {
		return fmt.Errorf("upload avatar: %w", err)
	}
	return nil
}
