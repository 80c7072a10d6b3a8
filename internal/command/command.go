// Package command implements the Command Surface (component K): the
// `/`-prefixed control-plane messages spec.md §4.11 enumerates, registered
// into a name->Command table the same way the teacher registers its
// WeChat providers — an explicit call list here rather than package-level
// init() magic, since commands aren't separately-built plugins.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hououinkami/wegram/internal/correlator"
	"github.com/hououinkami/wegram/internal/gateway"
	"github.com/hououinkami/wegram/internal/locale"
	"github.com/hououinkami/wegram/internal/provision"
	"github.com/hououinkami/wegram/internal/registry"
	"github.com/hououinkami/wegram/internal/revoke"
	"github.com/hououinkami/wegram/internal/telegrambot"
	"github.com/hououinkami/wegram/internal/telegramuser"
	"github.com/hououinkami/wegram/internal/translate"
)

// Scope gates which chats a command may run in.
type Scope int

const (
	// ScopeMirror matches any chat bound to a registry row, personal or group.
	ScopeMirror Scope = iota
	// ScopeMirrorGroupOnly additionally requires contact.IsGroup.
	ScopeMirrorGroupOnly
	// ScopeBotDM matches a chat with no registry row at all — the owner's
	// private chat with the bot is the only such chat in this model.
	ScopeBotDM
)

// A command run outside its declared scope is answered with the locale
// token "scope_violation", so the config's localize.lang setting covers
// that reply too.

// Context carries everything a Command.Execute needs: the parsed
// arguments and the contact bound to the chat it ran in (nil for
// ScopeBotDM commands).
type Context struct {
	Ctx     context.Context
	ChatID  int64
	Contact *registry.Contact
	Args    []string
	Raw     string

	MessageID int64
	ReplyToID int64
}

// Command is one row of spec.md §4.11's table.
type Command interface {
	Name() string
	Scope() Scope
	Execute(cc *Context) error
}

// Registry dispatches `/`-prefixed Telegram text into registered Commands
// and implements translate.CommandDispatcher.
type Registry struct {
	Reg        *registry.Registry
	GW         *gateway.Client
	Bot        *telegrambot.Client
	Tg         *telegramuser.Client
	Corr       *correlator.Correlator
	Revoke     *revoke.Handler
	Provision  *provision.Provisioner
	Groups     *translate.GroupCache
	ChatFolder string
	DataDir    string
	Timers     *TimerScheduler
	Log        *slog.Logger

	// Lang selects the locale table (via locale.Get) the command surface's
	// localized replies are drawn from; an unset value uses "zh". Some
	// usage and error replies are fixed Chinese literals.
	Lang string

	commands map[string]Command
}

// New builds an empty command Registry; call Register for each command.
func New(reg *registry.Registry, gw *gateway.Client, bot *telegrambot.Client, tg *telegramuser.Client,
	corr *correlator.Correlator, rv *revoke.Handler, prov *provision.Provisioner, groups *translate.GroupCache,
	chatFolder, dataDir string, timers *TimerScheduler, log *slog.Logger) *Registry {
	return &Registry{
		Reg: reg, GW: gw, Bot: bot, Tg: tg, Corr: corr, Revoke: rv, Provision: prov, Groups: groups,
		ChatFolder: chatFolder, DataDir: dataDir, Timers: timers,
		Log:      log.With("component", "command"),
		commands: make(map[string]Command),
	}
}

// RegisterDefaults registers every command named in spec.md §4.11.
func (r *Registry) RegisterDefaults() {
	r.Register(&updateCommand{r})
	r.Register(&receiveCommand{r})
	r.Register(&unbindCommand{r})
	r.Register(&friendCommand{r})
	r.Register(&addCommand{r})
	r.Register(&remarkCommand{r})
	r.Register(&quitCommand{r})
	r.Register(&revokeCommand{r})
	r.Register(&loginCommand{r})
	r.Register(&timerCommand{r})
}

// Register adds or replaces the command under its own Name().
func (r *Registry) Register(cmd Command) {
	r.commands[cmd.Name()] = cmd
}

// aliases maps a command word to its canonical registered name.
var aliases = map[string]string{
	"rm": "revoke",
}

// Dispatch implements translate.CommandDispatcher: parse upd.Text as a
// `/name arg arg...` command, enforce its scope, and execute it.
// Unrecognized `/words` return handled=false so the caller falls through
// to ordinary message translation.
func (r *Registry) Dispatch(ctx context.Context, upd translate.TelegramUpdate) (bool, error) {
	fields := strings.Fields(strings.TrimSpace(upd.Text))
	if len(fields) == 0 {
		return false, nil
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	cmd, ok := r.commands[name]
	if !ok {
		return false, nil
	}

	contact, err := r.Reg.Contacts.GetByChatID(ctx, upd.ChatID)
	if err == registry.ErrContactNotFound {
		contact = nil
	} else if err != nil {
		return false, fmt.Errorf("lookup contact for command %q: %w", name, err)
	}

	if violation := scopeViolation(cmd.Scope(), contact); violation {
		_, sendErr := r.Bot.SendMessage(ctx, upd.ChatID, locale.Get(r.Lang, "scope_violation"), 0)
		return true, sendErr
	}

	cc := &Context{
		Ctx: ctx, ChatID: upd.ChatID, Contact: contact,
		Args: fields[1:], Raw: upd.Text,
		MessageID: upd.MessageID, ReplyToID: upd.ReplyToID,
	}
	if err := cmd.Execute(cc); err != nil {
		r.Log.Error("command execution failed", "command", name, "error", err)
		return true, err
	}
	return true, nil
}

func scopeViolation(scope Scope, contact *registry.Contact) bool {
	switch scope {
	case ScopeBotDM:
		return contact != nil
	case ScopeMirrorGroupOnly:
		return contact == nil || !contact.IsGroup
	default: // ScopeMirror
		return contact == nil
	}
}
