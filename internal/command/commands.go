package command

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/hououinkami/wegram/internal/locale"
	"github.com/hououinkami/wegram/internal/registry"
	"github.com/hououinkami/wegram/internal/telegrambot"
)

// --- /update: mirror group ---------------------------------------------

type updateCommand struct{ r *Registry }

func (c *updateCommand) Name() string  { return "update" }
func (c *updateCommand) Scope() Scope  { return ScopeMirror }
func (c *updateCommand) Execute(cc *Context) error {
	info, err := c.r.GW.UserInfo(cc.Ctx, cc.Contact.Wxid)
	if err != nil {
		return fmt.Errorf("refetch peer info: %w", err)
	}
	name, _ := info["NickName"].(string)
	if name == "" {
		name, _ = info["Name"].(string)
	}
	avatar, _ := info["AvatarURL"].(string)

	if name != "" {
		cc.Contact.Name = name
		if err := c.r.Bot.SetChatTitle(cc.Ctx, cc.ChatID, name); err != nil {
			c.r.Log.Warn("rename mirror group failed", "chat_id", cc.ChatID, "error", err)
		}
	}
	if avatar != "" {
		cc.Contact.AvatarURL = avatar
		if err := c.r.Bot.SetChatPhoto(cc.Ctx, cc.ChatID, avatar); err != nil {
			c.r.Log.Warn("update mirror group photo failed", "chat_id", cc.ChatID, "error", err)
		}
	}
	if cc.Contact.IsGroup {
		c.r.Groups.Invalidate(cc.Contact.Wxid)
	}
	if err := c.r.Reg.Contacts.Save(cc.Ctx, cc.Contact); err != nil {
		return fmt.Errorf("save refreshed contact: %w", err)
	}
	_, err = c.r.Bot.SendMessage(cc.Ctx, cc.ChatID, "已更新", 0)
	return err
}

// --- /receive: mirror group ---------------------------------------------

type receiveCommand struct{ r *Registry }

func (c *receiveCommand) Name() string { return "receive" }
func (c *receiveCommand) Scope() Scope { return ScopeMirror }
func (c *receiveCommand) Execute(cc *Context) error {
	cc.Contact.IsReceive = !cc.Contact.IsReceive
	if err := c.r.Reg.Contacts.Save(cc.Ctx, cc.Contact); err != nil {
		return fmt.Errorf("toggle receive: %w", err)
	}
	token := "receive_off"
	if cc.Contact.IsReceive {
		token = "receive_on"
	}
	_, err := c.r.Bot.SendMessage(cc.Ctx, cc.ChatID, locale.Get(c.r.Lang, token), 0)
	return err
}

// --- /unbind [del]: mirror group ----------------------------------------

type unbindCommand struct{ r *Registry }

func (c *unbindCommand) Name() string { return "unbind" }
func (c *unbindCommand) Scope() Scope { return ScopeMirror }
func (c *unbindCommand) Execute(cc *Context) error {
	if len(cc.Args) > 0 && strings.EqualFold(cc.Args[0], "del") {
		if err := c.r.Reg.Contacts.Delete(cc.Ctx, cc.Contact.Wxid); err != nil {
			return fmt.Errorf("delete contact row: %w", err)
		}
		_, err := c.r.Bot.SendMessage(cc.Ctx, cc.ChatID, "已解除绑定并删除记录", 0)
		return err
	}
	cc.Contact.ChatID = registry.UnboundChatID
	if err := c.r.Reg.Contacts.Save(cc.Ctx, cc.Contact); err != nil {
		return fmt.Errorf("clear chat_id: %w", err)
	}
	_, err := c.r.Bot.SendMessage(cc.Ctx, cc.ChatID, locale.Get(c.r.Lang, "unbind"), 0)
	return err
}

// --- /friend [update|import|export|<query>]: bot DM ----------------------

type friendCommand struct{ r *Registry }

func (c *friendCommand) Name() string { return "friend" }
func (c *friendCommand) Scope() Scope { return ScopeBotDM }

const friendPageSize = 20

func (c *friendCommand) Execute(cc *Context) error {
	if len(cc.Args) == 0 {
		return c.listPage(cc, "")
	}
	switch strings.ToLower(cc.Args[0]) {
	case "import":
		return c.doImport(cc)
	case "export":
		return c.doExport(cc)
	case "update":
		return c.listPage(cc, "")
	default:
		return c.listPage(cc, strings.Join(cc.Args, " "))
	}
}

func (c *friendCommand) listPage(cc *Context, query string) error {
	contacts, err := c.r.Reg.Contacts.SearchByName(cc.Ctx, query)
	if err != nil {
		return fmt.Errorf("search contacts: %w", err)
	}
	if len(contacts) > friendPageSize {
		contacts = contacts[:friendPageSize]
	}
	if len(contacts) == 0 {
		_, err := c.r.Bot.SendMessage(cc.Ctx, cc.ChatID, "无匹配的联系人", 0)
		return err
	}
	var b strings.Builder
	for _, ct := range contacts {
		fmt.Fprintf(&b, "%s — %s (chat_id=%d)\n", ct.Name, ct.Wxid, ct.ChatID)
	}
	_, err = c.r.Bot.SendMessage(cc.Ctx, cc.ChatID, b.String(), 0)
	return err
}

func (c *friendCommand) seedPath() string {
	return filepath.Join(c.r.DataDir, "contacts_seed.json")
}

func (c *friendCommand) doImport(cc *Context) error {
	data, err := os.ReadFile(c.seedPath())
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var rows []registry.ExportRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("decode seed file: %w", err)
	}
	if err := c.r.Reg.Contacts.Import(cc.Ctx, rows); err != nil {
		return fmt.Errorf("import contacts: %w", err)
	}
	_, err = c.r.Bot.SendMessage(cc.Ctx, cc.ChatID, fmt.Sprintf("已导入 %d 条联系人记录", len(rows)), 0)
	return err
}

func (c *friendCommand) doExport(cc *Context) error {
	rows, err := c.r.Reg.Contacts.Export(cc.Ctx)
	if err != nil {
		return fmt.Errorf("export contacts: %w", err)
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("encode seed file: %w", err)
	}
	if err := os.WriteFile(c.seedPath(), data, 0o644); err != nil {
		return fmt.Errorf("write seed file: %w", err)
	}
	_, err = c.r.Bot.SendMessage(cc.Ctx, cc.ChatID, fmt.Sprintf("已导出 %d 条联系人记录至 %s", len(rows), c.seedPath()), 0)
	return err
}

// --- /add <id> [msg] [scene]: bot DM --------------------------------------

// pendingAdd is a friend-add request awaiting the inline keyboard's "add"
// callback. Telegram's callback_data is capped at 64 bytes, too short for
// a stranger ticket (V3/V4), so the callback carries only a short token
// and the full request lives here until the button is pressed.
type pendingAdd struct {
	v3, v4, msg string
	scene       int
}

var (
	pendingAddsMu sync.Mutex
	pendingAdds   = map[string]pendingAdd{}
)

func newPendingToken() string {
	var buf [6]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

type addCommand struct{ r *Registry }

func (c *addCommand) Name() string { return "add" }
func (c *addCommand) Scope() Scope { return ScopeBotDM }
func (c *addCommand) Execute(cc *Context) error {
	if len(cc.Args) == 0 {
		_, err := c.r.Bot.SendMessage(cc.Ctx, cc.ChatID, "用法: /add <id> [留言] [scene]", 0)
		return err
	}
	id := cc.Args[0]
	msg := ""
	scene := 3
	if len(cc.Args) > 1 {
		msg = strings.Join(cc.Args[1:len(cc.Args)], " ")
	}
	if len(cc.Args) > 2 {
		if s, err := strconv.Atoi(cc.Args[len(cc.Args)-1]); err == nil {
			scene = s
			msg = strings.Join(cc.Args[1:len(cc.Args)-1], " ")
		}
	}

	resp, err := c.r.GW.UserSearch(cc.Ctx, id)
	if err != nil {
		return fmt.Errorf("search contact %q: %w", id, err)
	}
	v3, _ := resp["V3"].(string)
	v4, _ := resp["V4"].(string)
	name, _ := resp["NickName"].(string)
	if v3 == "" {
		_, err := c.r.Bot.SendMessage(cc.Ctx, cc.ChatID, "未找到该用户", 0)
		return err
	}

	token := newPendingToken()
	pendingAddsMu.Lock()
	pendingAdds[token] = pendingAdd{v3: v3, v4: v4, msg: msg, scene: scene}
	pendingAddsMu.Unlock()

	kb := telegrambot.InlineKeyboard{{{Text: "添加好友", CallbackData: "add:" + token}}}
	_, err = c.r.Bot.SendMessageKeyboard(cc.Ctx, cc.ChatID, fmt.Sprintf("找到用户: %s (%s)", name, id), kb)
	return err
}

// HandleCallback resolves an "add:<token>" inline keyboard press — wired
// separately from Dispatch since it arrives as a callback_query update,
// not a text message.
func (r *Registry) HandleCallback(cc *Context, callbackData, callbackQueryID string) error {
	if !strings.HasPrefix(callbackData, "add:") {
		return r.Bot.AnswerCallbackQuery(cc.Ctx, callbackQueryID, "")
	}
	token := strings.TrimPrefix(callbackData, "add:")
	pendingAddsMu.Lock()
	req, ok := pendingAdds[token]
	delete(pendingAdds, token)
	pendingAddsMu.Unlock()
	if !ok {
		return r.Bot.AnswerCallbackQuery(cc.Ctx, callbackQueryID, "请求已过期")
	}
	if _, err := r.GW.UserAdd(cc.Ctx, req.v3, req.v4, req.msg, req.scene); err != nil {
		_ = r.Bot.AnswerCallbackQuery(cc.Ctx, callbackQueryID, "添加请求发送失败")
		return fmt.Errorf("send friend add request: %w", err)
	}
	return r.Bot.AnswerCallbackQuery(cc.Ctx, callbackQueryID, locale.Get(r.Lang, "add_request_sent"))
}

// --- /remark <name>: mirror chat ------------------------------------------

type remarkCommand struct{ r *Registry }

func (c *remarkCommand) Name() string { return "remark" }
func (c *remarkCommand) Scope() Scope { return ScopeMirror }
func (c *remarkCommand) Execute(cc *Context) error {
	if len(cc.Args) == 0 {
		_, err := c.r.Bot.SendMessage(cc.Ctx, cc.ChatID, "用法: /remark <备注名>", 0)
		return err
	}
	name := strings.Join(cc.Args, " ")
	if _, err := c.r.GW.UserRemark(cc.Ctx, cc.Contact.Wxid, name); err != nil {
		return fmt.Errorf("set wechat remark: %w", err)
	}
	cc.Contact.Name = name
	if err := c.r.Reg.Contacts.Save(cc.Ctx, cc.Contact); err != nil {
		return fmt.Errorf("save remark: %w", err)
	}
	if err := c.r.Bot.SetChatTitle(cc.Ctx, cc.ChatID, name); err != nil {
		c.r.Log.Warn("rename mirror group after remark failed", "chat_id", cc.ChatID, "error", err)
	}
	_, err := c.r.Bot.SendMessage(cc.Ctx, cc.ChatID, locale.Get(c.r.Lang, "remark_updated"), 0)
	return err
}

// --- /quit: mirror group, group-type only ---------------------------------

type quitCommand struct{ r *Registry }

func (c *quitCommand) Name() string { return "quit" }
func (c *quitCommand) Scope() Scope { return ScopeMirrorGroupOnly }
func (c *quitCommand) Execute(cc *Context) error {
	if _, err := c.r.GW.GroupQuit(cc.Ctx, cc.Contact.Wxid); err != nil {
		return fmt.Errorf("quit wechat group: %w", err)
	}
	if err := c.r.Reg.Contacts.Delete(cc.Ctx, cc.Contact.Wxid); err != nil {
		return fmt.Errorf("delete contact row: %w", err)
	}
	_, err := c.r.Bot.SendMessage(cc.Ctx, cc.ChatID, locale.Get(c.r.Lang, "quit_success"), 0)
	return err
}

// --- /revoke (or /rm): any mirror -----------------------------------------

type revokeCommand struct{ r *Registry }

func (c *revokeCommand) Name() string { return "revoke" }
func (c *revokeCommand) Scope() Scope { return ScopeMirror }
func (c *revokeCommand) Execute(cc *Context) error {
	return c.r.Revoke.HandleCommand(cc.Ctx, cc.ChatID, cc.MessageID, cc.ReplyToID)
}

// --- /login: bot DM --------------------------------------------------------

type loginCommand struct{ r *Registry }

func (c *loginCommand) Name() string { return "login" }
func (c *loginCommand) Scope() Scope { return ScopeBotDM }
func (c *loginCommand) Execute(cc *Context) error {
	if _, err := c.r.GW.LoginSecond(cc.Ctx); err != nil {
		return fmt.Errorf("trigger secondary login: %w", err)
	}
	_, err := c.r.Bot.SendMessage(cc.Ctx, cc.ChatID, "已触发二次登录", 0)
	return err
}

// --- /timer HHMM <text>: any mirror ---------------------------------------

type timerCommand struct{ r *Registry }

func (c *timerCommand) Name() string { return "timer" }
func (c *timerCommand) Scope() Scope { return ScopeMirror }
func (c *timerCommand) Execute(cc *Context) error {
	if len(cc.Args) < 2 {
		_, err := c.r.Bot.SendMessage(cc.Ctx, cc.ChatID, "用法: /timer HHMM <内容>", 0)
		return err
	}
	hhmm := cc.Args[0]
	text := strings.Join(cc.Args[1:], " ")
	when, err := parseHHMM(hhmm)
	if err != nil {
		_, sendErr := c.r.Bot.SendMessage(cc.Ctx, cc.ChatID, "时间格式错误，需为 HHMM", 0)
		if sendErr != nil {
			return sendErr
		}
		return nil
	}

	c.r.Timers.Schedule(when, func() {
		if _, err := c.r.Bot.SendMessage(cc.Ctx, cc.ChatID, text, 0); err != nil {
			c.r.Log.Error("timed send failed", "chat_id", cc.ChatID, "error", err)
		}
	})
	_, err = c.r.Bot.SendMessage(cc.Ctx, cc.ChatID, locale.Get(c.r.Lang, "timer_scheduled"), 0)
	return err
}

