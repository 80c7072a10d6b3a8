// Package locale holds the two static string tables (zh, ja) that back
// every user-visible reply the bridge sends. Spec calls for a static
// lookup with no dynamic reload, so this is exactly that: two maps, no
// file watcher, no template engine.
package locale

var zh = map[string]string{
	"online":               "微信已上线",
	"offline":              "微信已掉线",
	"revoke_failed":        "撤回失败：找不到对应消息",
	"unbind":               "已解除绑定",
	"no_binding":           "该联系人尚未绑定群组",
	"twice_login_success":  "二次登录成功",
	"no_reply":             "请回复一条消息后再执行该指令",
	"failed":               "操作失败",
	"scope_violation":      "该指令不能在此处使用",
	"group_deleted":        "镜像群组已被删除，正在重新创建",
	"quit_success":         "已退出该微信群聊",
	"receive_on":           "已开启接收消息",
	"receive_off":          "已关闭接收消息",
	"remark_updated":       "备注已更新",
	"add_request_sent":     "好友请求已发送",
	"timer_scheduled":      "定时发送已安排",
}

var ja = map[string]string{
	"online":               "WeChatがオンラインになりました",
	"offline":              "WeChatがオフラインになりました",
	"revoke_failed":        "取り消し失敗：対応するメッセージが見つかりません",
	"unbind":               "バインド解除しました",
	"no_binding":           "この連絡先はまだグループに紐付けられていません",
	"twice_login_success":  "二次ログインに成功しました",
	"no_reply":             "このコマンドを実行する前にメッセージに返信してください",
	"failed":               "操作に失敗しました",
	"scope_violation":      "このコマンドはここでは使用できません",
	"group_deleted":        "ミラーグループが削除されたため再作成しています",
	"quit_success":         "WeChatグループを退出しました",
	"receive_on":           "メッセージ受信を有効にしました",
	"receive_off":          "メッセージ受信を無効にしました",
	"remark_updated":       "備考を更新しました",
	"add_request_sent":     "友達リクエストを送信しました",
	"timer_scheduled":      "予約送信を設定しました",
}

// Table returns the string table for lang ("zh" or "ja"), defaulting to zh
// for any unrecognized value.
func Table(lang string) map[string]string {
	if lang == "ja" {
		return ja
	}
	return zh
}

// Get looks up token in lang's table, falling back to the token itself if
// unknown so a missing translation never crashes a reply path.
func Get(lang, token string) string {
	if s, ok := Table(lang)[token]; ok {
		return s
	}
	return token
}
