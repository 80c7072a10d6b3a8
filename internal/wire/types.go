// Package wire defines the shared wire-level message shapes exchanged with
// the WeChat gateway and the Telegram APIs, plus the small set of tagged
// variants that replace ad-hoc XML-dictionary branching at the ingress
// boundary.
package wire

// MsgType is the WeChat gateway's wire message type (the AddMsg.MsgType
// field). Some types (49, 10002) carry a second-level classifier decoded
// from the XML content; see AppMsgType and SysMsgType.
type MsgType int

const (
	MsgText     MsgType = 1
	MsgImage    MsgType = 3
	MsgVoice    MsgType = 34
	MsgVideo    MsgType = 43
	MsgEmoji    MsgType = 47
	MsgLocation MsgType = 48
	MsgApp      MsgType = 49
	MsgVoIP     MsgType = 50
	MsgSystem   MsgType = 10000
	MsgRevoke   MsgType = 10002
)

func (t MsgType) String() string {
	switch t {
	case MsgText:
		return "text"
	case MsgImage:
		return "image"
	case MsgVoice:
		return "voice"
	case MsgVideo:
		return "video"
	case MsgEmoji:
		return "emoji"
	case MsgLocation:
		return "location"
	case MsgApp:
		return "app"
	case MsgVoIP:
		return "voip"
	case MsgSystem:
		return "system"
	case MsgRevoke:
		return "revoke"
	default:
		return "unknown"
	}
}

// AppMsgType is the inner classifier carried by <appmsg><type> under a
// MsgApp (49) wire message.
type AppMsgType int

const (
	AppMsgLinkType        AppMsgType = 5
	AppMsgFileType        AppMsgType = 6
	AppMsgChatHistoryType AppMsgType = 19
	AppMsgMiniProgramType AppMsgType = 33
	AppMsgChannelType     AppMsgType = 51
	AppMsgNoteType        AppMsgType = 53
	AppMsgQuoteType       AppMsgType = 57
	AppMsgTransferType    AppMsgType = 2000
)

// SysMsgType is the inner classifier for a MsgSystem/MsgRevoke (10000,
// 10002) wire message, carried in <sysmsg type="...">.
type SysMsgType string

const (
	SysMsgRevokeType SysMsgType = "revokemsg"
	SysMsgPatType    SysMsgType = "pat"
)

// blacklistedKinds lists the raw gateway message kinds that
// IsBlacklistedKind reports as carrying no bridgeable content.
var blacklistedKinds = map[string]bool{
	"open_chat":      true,
	"bizlivenotify":  true,
	"qy_chat_update": true,
}

// IsBlacklistedKind reports whether a raw gateway message "kind" string
// (as opposed to the numeric MsgType) should be dropped unconditionally.
func IsBlacklistedKind(kind string) bool {
	return blacklistedKinds[kind]
}

// AddMsg is one element of the gateway callback's "AddMsgs" array: the
// canonical inbound WeChat message envelope. Field names mirror the
// gateway's own JSON so decoding is a flat json.Unmarshal.
type AddMsg struct {
	MsgId        int64  `json:"MsgId"`
	FromUserName string `json:"FromUserName"`
	ToUserName   string `json:"ToUserName"`
	MsgType      int    `json:"MsgType"`
	Content      string `json:"Content"`
	Status       int    `json:"Status"`
	ImgStatus    int    `json:"ImgStatus"`
	CreateTime   int64  `json:"CreateTime"`
	MsgSource    string `json:"MsgSource"`
	NewMsgId     int64  `json:"NewMsgId"`
	MsgSeq       int64  `json:"MsgSeq"`
}

// SyncMessageCallback is the body of POST /msg/SyncMessage/{wxid}.
type SyncMessageCallback struct {
	Message string `json:"Message"`
	Data    struct {
		AddMsgs []AddMsg `json:"AddMsgs"`
	} `json:"Data"`
}

// SendResult is the response shape shared by the gateway's Send* endpoints:
// the triple the correlator needs to index a freshly sent message.
type SendResult struct {
	NewMsgId    int64  `json:"NewMsgId"`
	ClientMsgId string `json:"ClientMsgId"`
	CreateTime  int64  `json:"CreateTime"`
	ToUserName  string `json:"ToUserName"`
}

// ContactInfo is a WeChat contact or chatroom as returned by USER_INFO /
// USER_LIST / USER_SEARCH.
type ContactInfo struct {
	UserName    string
	NickName    string
	Remark      string
	Alias       string
	AvatarURL   string
	Gender      int
	Province    string
	City        string
	Signature   string
	IsGroup     bool
	MemberCount int
}

// GroupMember is one entry of a GROUP_MEMBER response.
type GroupMember struct {
	UserName    string
	NickName    string
	DisplayName string
	AvatarURL   string
	IsAdmin     bool
	IsOwner     bool
}

// MediaKind names the gateway's file-key discriminator used when building
// chunked download requests (§4.1).
type MediaKind string

const (
	MediaImage MediaKind = "img"
	MediaVideo MediaKind = "videomsg"
	MediaApp   MediaKind = "appmsg"
	MediaVoice MediaKind = "voicemsg"
	MediaEmoji MediaKind = "emoji"
)
