// Package gateway implements the WeChat Gateway Client (component A): a
// single HTTP/1.1 JSON client to the third-party WeChat protocol gateway,
// grounded on the teacher's ipad.Provider.apiCall pattern (POST JSON,
// decode into a map, check a success field).
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// callTimeout is the gateway's total per-call timeout (§4.1).
const callTimeout = 30 * time.Second

// pathAlias maps the short keys named in §4.1 to concrete URL segments
// under {BASE_URL}/api/.
var pathAlias = map[string]string{
	"GET_IMAGE":      "msg/getMsgImg",
	"GET_IMAGE_CDN":  "msg/getMsgImgCdn",
	"GET_VOICE":      "msg/getMsgVoice",
	"GET_EMOJI":      "msg/getMsgEmoji",
	"SEND_TEXT":      "msg/sendText",
	"SEND_IMAGE":     "msg/sendImage",
	"SEND_VIDEO":     "msg/sendVideo",
	"SEND_VOICE":     "msg/sendVoice",
	"SEND_APP":       "msg/sendApp",
	"SEND_EMOJI":     "msg/sendEmoji",
	"SEND_LOCATION":  "msg/sendLocation",
	"SEND_FILE":      "msg/sendFile",
	"UPLOAD_FILE":    "msg/uploadFile",
	"REVOKE":         "msg/revoke",
	"USER_INFO":      "contact/getInfo",
	"USER_LIST":      "contact/getList",
	"USER_SEARCH":    "contact/search",
	"USER_ADD":       "contact/add",
	"USER_REMARK":    "contact/setRemark",
	"USER_PASS":      "contact/verifyApply",
	"GROUP_MEMBER":   "group/getMember",
	"GROUP_QUIT":     "group/quit",
	"WECOM_ADD":      "wecom/add",
	"WECOM_APPLY":    "wecom/apply",
	"MY_MOMENT":      "moments/list",
	"LOGIN_SECOND":   "login/second",
}

// GatewayError wraps a gateway-reported failure (Success:false or an HTTP
// error status), captured as a plain message per §4.1.
type GatewayError struct {
	Path    string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %s", e.Path, e.Message)
}

// Client is the WeChat Gateway Client.
type Client struct {
	baseURL string
	myWxid  string
	http    *http.Client
	log     *slog.Logger
}

// New creates a Client addressing baseURL, authenticating every call as
// myWxid (§6: "all requests include Wxid = MY_WXID").
func New(baseURL, myWxid string, log *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		myWxid:  myWxid,
		http:    &http.Client{Timeout: callTimeout},
		log:     log.With("component", "gateway"),
	}
}

// call issues one POST to the path named by alias with payload as the JSON
// body, returning the decoded response map. payload.Wxid is set to the
// client's identity if absent.
func (c *Client) call(ctx context.Context, alias string, payload map[string]any) (map[string]any, error) {
	segment, ok := pathAlias[alias]
	if !ok {
		return nil, fmt.Errorf("gateway: unknown path alias %q", alias)
	}

	if payload == nil {
		payload = map[string]any{}
	}
	if _, ok := payload["Wxid"]; !ok {
		payload["Wxid"] = c.myWxid
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway payload: %w", err)
	}

	url := c.baseURL + "/api/" + segment
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway call %s: %w", alias, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response %s: %w", alias, err)
	}

	if resp.StatusCode >= 400 {
		return nil, &GatewayError{Path: segment, Message: fmt.Sprintf("http %d: %s", resp.StatusCode, string(raw))}
	}

	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode gateway response %s: %w", alias, err)
	}

	if ok, present := result["Success"].(bool); present && !ok {
		msg, _ := result["Message"].(string)
		return nil, &GatewayError{Path: segment, Message: msg}
	}

	return result, nil
}

// SendText sends a plain-text message to toWxid.
func (c *Client) SendText(ctx context.Context, toWxid, content string) (map[string]any, error) {
	return c.call(ctx, "SEND_TEXT", map[string]any{"ToWxid": toWxid, "Content": content})
}

// SendImage sends a base64-encoded image to toWxid.
func (c *Client) SendImage(ctx context.Context, toWxid, base64Data string) (map[string]any, error) {
	return c.call(ctx, "SEND_IMAGE", map[string]any{"ToWxid": toWxid, "Base64": base64Data})
}

// SendVideo sends a base64-encoded video with a thumbnail and play length.
func (c *Client) SendVideo(ctx context.Context, toWxid, base64Data, thumbBase64 string, playLength int) (map[string]any, error) {
	return c.call(ctx, "SEND_VIDEO", map[string]any{
		"ToWxid": toWxid, "Base64": base64Data, "Thumb": thumbBase64, "PlayLength": playLength,
	})
}

// SendVoice sends a base64-encoded SILK voice message of duration voiceTimeMs.
func (c *Client) SendVoice(ctx context.Context, toWxid, base64Data string, voiceTimeMs int) (map[string]any, error) {
	return c.call(ctx, "SEND_VOICE", map[string]any{
		"ToWxid": toWxid, "Type": 4, "VoiceTime": voiceTimeMs, "Base64": base64Data,
	})
}

// SendApp sends an appmsg XML payload (links, quotes, etc).
func (c *Client) SendApp(ctx context.Context, toWxid, xmlPayload string) (map[string]any, error) {
	return c.call(ctx, "SEND_APP", map[string]any{"ToWxid": toWxid, "Xml": xmlPayload})
}

// SendEmoji re-sends a WeChat custom emoji/sticker by md5+size, or submits
// a fresh one with an empty md5 for the gateway to side-index.
func (c *Client) SendEmoji(ctx context.Context, toWxid, md5 string, totalLen int64) (map[string]any, error) {
	return c.call(ctx, "SEND_EMOJI", map[string]any{"ToWxid": toWxid, "Md5": md5, "TotalLen": totalLen})
}

// SendLocation sends a location share.
func (c *Client) SendLocation(ctx context.Context, toWxid string, lat, lon float64, label, poiName string) (map[string]any, error) {
	return c.call(ctx, "SEND_LOCATION", map[string]any{
		"ToWxid": toWxid, "X": lat, "Y": lon, "Label": label, "PoiName": poiName,
	})
}

// UploadFile sends a base64-encoded document.
func (c *Client) UploadFile(ctx context.Context, toWxid, fileName, base64Data string) (map[string]any, error) {
	return c.call(ctx, "UPLOAD_FILE", map[string]any{"ToWxid": toWxid, "FileName": fileName, "Base64": base64Data})
}

// Revoke calls the gateway's revocation endpoint with the triple its
// response originally returned.
func (c *Client) Revoke(ctx context.Context, toWxid, clientMsgID string, createTime, newMsgID int64) (map[string]any, error) {
	return c.call(ctx, "REVOKE", map[string]any{
		"ToWxid": toWxid, "ClientMsgId": clientMsgID, "CreateTime": createTime, "NewMsgId": newMsgID,
	})
}

// UserInfo fetches contact/chatroom metadata.
func (c *Client) UserInfo(ctx context.Context, wxid string) (map[string]any, error) {
	return c.call(ctx, "USER_INFO", map[string]any{"TargetWxid": wxid})
}

// UserSearch searches contacts by id, phone, or name.
func (c *Client) UserSearch(ctx context.Context, query string) (map[string]any, error) {
	return c.call(ctx, "USER_SEARCH", map[string]any{"Query": query})
}

// UserAdd sends a friend-add request.
func (c *Client) UserAdd(ctx context.Context, v3, v4, msg string, scene int) (map[string]any, error) {
	return c.call(ctx, "USER_ADD", map[string]any{"V3": v3, "V4": v4, "Content": msg, "Scene": scene})
}

// UserRemark sets a contact's remark name.
func (c *Client) UserRemark(ctx context.Context, wxid, remark string) (map[string]any, error) {
	return c.call(ctx, "USER_REMARK", map[string]any{"TargetWxid": wxid, "Remark": remark})
}

// GroupMember lists the members of a chatroom.
func (c *Client) GroupMember(ctx context.Context, chatroomID string) (map[string]any, error) {
	return c.call(ctx, "GROUP_MEMBER", map[string]any{"ChatRoomName": chatroomID})
}

// GroupQuit leaves a WeChat group chat.
func (c *Client) GroupQuit(ctx context.Context, chatroomID string) (map[string]any, error) {
	return c.call(ctx, "GROUP_QUIT", map[string]any{"ChatRoomName": chatroomID})
}

// LoginSecond triggers a secondary login on the gateway (/login command).
func (c *Client) LoginSecond(ctx context.Context) (map[string]any, error) {
	return c.call(ctx, "LOGIN_SECOND", nil)
}
