package gateway

import (
	"encoding/xml"
	"fmt"

	"github.com/hououinkami/wegram/internal/wire"
)

// rawMediaMsg covers the handful of top-level media tags (img, videomsg,
// voicemsg, emoji) whose attributes feed a Descriptor. One struct with
// every tag as an optional pointer keeps this a single xml.Unmarshal call
// instead of one struct per MediaKind.
type rawMediaMsg struct {
	XMLName xml.Name `xml:"msg"`
	Img     *struct {
		Length      int64  `xml:"length,attr"`
		CDNBigURL   string `xml:"cdnbigimgurl,attr"`
		CDNMidURL   string `xml:"cdnmidimgurl,attr"`
		CDNThumbURL string `xml:"cdnthumburl,attr"`
		AESKey      string `xml:"aeskey,attr"`
	} `xml:"img"`
	VideoMsg *struct {
		Length     int64  `xml:"length,attr"`
		CDNURL     string `xml:"cdnvideourl,attr"`
		AESKey     string `xml:"aeskey,attr"`
	} `xml:"videomsg"`
	VoiceMsg *struct {
		Length   int64  `xml:"length,attr"`
		VoiceURL string `xml:"voiceurl,attr"`
		ClientMsgId string `xml:"clientmsgid,attr"`
	} `xml:"voicemsg"`
	Emoji *struct {
		Len    int64  `xml:"len,attr"`
		CDNURL string `xml:"cdnurl,attr"`
		MD5    string `xml:"md5,attr"`
	} `xml:"emoji"`
}

// ParseDescriptor extracts a Descriptor from msg.Content's XML body for
// the given media kind, ready to hand to FetchMedia.
func ParseDescriptor(kind wire.MediaKind, msg wire.AddMsg) (Descriptor, error) {
	var raw rawMediaMsg
	if err := xml.Unmarshal([]byte(msg.Content), &raw); err != nil {
		return Descriptor{}, fmt.Errorf("parse media descriptor: %w", err)
	}

	d := Descriptor{
		MsgID:    msg.NewMsgId,
		FromWxid: msg.FromUserName,
		ToWxid:   msg.ToUserName,
		Kind:     kind,
	}

	switch kind {
	case wire.MediaImage:
		if raw.Img == nil {
			return Descriptor{}, fmt.Errorf("media descriptor: missing <img>")
		}
		d.DataLen = raw.Img.Length
		d.CDNURLBig = raw.Img.CDNBigURL
		d.CDNURLMid = raw.Img.CDNMidURL
		d.CDNURLThumb = raw.Img.CDNThumbURL
		d.AesKey = raw.Img.AESKey
	case wire.MediaVideo:
		if raw.VideoMsg == nil {
			return Descriptor{}, fmt.Errorf("media descriptor: missing <videomsg>")
		}
		d.DataLen = raw.VideoMsg.Length
		d.CDNURLBig = raw.VideoMsg.CDNURL
		d.AesKey = raw.VideoMsg.AESKey
	case wire.MediaVoice:
		if raw.VoiceMsg == nil {
			return Descriptor{}, fmt.Errorf("media descriptor: missing <voicemsg>")
		}
		d.DataLen = raw.VoiceMsg.Length
		d.CDNURLBig = raw.VoiceMsg.VoiceURL
	case wire.MediaEmoji:
		if raw.Emoji == nil {
			return Descriptor{}, fmt.Errorf("media descriptor: missing <emoji>")
		}
		d.DataLen = raw.Emoji.Len
		d.CDNURLBig = raw.Emoji.CDNURL
	default:
		return Descriptor{}, fmt.Errorf("media descriptor: unsupported kind %q", kind)
	}
	return d, nil
}
