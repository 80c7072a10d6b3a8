package wire

import (
	"encoding/xml"
	"fmt"
)

// AppMsg is the tagged-sum result of decoding a MsgApp (49) payload's inner
// XML. One concrete type per appmsg.type row in the translation table;
// callers type-switch on the returned value instead of branching on nested
// map keys.
type AppMsg interface {
	appMsg()
}

type AppMsgLink struct {
	Title string
	Des   string
	URL   string
	Items []ArticleItem
}

// ArticleItem is one entry of a multi-article share (mmreader.category.item).
type ArticleItem struct {
	Title string
	URL   string
	Digest string
}

type AppMsgFile struct {
	Title      string
	AppAttachID string
	TotalLen   int64
}

type AppMsgChatHistory struct {
	Title   string
	Records []ChatHistoryRecord
}

// ChatHistoryRecord is one entry of recordinfo.datalist.dataitem.
type ChatHistoryRecord struct {
	SourceName string
	SourceTime string
	DataDesc   string
}

type AppMsgMiniProgram struct {
	Title      string
	SourceName string
}

type AppMsgChannel struct {
	NickName string
	Desc     string
}

type AppMsgNote struct {
	Title string
}

type AppMsgQuote struct {
	Title        string
	ReferMsgSvrID int64
	ReferMsgType  int
	ReferContent  string
}

type AppMsgTransfer struct {
	FeeDesc string
}

func (AppMsgLink) appMsg()        {}
func (AppMsgFile) appMsg()        {}
func (AppMsgChatHistory) appMsg() {}
func (AppMsgMiniProgram) appMsg() {}
func (AppMsgChannel) appMsg()     {}
func (AppMsgNote) appMsg()        {}
func (AppMsgQuote) appMsg()       {}
func (AppMsgTransfer) appMsg()    {}

// rawAppMsg mirrors the subset of WeChat's <msg><appmsg> XML this bridge
// reads. encoding/xml is the stdlib choice here — no third-party XML
// decoder appears anywhere in the reference repos, so there is nothing to
// wire in its place.
type rawAppMsg struct {
	XMLName xml.Name `xml:"msg"`
	AppMsg  struct {
		Title string `xml:"title"`
		Des   string `xml:"des"`
		URL   string `xml:"url"`
		Type  int    `xml:"type"`
		AppAttach struct {
			AppAttachID string `xml:"attachid"`
			TotalLen    int64  `xml:"totallen"`
		} `xml:"appattach"`
		ReferMsg struct {
			SvrID   int64  `xml:"svrid,string"`
			Type    int    `xml:"type"`
			Content string `xml:"content"`
		} `xml:"refermsg"`
		WCPayInfo struct {
			FeeDesc string `xml:"feedesc"`
		} `xml:"wcpayinfo"`
		MMReader struct {
			Category struct {
				Items []struct {
					Title  string `xml:"title"`
					URL    string `xml:"url"`
					Digest string `xml:"digest"`
				} `xml:"item"`
			} `xml:"category"`
		} `xml:"mmreader"`
		RecordInfo struct {
			Title    string `xml:"title"`
			DataList struct {
				Items []struct {
					SourceName string `xml:"sourcename"`
					SourceTime string `xml:"sourcetime"`
					DataDesc   string `xml:"datadesc"`
				} `xml:"dataitem"`
			} `xml:"datalist"`
		} `xml:"recordinfo"`
		SourceUserName string `xml:"sourceusername"`
		SourceDisplayName string `xml:"sourcedisplayname"`
	} `xml:"appmsg"`
}

// DecodeAppMsg parses a MsgApp payload's XML body and returns the tagged
// variant matching its appmsg.type. Unknown types return an error the
// caller treats as a drop.
func DecodeAppMsg(xmlBody []byte) (AppMsg, error) {
	var raw rawAppMsg
	if err := xml.Unmarshal(xmlBody, &raw); err != nil {
		return nil, fmt.Errorf("decode appmsg xml: %w", err)
	}

	switch AppMsgType(raw.AppMsg.Type) {
	case AppMsgLinkType:
		items := make([]ArticleItem, 0, len(raw.AppMsg.MMReader.Category.Items))
		for _, it := range raw.AppMsg.MMReader.Category.Items {
			items = append(items, ArticleItem{Title: it.Title, URL: it.URL, Digest: it.Digest})
		}
		return AppMsgLink{Title: raw.AppMsg.Title, Des: raw.AppMsg.Des, URL: raw.AppMsg.URL, Items: items}, nil
	case AppMsgFileType:
		return AppMsgFile{
			Title:       raw.AppMsg.Title,
			AppAttachID: raw.AppMsg.AppAttach.AppAttachID,
			TotalLen:    raw.AppMsg.AppAttach.TotalLen,
		}, nil
	case AppMsgChatHistoryType:
		recs := make([]ChatHistoryRecord, 0, len(raw.AppMsg.RecordInfo.DataList.Items))
		for _, it := range raw.AppMsg.RecordInfo.DataList.Items {
			recs = append(recs, ChatHistoryRecord{SourceName: it.SourceName, SourceTime: it.SourceTime, DataDesc: it.DataDesc})
		}
		return AppMsgChatHistory{Title: raw.AppMsg.RecordInfo.Title, Records: recs}, nil
	case AppMsgMiniProgramType:
		return AppMsgMiniProgram{Title: raw.AppMsg.Title, SourceName: raw.AppMsg.SourceDisplayName}, nil
	case AppMsgChannelType:
		return AppMsgChannel{NickName: raw.AppMsg.SourceDisplayName, Desc: raw.AppMsg.Des}, nil
	case AppMsgNoteType:
		return AppMsgNote{Title: raw.AppMsg.Title}, nil
	case AppMsgQuoteType:
		return AppMsgQuote{
			Title:         raw.AppMsg.Title,
			ReferMsgSvrID: raw.AppMsg.ReferMsg.SvrID,
			ReferMsgType:  raw.AppMsg.ReferMsg.Type,
			ReferContent:  raw.AppMsg.ReferMsg.Content,
		}, nil
	case AppMsgTransferType:
		return AppMsgTransfer{FeeDesc: raw.AppMsg.WCPayInfo.FeeDesc}, nil
	default:
		return nil, fmt.Errorf("unsupported appmsg type %d", raw.AppMsg.Type)
	}
}

// SysMsg is the tagged-sum result of decoding a system message (10000 /
// 10002) payload.
type SysMsg interface {
	sysMsg()
}

type SysMsgRevoke struct {
	NewMsgID    int64
	ReplaceMsg  string
}

type SysMsgPat struct {
	Template string
	FromWxid string
}

func (SysMsgRevoke) sysMsg() {}
func (SysMsgPat) sysMsg()    {}

type rawSysMsg struct {
	XMLName xml.Name `xml:"sysmsg"`
	Type    string   `xml:"type,attr"`
	RevokeMsg struct {
		NewMsgID   int64  `xml:"newmsgid"`
		ReplaceMsg string `xml:"replacemsg"`
	} `xml:"revokemsg"`
	Pat struct {
		Template string `xml:"template"`
		FromUsername string `xml:"fromusername"`
	} `xml:"pat"`
}

// DecodeSysMsg parses a system-message XML body into its tagged variant.
func DecodeSysMsg(xmlBody []byte) (SysMsg, error) {
	var raw rawSysMsg
	if err := xml.Unmarshal(xmlBody, &raw); err != nil {
		return nil, fmt.Errorf("decode sysmsg xml: %w", err)
	}
	switch SysMsgType(raw.Type) {
	case SysMsgRevokeType:
		return SysMsgRevoke{NewMsgID: raw.RevokeMsg.NewMsgID, ReplaceMsg: raw.RevokeMsg.ReplaceMsg}, nil
	case SysMsgPatType:
		return SysMsgPat{Template: raw.Pat.Template, FromWxid: raw.Pat.FromUsername}, nil
	default:
		return nil, fmt.Errorf("unsupported sysmsg type %q", raw.Type)
	}
}
