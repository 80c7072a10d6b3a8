package correlator

import (
	"testing"
)

func TestPutAndLookup(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := Record{
		TgMsgID: 42, WxMsgID: 999, FromWxid: "u1", ToWxid: "me",
		ClientMsgID: "abc", CreateTime: 1700000000, Content: "hello",
	}
	if err := c.Put(rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := c.TGToWeChat(42)
	if err != nil {
		t.Fatalf("TGToWeChat: %v", err)
	}
	if got.WxMsgID != 999 || got.FromWxid != "u1" {
		t.Fatalf("unexpected record: %+v", got)
	}

	tg, err := c.WeChatToTG(999)
	if err != nil {
		t.Fatalf("WeChatToTG: %v", err)
	}
	if tg != 42 {
		t.Fatalf("expected tg 42, got %d", tg)
	}
}

func TestLookupMiss(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.TGToWeChat(1); err != ErrCorrelationMiss {
		t.Fatalf("expected ErrCorrelationMiss, got %v", err)
	}
}

func TestPutReplacesSameKey(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Put(Record{TgMsgID: 1, WxMsgID: 10}); err != nil {
		t.Fatalf("Put first: %v", err)
	}
	if err := c.Put(Record{TgMsgID: 1, WxMsgID: 20}); err != nil {
		t.Fatalf("Put second: %v", err)
	}
	rec, err := c.TGToWeChat(1)
	if err != nil {
		t.Fatalf("TGToWeChat: %v", err)
	}
	if rec.WxMsgID != 20 {
		t.Fatalf("expected update in place, got wx_msg_id=%d", rec.WxMsgID)
	}

	ids, err := c.ByFromWxid("")
	if err != nil {
		t.Fatalf("ByFromWxid: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected exactly one record after replace, got %d", len(ids))
	}
}
