package gateway

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	"github.com/hououinkami/wegram/internal/wire"
)

const chunkSize = 65536

// Descriptor names the inputs to a chunked media download, parsed from the
// WeChat XML the gateway forwards in the callback body.
type Descriptor struct {
	MsgID      int64
	FromWxid   string
	ToWxid     string
	Kind       wire.MediaKind
	DataLen    int64
	AppID      string
	AttachID   string
	CDNURLBig  string
	CDNURLMid  string
	CDNURLThumb string
	AesKey     string
}

// bestCDNURL returns the highest-priority available CDN URL: big > mid > thumb.
func (d Descriptor) bestCDNURL() string {
	switch {
	case d.CDNURLBig != "":
		return d.CDNURLBig
	case d.CDNURLMid != "":
		return d.CDNURLMid
	default:
		return d.CDNURLThumb
	}
}

// FetchMedia downloads the media named by d, returning its full content
// and a content-address derived from its md5 sum (used by callers to
// short-circuit re-downloads against the on-disk media cache).
func (c *Client) FetchMedia(ctx context.Context, d Descriptor) ([]byte, string, error) {
	var (
		data []byte
		err  error
	)

	switch d.Kind {
	case wire.MediaVoice:
		data, err = c.fetchVoice(ctx, d)
	case wire.MediaEmoji:
		data, err = c.fetchEmojiCDN(ctx, d)
	case wire.MediaImage:
		data, err = c.fetchImageCDNFirst(ctx, d)
	default:
		data, err = c.fetchChunked(ctx, d)
	}
	if err != nil {
		return nil, "", err
	}

	sum := md5.Sum(data)
	return data, hex.EncodeToString(sum[:]), nil
}

// fetchImageCDNFirst attempts a single CDN decode (step 2) before falling
// back to the generic chunked path (step 3).
func (c *Client) fetchImageCDNFirst(ctx context.Context, d Descriptor) ([]byte, error) {
	if d.AesKey != "" && d.bestCDNURL() != "" {
		resp, err := c.call(ctx, "GET_IMAGE_CDN", map[string]any{
			"FileAesKey": d.AesKey,
			"FileNo":     d.bestCDNURL(),
		})
		if err == nil {
			if inner, ok := resp["Data"].(map[string]any); ok {
				if b64, ok := inner["Image"].(string); ok && b64 != "" {
					raw, decErr := base64.StdEncoding.DecodeString(b64)
					if decErr == nil {
						return raw, nil
					}
				}
			}
		}
		c.log.Debug("cdn image decode failed, falling back to chunked download", "msg_id", d.MsgID)
	}
	return c.fetchChunked(ctx, d)
}

// fetchChunked performs the general chunked-download loop (§4.1 steps 3-4):
// serial 64KiB requests, base64-decoded and appended, with exactly one
// adaptive retry allowed if the first response lacks a usable buffer.
//
// The adaptive retry adopts the gateway's own reported totalLen and
// restarts from offset 0. If the gateway under-reports totalLen relative
// to the real payload, the tail is silently truncated — this is a known,
// documented gap in the source behavior, preserved here rather than
// silently "fixed".
func (c *Client) fetchChunked(ctx context.Context, d Descriptor) ([]byte, error) {
	total := d.DataLen
	buf := make([]byte, 0, total)
	retried := false

	for offset := int64(0); offset < total || total == 0; offset += chunkSize {
		length := int64(chunkSize)
		if total > 0 && offset+length > total {
			length = total - offset
		}

		payload := chunkPayload(d, total, offset, length)
		resp, err := c.call(ctx, "GET_IMAGE", payload)
		if err != nil {
			return nil, fmt.Errorf("fetch chunk at offset %d: %w", offset, err)
		}

		chunk, ok := chunkBuffer(resp)
		if !ok {
			if retried || offset > 0 {
				return nil, fmt.Errorf("chunked download: gateway returned no buffer at offset %d", offset)
			}
			retried = true
			newTotal, ok := adaptiveTotalLen(resp)
			if !ok {
				return nil, fmt.Errorf("chunked download: adaptive retry found no totalLen")
			}
			total = newTotal
			buf = buf[:0]
			offset = -chunkSize // loop increment brings this back to 0
			continue
		}

		buf = append(buf, chunk...)
		if total == 0 && len(chunk) < chunkSize {
			break
		}
	}

	return buf, nil
}

func chunkPayload(d Descriptor, total, offset, length int64) map[string]any {
	if d.Kind == wire.MediaApp {
		return map[string]any{
			"CompressType": 0,
			"AppID":        d.AppID,
			"AttachId":     d.AttachID,
			"Section":      map[string]any{"DataLen": length, "StartPos": offset},
		}
	}
	payload := map[string]any{
		"CompressType": 0,
		"MsgId":        d.MsgID,
		"Section":      map[string]any{"DataLen": length, "StartPos": offset},
		"ToWxid":       d.ToWxid,
	}
	if total > 0 {
		payload["DataLen"] = total
	}
	return payload
}

func chunkBuffer(resp map[string]any) ([]byte, bool) {
	data, ok := resp["Data"].(map[string]any)
	if !ok {
		return nil, false
	}
	inner, ok := data["data"].(map[string]any)
	if !ok {
		return nil, false
	}
	b64, ok := inner["buffer"].(string)
	if !ok || b64 == "" {
		return nil, false
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, false
	}
	return raw, true
}

func adaptiveTotalLen(resp map[string]any) (int64, bool) {
	data, ok := resp["Data"].(map[string]any)
	if !ok {
		return 0, false
	}
	total, ok := data["totalLen"].(float64)
	if !ok {
		return 0, false
	}
	return int64(total), true
}

// fetchVoice uses the single-shot GET_VOICE endpoint returning a base64
// buffer directly.
func (c *Client) fetchVoice(ctx context.Context, d Descriptor) ([]byte, error) {
	resp, err := c.call(ctx, "GET_VOICE", map[string]any{"MsgId": d.MsgID, "ToWxid": d.ToWxid})
	if err != nil {
		return nil, err
	}
	b64, _ := resp["Data"].(string)
	if b64 == "" {
		if data, ok := resp["Data"].(map[string]any); ok {
			b64, _ = data["Buffer"].(string)
		}
	}
	return base64.StdEncoding.DecodeString(b64)
}

// fetchEmojiCDN uses GET_EMOJI (which returns a CDN URL) and fetches that
// URL directly.
func (c *Client) fetchEmojiCDN(ctx context.Context, d Descriptor) ([]byte, error) {
	resp, err := c.call(ctx, "GET_EMOJI", map[string]any{"MsgId": d.MsgID})
	if err != nil {
		return nil, err
	}
	url, _ := resp["CdnUrl"].(string)
	if url == "" {
		return nil, fmt.Errorf("get emoji: gateway returned no cdn url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build emoji cdn request: %w", err)
	}
	resp2, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch emoji cdn: %w", err)
	}
	defer resp2.Body.Close()
	return io.ReadAll(resp2.Body)
}
