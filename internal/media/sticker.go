package media

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image"
	"image/gif"
	"os/exec"
	"strings"

	"go.mau.fi/webp"
)

// StickerConverter turns a downloaded Telegram sticker into the GIF
// payload spec.md §4.8's SEND_EMOJI row expects, dispatching by source
// mime type. .webp stickers decode in-process via go.mau.fi/webp (the
// same library the pack uses for the reverse direction); .webm (video
// stickers) shell out to ffmpeg, grounded on the voice converter's own
// ffmpeg-pipe pattern. .tgs (gzipped Lottie JSON) has no renderer
// anywhere in the pack — converting it would mean vendoring a full Lottie
// engine, so it returns an error here and the caller falls back to a
// textual placeholder per spec.md §7's media-decode-failure disposition.
type StickerConverter struct {
	ffmpegPath string
}

// NewStickerConverter locates ffmpeg for the .webm leg; .webp conversion
// needs no external binary.
func NewStickerConverter() (*StickerConverter, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	return &StickerConverter{ffmpegPath: path}, nil
}

// ToWeChatEmoji converts data (of the given mime type) to GIF, returning
// a base64 payload, its byte length, and its md5 sum for StickerIndex.
func (c *StickerConverter) ToWeChatEmoji(ctx context.Context, data []byte, mimeType string) (string, int64, string, error) {
	var gifData []byte
	var err error

	switch {
	case strings.Contains(mimeType, "webp"):
		gifData, err = c.webpToGIF(data)
	case strings.Contains(mimeType, "webm"):
		gifData, err = c.webmToGIF(ctx, data)
	case strings.Contains(mimeType, "tgs") || strings.Contains(mimeType, "lottie"):
		return "", 0, "", fmt.Errorf("tgs sticker conversion not supported")
	default:
		gifData, err = c.webpToGIF(data) // stickers without a reported mime default to webp, Telegram's common case
	}
	if err != nil {
		return "", 0, "", err
	}

	sum := md5.Sum(gifData)
	return base64.StdEncoding.EncodeToString(gifData), int64(len(gifData)), hex.EncodeToString(sum[:]), nil
}

func (c *StickerConverter) webpToGIF(data []byte) ([]byte, error) {
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode webp sticker: %w", err)
	}
	return encodeGIF(img)
}

func (c *StickerConverter) webmToGIF(ctx context.Context, data []byte) ([]byte, error) {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "webm", "-i", "pipe:0",
		"-f", "gif", "pipe:1",
	}
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	cmd.Stdin = bytes.NewReader(data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg webm to gif: %w, stderr: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func encodeGIF(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, &gif.Options{NumColors: 256}); err != nil {
		return nil, fmt.Errorf("encode gif: %w", err)
	}
	return buf.Bytes(), nil
}
