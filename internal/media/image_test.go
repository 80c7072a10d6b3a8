package media

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func encodeTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeAvatar_CropsAndUpscales(t *testing.T) {
	src := encodeTestJPEG(t, 300, 200)

	out, err := NormalizeAvatar(src)
	if err != nil {
		t.Fatalf("NormalizeAvatar: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode normalized avatar: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != b.Dy() {
		t.Fatalf("expected square output, got %dx%d", b.Dx(), b.Dy())
	}
	if b.Dx() < avatarMinSide {
		t.Fatalf("expected side >= %d, got %d", avatarMinSide, b.Dx())
	}
}

func TestNormalizeAvatar_AlreadyLargeEnough(t *testing.T) {
	src := encodeTestJPEG(t, 600, 600)

	out, err := NormalizeAvatar(src)
	if err != nil {
		t.Fatalf("NormalizeAvatar: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode normalized avatar: %v", err)
	}
	if img.Bounds().Dx() != 600 {
		t.Fatalf("expected untouched 600px side, got %d", img.Bounds().Dx())
	}
}
