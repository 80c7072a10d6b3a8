package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register the PNG decoder alongside JPEG for avatar sources

	"golang.org/x/image/draw"
)

// avatarMinSide is spec.md §4.9 step 4's "normalize to square JPEG ≥ 512 px".
const avatarMinSide = 512

// NormalizeAvatar decodes an arbitrary avatar image, center-crops it to
// square, scales to at least avatarMinSide per side, and re-encodes as
// JPEG. golang.org/x/image/draw has no Lanczos kernel; CatmullRom is its
// highest-quality scaler and substitutes for the upscale step.
func NormalizeAvatar(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode avatar: %w", err)
	}

	square := centerCropSquare(src)
	side := square.Bounds().Dx()
	if side < avatarMinSide {
		square = scaleSquare(square, avatarMinSide)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, square, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode avatar jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func centerCropSquare(src image.Image) image.Image {
	b := src.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	offX := b.Min.X + (b.Dx()-side)/2
	offY := b.Min.Y + (b.Dy()-side)/2
	cropRect := image.Rect(0, 0, side, side)

	dst := image.NewRGBA(cropRect)
	draw.Draw(dst, cropRect, src, image.Pt(offX, offY), draw.Src)
	return dst
}

func scaleSquare(src image.Image, side int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
