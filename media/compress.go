package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	// MaxImageEdge bounds the long edge of a stored image.
	MaxImageEdge = 1920
	jpegQuality  = 80
)

// Compress re-encodes a JPEG or PNG to JPEG, scaling it down so the long edge
// is at most MaxImageEdge. Other image types are stored unchanged; the size
// bound already applied to them is the only control we can offer there.
func Compress(data []byte, contentType string) ([]byte, string, error) {
	if contentType != "image/jpeg" && contentType != "image/png" {
		return data, contentType, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decoding %s: %w", contentType, err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if long := max(width, height); long > MaxImageEdge {
		scale := float64(MaxImageEdge) / float64(long)
		dst := image.NewRGBA(image.Rect(0, 0,
			int(float64(width)*scale), int(float64(height)*scale)))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}
