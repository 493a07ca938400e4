package filehandler

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// ResizedJPEGQuality is the encoder quality for downsized frames.
const ResizedJPEGQuality = 90

// ResizeJPEG scales a JPEG down to maxWidth, keeping the aspect ratio.
// Images already within the limit are returned unchanged.
func ResizeJPEG(data []byte, maxWidth int) ([]byte, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read JPEG header: %w", err)
	}
	if maxWidth <= 0 || cfg.Width <= maxWidth {
		return data, nil
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode JPEG: %w", err)
	}

	newWidth, newHeight := scaledDimensions(cfg.Width, cfg.Height, maxWidth)
	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: ResizedJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode resized JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

func scaledDimensions(width, height, maxWidth int) (int, int) {
	h := height * maxWidth / width
	if h < 1 {
		h = 1
	}
	return maxWidth, h
}
