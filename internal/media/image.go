// Package media validates and normalizes the binary inputs accepted at
// the HTTP boundary: snapshot images and follow-up audio.
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
	// MaxImageBytes is the upload cap for snapshot images.
	MaxImageBytes = 5 * 1024 * 1024

	// CompressThreshold is the size above which snapshots are
	// downscaled and recompressed before being sent to the provider.
	CompressThreshold = 1 * 1024 * 1024

	// DownscaleDim is the bounding box edge for recompressed snapshots.
	DownscaleDim = 768

	jpegQuality = 85
)

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
)

// ValidateImage checks the uploaded snapshot: JPEG or PNG content type,
// matching file signature, and size within MaxImageBytes.
func ValidateImage(data []byte, contentType string) error {
	switch contentType {
	case "image/jpeg", "image/png":
	default:
		return fmt.Errorf("invalid image type %q, must be JPEG or PNG", contentType)
	}

	if len(data) == 0 {
		return fmt.Errorf("image is empty")
	}
	if len(data) > MaxImageBytes {
		return fmt.Errorf("image too large: %d bytes, maximum %d", len(data), MaxImageBytes)
	}

	switch contentType {
	case "image/jpeg":
		if !bytes.HasPrefix(data, jpegMagic) {
			return fmt.Errorf("invalid JPEG file")
		}
	case "image/png":
		if !bytes.HasPrefix(data, pngMagic) {
			return fmt.Errorf("invalid PNG file")
		}
	}
	return nil
}

// Downscale decodes the image, fits it into a DownscaleDim bounding box
// preserving aspect ratio, and re-encodes as JPEG. Images already below
// CompressThreshold are returned unchanged. The reencoded result tells
// the caller whether the output is now JPEG regardless of input format.
func Downscale(data []byte) (out []byte, reencoded bool, err error) {
	if len(data) <= CompressThreshold {
		return data, false, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > DownscaleDim || h > DownscaleDim {
		if w >= h {
			h = h * DownscaleDim / w
			w = DownscaleDim
		} else {
			w = w * DownscaleDim / h
			h = DownscaleDim
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, false, fmt.Errorf("encode JPEG: %w", err)
	}
	return buf.Bytes(), true, nil
}
