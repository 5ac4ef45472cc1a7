// Package frame holds capture-side image helpers: frames are downscaled
// before face detection for speed, and detected boxes are mapped back to
// full-frame coordinates. Nothing here touches the matching math.
package frame

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Downscale resizes an image by the given scale factor in (0, 1].
func Downscale(img image.Image, scale float64) image.Image {
	if scale >= 1 {
		return img
	}

	bounds := img.Bounds()
	newWidth := int(float64(bounds.Dx()) * scale)
	newHeight := int(float64(bounds.Dy()) * scale)
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// DownscaleJPEG decodes image data, downscales it by scale, and re-encodes
// as JPEG for the embedding service.
func DownscaleJPEG(data []byte, scale float64) ([]byte, error) {
	if scale >= 1 {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Downscale(img, scale), &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), nil
}

// UpscaleBBox maps a bounding box detected on a downscaled frame back to
// full-frame pixel coordinates.
func UpscaleBBox(bbox []float64, scale float64) []float64 {
	if len(bbox) != 4 || scale <= 0 || scale >= 1 {
		return bbox
	}
	out := make([]float64, 4)
	for i, v := range bbox {
		out[i] = v / scale
	}
	return out
}
