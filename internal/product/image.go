package product

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/url"
	"strings"

	"golang.org/x/image/draw"

	"github.com/MikeMC777/campus-market/internal/apperr"
)

const (
	MaxImageBytes = 5 << 20
	MaxImageSide  = 1024
	jpegQuality   = 80
)

// PrepareImage normalizes one image reference for storage. http(s) URLs are
// kept as they are. Anything else is taken as base64 image data (a data: URL
// or the bare payload), limited to MaxImageBytes, scaled so the long side is
// at most MaxImageSide and stored inline as a JPEG data URL.
func PrepareImage(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty image", apperr.ErrInvalidInput)
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		if _, err := url.ParseRequestURI(ref); err != nil {
			return "", fmt.Errorf("%w: bad image url: %v", apperr.ErrInvalidInput, err)
		}
		return ref, nil
	}

	payload := ref
	if strings.HasPrefix(ref, "data:") {
		i := strings.Index(ref, ",")
		if i < 0 || !strings.HasSuffix(ref[:i], ";base64") {
			return "", fmt.Errorf("%w: image data url must be base64", apperr.ErrInvalidInput)
		}
		payload = ref[i+1:]
	}
	if len(payload) > base64.StdEncoding.EncodedLen(MaxImageBytes) {
		return "", fmt.Errorf("%w: image exceeds %d MB", apperr.ErrInvalidInput, MaxImageBytes>>20)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: image is not valid base64", apperr.ErrInvalidInput)
	}
	if len(raw) > MaxImageBytes {
		return "", fmt.Errorf("%w: image exceeds %d MB", apperr.ErrInvalidInput, MaxImageBytes>>20)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: unsupported image: %v", apperr.ErrInvalidInput, err)
	}
	out, err := encodeJPEG(downscale(src, MaxImageSide))
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(out), nil
}

// downscale returns src scaled to fit within side on its long edge,
// flattened onto white.
func downscale(src image.Image, side int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > side || h > side {
		if w >= h {
			h = h * side / w
			w = side
		} else {
			w = w * side / h
			h = side
		}
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// PrepareImages runs PrepareImage over refs, keeping their order.
func PrepareImages(refs []string) ([]string, error) {
	out := make([]string, 0, len(refs))
	for i, ref := range refs {
		img, err := PrepareImage(ref)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i+1, err)
		}
		out = append(out, img)
	}
	return out, nil
}
