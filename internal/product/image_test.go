package product

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/campus-market/internal/apperr"
)

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func decodeDataURL(t *testing.T, ref string) image.Config {
	t.Helper()
	const prefix = "data:image/jpeg;base64,"
	require.True(t, strings.HasPrefix(ref, prefix), "stored as a jpeg data url")
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ref, prefix))
	require.NoError(t, err)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	return cfg
}

func TestPrepareImage_URLKept(t *testing.T) {
	ref := "https://cdn.campus.edu/p/1.jpg"
	got, err := PrepareImage(ref)
	require.NoError(t, err)
	assert.Equal(t, ref, got)
}

func TestPrepareImage_Downscales(t *testing.T) {
	got, err := PrepareImage("data:image/png;base64," + pngBase64(t, 2048, 1024))
	require.NoError(t, err)
	cfg := decodeDataURL(t, got)
	assert.Equal(t, 1024, cfg.Width)
	assert.Equal(t, 512, cfg.Height)

	tall, err := PrepareImage(pngBase64(t, 300, 1500))
	require.NoError(t, err)
	cfg = decodeDataURL(t, tall)
	assert.Equal(t, 204, cfg.Width)
	assert.Equal(t, 1024, cfg.Height)
}

func TestPrepareImage_SmallKeepsSize(t *testing.T) {
	got, err := PrepareImage(pngBase64(t, 40, 30))
	require.NoError(t, err)
	cfg := decodeDataURL(t, got)
	assert.Equal(t, 40, cfg.Width)
	assert.Equal(t, 30, cfg.Height)
}

func TestPrepareImage_Rejects(t *testing.T) {
	for name, ref := range map[string]string{
		"empty":        "  ",
		"not base64":   "%%%",
		"not an image": base64.StdEncoding.EncodeToString([]byte("hello world")),
		"plain data":   "data:text/plain,hello",
		"too large":    strings.Repeat("A", base64.StdEncoding.EncodedLen(MaxImageBytes)+4),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := PrepareImage(ref)
			assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		})
	}
}

func TestPrepareImages_KeepsOrder(t *testing.T) {
	refs := []string{"https://a.example/1.jpg", pngBase64(t, 8, 8), "https://a.example/3.jpg"}
	got, err := PrepareImages(refs)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, refs[0], got[0])
	assert.True(t, strings.HasPrefix(got[1], "data:image/jpeg;base64,"))
	assert.Equal(t, refs[2], got[2])

	_, err = PrepareImages([]string{"https://a.example/1.jpg", ""})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}
