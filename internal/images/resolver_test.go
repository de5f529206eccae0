package images

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func TestResizeImage(t *testing.T) {
	t.Run("fits untouched", func(t *testing.T) {
		data := encodePNG(t, 20, 10)
		out, changed, err := ResizeImage(data, 64)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, data, out)
	})

	t.Run("landscape png shrinks and stays png", func(t *testing.T) {
		out, changed, err := ResizeImage(encodePNG(t, 200, 100), 50)
		require.NoError(t, err)
		assert.True(t, changed)

		cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, "png", format)
		assert.Equal(t, 50, cfg.Width)
		assert.Equal(t, 25, cfg.Height)
	})

	t.Run("portrait jpeg", func(t *testing.T) {
		out, changed, err := ResizeImage(encodeJPEG(t, 60, 120), 30)
		require.NoError(t, err)
		assert.True(t, changed)

		cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.Equal(t, 15, cfg.Width)
		assert.Equal(t, 30, cfg.Height)
	})

	t.Run("garbage", func(t *testing.T) {
		_, _, err := ResizeImage([]byte("not an image"), 10)
		assert.Error(t, err)
	})
}

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	captureDir := t.TempDir()
	staticDir := filepath.Join(t.TempDir(), "static", "images")

	files := map[string][]byte{
		"C1_20250301100000.jpg":  encodeJPEG(t, 8, 8),
		"C1_20250302100000.jpg":  encodeJPEG(t, 8, 8),
		"C10_20250309100000.jpg": encodeJPEG(t, 8, 8),
		"C1_notes.txt":           []byte("x"),
	}
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(captureDir, name), data, 0o644))
	}

	r := NewResolver(captureDir, staticDir, 64)

	url, err := r.Resolve(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "/static/images/C1_20250302100000.jpg", url)
	assert.FileExists(t, filepath.Join(staticDir, "C1_20250302100000.jpg"))

	url, err = r.Resolve(ctx, "C2")
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestResolver_MissingCaptureDir(t *testing.T) {
	r := NewResolver(filepath.Join(t.TempDir(), "nope"), t.TempDir(), 64)

	url, err := r.Resolve(context.Background(), "C1")
	require.NoError(t, err)
	assert.Empty(t, url)

	n, err := r.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestResolver_PublishResizesLargeImages(t *testing.T) {
	captureDir := t.TempDir()
	staticDir := t.TempDir()
	src := filepath.Join(captureDir, "C5_20250301100000.png")
	require.NoError(t, os.WriteFile(src, encodePNG(t, 100, 40), 0o644))

	url, err := NewResolver(captureDir, staticDir, 50).Publish(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "/static/images/C5_20250301100000.png", url)

	f, err := os.Open(filepath.Join(staticDir, "C5_20250301100000.png"))
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Width)
}

func TestResolver_SyncAll(t *testing.T) {
	captureDir := t.TempDir()
	staticDir := t.TempDir()
	for _, name := range []string{"C1_1.jpg", "C2_1.jpeg", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(captureDir, name), encodeJPEG(t, 4, 4), 0o644))
	}

	r := NewResolver(captureDir, staticDir, 64)
	n, err := r.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
