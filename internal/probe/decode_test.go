package probe

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/JakeFAU/imagesize-intrinsic/internal/imgsize"
)

func TestDecodeRasterFormats(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 31, 17))
	encoders := map[string]func(*bytes.Buffer) error{
		"jpeg": func(b *bytes.Buffer) error { return jpeg.Encode(b, img, nil) },
		"gif":  func(b *bytes.Buffer) error { return gif.Encode(b, img, nil) },
		"bmp":  func(b *bytes.Buffer) error { return bmp.Encode(b, img) },
		"tiff": func(b *bytes.Buffer) error { return tiff.Encode(b, img, nil) },
	}
	for name, encode := range encoders {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, encode(&buf))
			d, err := Decode("", buf.Bytes())
			require.NoError(t, err)
			assert.Equal(t, imgsize.Dimensions{Width: 31, Height: 17}, d)
		})
	}

	d, err := Decode("image/png", pngBytes(t, 800, 600))
	require.NoError(t, err)
	assert.Equal(t, imgsize.Dimensions{Width: 800, Height: 600}, d)
}

func TestDecodeTruncatedHeaderUsesPrefix(t *testing.T) {
	t.Parallel()

	body := pngBytes(t, 64, 48)
	d, err := Decode("image/png", body[:33])
	require.NoError(t, err)
	assert.Equal(t, imgsize.Dimensions{Width: 64, Height: 48}, d)
}

func TestDecodeSVG(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
		want imgsize.Dimensions
	}{
		{"width and height", `<svg xmlns="http://www.w3.org/2000/svg" width="120" height="40"></svg>`, imgsize.Dimensions{Width: 120, Height: 40}},
		{"px units", `<?xml version="1.0"?><svg width="10.4px" height="20px"/>`, imgsize.Dimensions{Width: 10, Height: 20}},
		{"viewBox only", `<svg viewBox="0 0 300 150"></svg>`, imgsize.Dimensions{Width: 300, Height: 150}},
		{"width with viewBox", `<svg width="600" viewBox="0,0,300,150"></svg>`, imgsize.Dimensions{Width: 600, Height: 300}},
		{"percent falls back", `<svg width="100%" height="100%" viewBox="0 0 24 24"></svg>`, imgsize.Dimensions{Width: 24, Height: 24}},
		{"no size", `<svg></svg>`, imgsize.Dimensions{}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := Decode("", []byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.want, d)
		})
	}

	d, err := Decode("image/svg+xml; charset=utf-8", []byte(`<!-- logo --><svg width="5" height="6"/>`))
	require.NoError(t, err)
	assert.Equal(t, imgsize.Dimensions{Width: 5, Height: 6}, d)
}

func TestDecodeRejectsUnknown(t *testing.T) {
	t.Parallel()

	_, err := Decode("text/html", []byte("<html><body>nope</body></html>"))
	require.ErrorIs(t, err, ErrUnrecognizedFormat)

	_, err = Decode("image/svg+xml", []byte(`<html></html>`))
	require.ErrorIs(t, err, ErrUnrecognizedFormat)

	_, err = Decode("", nil)
	require.ErrorIs(t, err, ErrUnrecognizedFormat)
}
