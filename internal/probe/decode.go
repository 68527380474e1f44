package probe

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"strconv"
	"strings"

	// Registered raster formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/JakeFAU/imagesize-intrinsic/internal/imgsize"
)

// ErrUnrecognizedFormat is returned for bodies no registered decoder accepts.
var ErrUnrecognizedFormat = errors.New("unrecognized file format")

// Decode reads the image header in body and returns its pixel size. Raster
// formats go through image.DecodeConfig; SVG documents are sized from the
// root element's width/height, falling back to the viewBox.
func Decode(contentType string, body []byte) (imgsize.Dimensions, error) {
	if isSVG(contentType, body) {
		return decodeSVG(body)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return imgsize.Dimensions{}, ErrUnrecognizedFormat
		}
		return imgsize.Dimensions{}, fmt.Errorf("decode image header: %w", err)
	}
	return imgsize.Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

func isSVG(contentType string, body []byte) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "image/svg") {
		return true
	}
	head := body
	if len(head) > 512 {
		head = head[:512]
	}
	head = bytes.TrimSpace(head)
	return bytes.HasPrefix(head, []byte("<svg")) ||
		(bytes.HasPrefix(head, []byte("<?xml")) && bytes.Contains(head, []byte("<svg")))
}

func decodeSVG(body []byte) (imgsize.Dimensions, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return imgsize.Dimensions{}, ErrUnrecognizedFormat
		}
		if err != nil {
			return imgsize.Dimensions{}, fmt.Errorf("decode svg: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "svg" {
			return imgsize.Dimensions{}, ErrUnrecognizedFormat
		}
		return svgSize(start.Attr), nil
	}
}

func svgSize(attrs []xml.Attr) imgsize.Dimensions {
	var width, height, viewBox string
	for _, a := range attrs {
		switch a.Name.Local {
		case "width":
			width = a.Value
		case "height":
			height = a.Value
		case "viewBox":
			viewBox = a.Value
		}
	}
	w, wok := svgLength(width)
	h, hok := svgLength(height)
	if wok && hok {
		return imgsize.Dimensions{Width: w, Height: h}
	}
	fields := strings.FieldsFunc(viewBox, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) != 4 {
		return imgsize.Dimensions{}
	}
	vw, err1 := strconv.ParseFloat(fields[2], 64)
	vh, err2 := strconv.ParseFloat(fields[3], 64)
	if err1 != nil || err2 != nil || vw <= 0 || vh <= 0 {
		return imgsize.Dimensions{}
	}
	vw, vh = math.Round(vw), math.Round(vh)
	switch {
	case wok:
		return imgsize.Dimensions{Width: w, Height: int(math.Round(float64(w) * vh / vw))}
	case hok:
		return imgsize.Dimensions{Width: int(math.Round(float64(h) * vw / vh)), Height: h}
	default:
		return imgsize.Dimensions{Width: int(vw), Height: int(vh)}
	}
}

// svgLength accepts unitless and px lengths.
func svgLength(s string) (int, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return int(math.Round(v)), true
}
