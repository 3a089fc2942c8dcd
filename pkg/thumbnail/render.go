package thumbnail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Registers the webp decoder with image.Decode.
)

// JPEGQuality is the fixed quality of every generated thumbnail.
const JPEGQuality = 85

// render turns the encoded image read from `src` into a base64 JPEG that fits in width x height.
// Images already inside the box are never enlarged. Transparent and palette images are flattened onto white.
// EXIF orientation is not applied; pixels are used as stored.
// Decoders allocate the whole pixel buffer from the header, so images declaring more than `maxPixels` are rejected
// before any pixel data is read.
func render(src io.Reader, width, height int, maxPixels int64) (payload string, err error) {
	defer func() { // Some decoders panic on malformed input instead of returning an error.
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: decoder panicked: %v", ErrDecode, recovered)
		}
	}()

	// Keep the header bytes consumed by DecodeConfig so the full decode can replay them.
	var header bytes.Buffer
	imageConfig, format, err := image.DecodeConfig(io.TeeReader(src, &header))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if pixels := int64(imageConfig.Width) * int64(imageConfig.Height); pixels > maxPixels {
		return "", fmt.Errorf("%w: %s image of %dx%d exceeds %d pixels", ErrDecode, format,
			imageConfig.Width, imageConfig.Height, maxPixels)
	}

	decoded, err := imaging.Decode(io.MultiReader(&header, src))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	thumb := imaging.Fit(decoded, width, height, imaging.Lanczos)
	if !thumb.Opaque() {
		background := imaging.New(thumb.Bounds().Dx(), thumb.Bounds().Dy(), color.White)
		thumb = imaging.Overlay(background, thumb, image.Pt(0, 0), 1.0)
	}

	var encoded bytes.Buffer
	if err := imaging.Encode(&encoded, thumb, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return base64.StdEncoding.EncodeToString(encoded.Bytes()), nil
}
