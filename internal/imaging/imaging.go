// Package imaging decodes uploaded receipt photos, shrinks them before they
// are sent for extraction and applies the OCR enhancement filter chain.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"

	"github.com/disintegration/imaging"
	"golang.org/x/image/webp"
)

// Defaults for Compress.
const (
	DefaultMaxDimension = 1600
	DefaultQuality      = 80
)

// MaxPixels caps width*height of an image accepted by Decode. Decoded
// images cost about 4 bytes per pixel.
const MaxPixels = 40_000_000

var (
	// ErrUnsupportedType is returned for content that is not JPEG, PNG or WebP.
	ErrUnsupportedType = errors.New("image must be png, jpeg, or webp")
	// ErrTooLarge is returned for images above MaxPixels.
	ErrTooLarge = errors.New("image dimensions too large")
)

// Options controls Compress.
type Options struct {
	MaxDimension int
	Quality      int
}

// DefaultOptions returns the default compression options.
func DefaultOptions() Options {
	return Options{MaxDimension: DefaultMaxDimension, Quality: DefaultQuality}
}

// DetectMimeType sniffs the content type from the image bytes.
func DetectMimeType(data []byte) string {
	return http.DetectContentType(data)
}

// Decode decodes JPEG, PNG or WebP data. mimeType may be empty, in which
// case the type is sniffed.
func Decode(data []byte, mimeType string) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("image is empty")
	}
	if mimeType == "" {
		mimeType = DetectMimeType(data)
	}

	switch mimeType {
	case "image/webp":
		return decodeWebP(data)
	case "image/png", "image/jpeg", "image/jpg":
	default:
		return nil, fmt.Errorf("Decode: %s: %w", mimeType, ErrUnsupportedType)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// client-declared type can be wrong
		if img, webpErr := decodeWebP(data); webpErr == nil || errors.Is(webpErr, ErrTooLarge) {
			return img, webpErr
		}
		return nil, fmt.Errorf("Decode: %w", err)
	}
	if err := checkSize(cfg); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("Decode: %w", err)
	}
	return img, nil
}

func decodeWebP(data []byte) (image.Image, error) {
	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("Decode: webp: %w", err)
	}
	if err := checkSize(cfg); err != nil {
		return nil, err
	}
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("Decode: webp: %w", err)
	}
	return img, nil
}

func checkSize(cfg image.Config) error {
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return fmt.Errorf("Decode: %dx%d: %w", cfg.Width, cfg.Height, ErrTooLarge)
	}
	return nil
}

// Compress bounds the longest edge of img to opts.MaxDimension and encodes it
// as JPEG at opts.Quality. Images already within bounds are only re-encoded.
func Compress(img image.Image, opts Options) ([]byte, error) {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}

	b := img.Bounds()
	if b.Dx() > opts.MaxDimension || b.Dy() > opts.MaxDimension {
		img = imaging.Fit(img, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(opts.Quality)); err != nil {
		return nil, fmt.Errorf("Compress: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// CompressBytes decodes data and compresses it.
func CompressBytes(data []byte, mimeType string, opts Options) ([]byte, error) {
	img, err := Decode(data, mimeType)
	if err != nil {
		return nil, err
	}
	return Compress(img, opts)
}

// Enhance applies the filter chain used before OCR: grayscale, contrast,
// sharpen, brightness, gamma.
func Enhance(img image.Image) image.Image {
	out := imaging.Grayscale(img)
	out = imaging.AdjustContrast(out, 30)
	out = imaging.Sharpen(out, 1.5)
	out = imaging.AdjustBrightness(out, 10)
	out = imaging.AdjustGamma(out, 1.2)
	return out
}

// EnhanceBytes decodes data, enhances it and returns it as JPEG.
func EnhanceBytes(data []byte, mimeType string, quality int) ([]byte, error) {
	img, err := Decode(data, mimeType)
	if err != nil {
		return nil, err
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, Enhance(img), imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("EnhanceBytes: encode: %w", err)
	}
	return buf.Bytes(), nil
}
