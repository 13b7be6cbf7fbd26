package imaging

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	data := encodePNG(t, testImage(20, 10))

	for _, mime := range []string{"image/png", ""} {
		img, err := Decode(data, mime)
		if err != nil {
			t.Fatalf("Decode(%q): %v", mime, err)
		}
		if img.Bounds().Dx() != 20 || img.Bounds().Dy() != 10 {
			t.Errorf("unexpected bounds %v", img.Bounds())
		}
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := Decode(nil, "image/png"); err == nil {
		t.Error("expected error for empty data")
	}
	if _, err := Decode([]byte("%PDF-1.4"), ""); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
	if _, err := Decode([]byte("not an image"), "image/jpeg"); err == nil {
		t.Error("expected error for garbage jpeg")
	}
}

func TestCompress(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		maxDim       int
		wantW, wantH int
	}{
		{"landscape downscaled", 400, 200, 100, 100, 50},
		{"portrait downscaled", 150, 300, 100, 50, 100},
		{"small untouched", 40, 30, 100, 40, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Compress(testImage(tt.w, tt.h), Options{MaxDimension: tt.maxDim, Quality: 70})
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("output is not jpeg: %v", err)
			}
			if cfg.Width != tt.wantW || cfg.Height != tt.wantH {
				t.Errorf("got %dx%d, want %dx%d", cfg.Width, cfg.Height, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestCompressBytes_Defaults(t *testing.T) {
	out, err := CompressBytes(encodePNG(t, testImage(10, 10)), "image/png", Options{})
	if err != nil {
		t.Fatalf("CompressBytes: %v", err)
	}
	if DetectMimeType(out) != "image/jpeg" {
		t.Errorf("expected jpeg output, got %s", DetectMimeType(out))
	}
}

func TestEnhance(t *testing.T) {
	src := testImage(16, 16)
	out := Enhance(src)
	if out.Bounds().Dx() != 16 || out.Bounds().Dy() != 16 {
		t.Fatalf("unexpected bounds %v", out.Bounds())
	}

	r, g, b, _ := out.At(8, 8).RGBA()
	if r != g || g != b {
		t.Errorf("expected grayscale pixel, got %d %d %d", r, g, b)
	}
}

func TestEnhanceBytes(t *testing.T) {
	out, err := EnhanceBytes(encodePNG(t, testImage(12, 12)), "", 0)
	if err != nil {
		t.Fatalf("EnhanceBytes: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(out)); err != nil {
		t.Errorf("output not decodable: %v", err)
	}
}

// hugePNG returns a valid 1x1 PNG whose header claims w x h.
func hugePNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := encodePNG(t, testImage(1, 1))
	// IHDR data starts after the 8-byte signature and the chunk length/type.
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestDecode_RejectsHugeDimensions(t *testing.T) {
	data := hugePNG(t, 100000, 100000)

	for _, mime := range []string{"image/png", ""} {
		if _, err := Decode(data, mime); !errors.Is(err, ErrTooLarge) {
			t.Errorf("Decode(%q): expected ErrTooLarge, got %v", mime, err)
		}
	}
	if _, err := EnhanceBytes(data, "", 0); !errors.Is(err, ErrTooLarge) {
		t.Errorf("EnhanceBytes: expected ErrTooLarge, got %v", err)
	}
	if _, err := CompressBytes(data, "image/png", Options{}); !errors.Is(err, ErrTooLarge) {
		t.Errorf("CompressBytes: expected ErrTooLarge, got %v", err)
	}
}
