package images

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/chai2010/webp"
)

// noisyImage builds a deterministic high-entropy image that resists
// compression, forcing the mobile encoder to work for its budget.
func noisyImage(w, h int) image.Image {
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}

// flatImage compresses extremely well.
func flatImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 90, B: 160, A: 255})
		}
	}
	return img
}

func TestBoundDims(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		maxW, maxH   int
		wantW, wantH int
	}{
		{"landscape bound by width", 2048, 1536, 1024, 768, 1024, 768},
		{"portrait bound by height", 600, 1200, 1024, 768, 384, 768},
		{"wide panorama", 3000, 500, 1024, 768, 1024, 171},
		{"tiny floor", 5000, 2, 100, 100, 100, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := boundDims(tt.w, tt.h, tt.maxW, tt.maxH)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("boundDims(%d,%d,%d,%d) = %d,%d, want %d,%d",
					tt.w, tt.h, tt.maxW, tt.maxH, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestFitWithinNeverUpscales(t *testing.T) {
	src := flatImage(320, 240)
	got := fitWithin(src, 1024, 768)
	if got != src {
		t.Error("an image inside the box must be returned unchanged")
	}

	scaled := fitWithin(flatImage(2048, 1536), 1024, 768)
	b := scaled.Bounds()
	if b.Dx() != 1024 || b.Dy() != 768 {
		t.Errorf("got %dx%d, want 1024x768", b.Dx(), b.Dy())
	}
}

func TestEncodeMobileMeetsBudget(t *testing.T) {
	data, err := encodeMobile(noisyImage(2000, 1500))
	if err != nil {
		t.Fatalf("encodeMobile failed: %v", err)
	}

	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not decodable webp: %v", err)
	}
	if cfg.Width > mobileMaxWidth || cfg.Height > mobileMaxHeight {
		t.Errorf("rendition %dx%d exceeds the mobile box", cfg.Width, cfg.Height)
	}
	// The budget may only be exceeded at the dimension floor.
	if len(data) > mobileBudget && (cfg.Width > floorDim || cfg.Height > floorDim) {
		t.Errorf("%d bytes at %dx%d: over budget above the floor", len(data), cfg.Width, cfg.Height)
	}
}

func TestEncodeMobileKeepsSmallImagesSmall(t *testing.T) {
	data, err := encodeMobile(flatImage(300, 200))
	if err != nil {
		t.Fatalf("encodeMobile failed: %v", err)
	}
	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not decodable webp: %v", err)
	}
	if cfg.Width != 300 || cfg.Height != 200 {
		t.Errorf("got %dx%d, want the source dimensions preserved", cfg.Width, cfg.Height)
	}
	if len(data) > mobileBudget {
		t.Errorf("flat image produced %d bytes, want under budget", len(data))
	}
}

func TestWebpUnderBudgetPrefersHighQuality(t *testing.T) {
	img := flatImage(600, 450)

	data, ok, err := webpUnderBudget(img, mobileBudget)
	if err != nil {
		t.Fatalf("webpUnderBudget failed: %v", err)
	}
	if !ok {
		t.Fatal("flat image should fit the budget")
	}

	q85, err := encodeWebP(img, 85)
	if err != nil {
		t.Fatalf("encodeWebP failed: %v", err)
	}
	if len(q85) <= mobileBudget && len(data) != len(q85) {
		t.Error("search should settle on the highest fitting quality")
	}
}

func TestEncodeFormatRoundTrip(t *testing.T) {
	src := flatImage(64, 64)
	for _, format := range []string{"jpeg", "gif", "webp"} {
		data, err := encodeFormat(src, format)
		if err != nil {
			t.Fatalf("encodeFormat(%s) failed: %v", format, err)
		}
		_, got, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("decode of %s output failed: %v", format, err)
		}
		if got != format {
			t.Errorf("got format %s, want %s", got, format)
		}
	}

	if _, err := encodeFormat(src, "png"); err == nil {
		t.Error("png must be rejected as a source format")
	}
}

func TestDecodeFileJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flatImage(80, 60), nil); err != nil {
		t.Fatalf("jpeg encode failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "img.jpg")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	img, format, err := decodeFile(path)
	if err != nil {
		t.Fatalf("decodeFile failed: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("got format %s, want jpeg", format)
	}
	if img.Bounds().Dx() != 80 {
		t.Errorf("got width %d, want 80", img.Bounds().Dx())
	}
}
