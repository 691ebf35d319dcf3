package images

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"os"

	"github.com/chai2010/webp"
	"golang.org/x/image/draw"

	"github.com/daijiong1977/news-sub002/internal/core"
)

// decodeFile opens and decodes an image file. chai2010/webp registers the
// webp format; jpeg and gif come from the standard library.
func decodeFile(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", err
	}
	return img, format, nil
}

// fitWithin scales src to fit inside maxW x maxH preserving aspect ratio.
// Images already inside the box are returned unchanged: renditions are
// never upscaled.
func fitWithin(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return src
	}
	nw, nh := boundDims(w, h, maxW, maxH)
	return resizeTo(src, nw, nh)
}

// boundDims computes the largest dimensions within maxW x maxH that keep
// the w:h aspect ratio.
func boundDims(w, h, maxW, maxH int) (int, int) {
	scaleW := float64(maxW) / float64(w)
	scaleH := float64(maxH) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	nw := int(float64(w)*scale + 0.5)
	nh := int(float64(h)*scale + 0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

func resizeTo(src image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// encodeFormat re-encodes in the image's original format for the web
// rendition.
func encodeFormat(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case "jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			return nil, err
		}
	case "gif":
		if err := gif.Encode(&buf, img, nil); err != nil {
			return nil, err
		}
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Quality: 85}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported source format %q", format)
	}
	return buf.Bytes(), nil
}

// encodeMobile produces the WebP mobile rendition: bounded by 600x450,
// quality binary-searched in [40,85] to fit the 50 KB budget, then
// downscaled in 0.1 steps if quality 40 alone cannot fit. At the 100x100
// floor the image is emitted at quality 40 regardless of budget.
func encodeMobile(src image.Image) ([]byte, error) {
	fitted := fitWithin(src, mobileMaxWidth, mobileMaxHeight)
	baseW := fitted.Bounds().Dx()
	baseH := fitted.Bounds().Dy()

	for scale := 1.0; ; scale -= 0.1 {
		w := int(float64(baseW)*scale + 0.5)
		h := int(float64(baseH)*scale + 0.5)

		if w < floorDim || h < floorDim {
			floored := fitWithin(fitted, floorDim, floorDim)
			data, err := encodeWebP(floored, 40)
			if err != nil {
				return nil, &core.ImageError{Reason: "encode", Err: err}
			}
			return data, nil
		}

		candidate := fitted
		if scale < 1.0 {
			candidate = resizeTo(fitted, w, h)
		}

		data, ok, err := webpUnderBudget(candidate, mobileBudget)
		if err != nil {
			return nil, &core.ImageError{Reason: "encode", Err: err}
		}
		if ok {
			return data, nil
		}
	}
}

// webpUnderBudget binary-searches the quality parameter in [40,85] for
// the highest quality whose output fits the budget. ok is false when even
// quality 40 exceeds it.
func webpUnderBudget(img image.Image, budget int) ([]byte, bool, error) {
	lo, hi := 40, 85
	var best []byte

	for lo <= hi {
		q := (lo + hi) / 2
		data, err := encodeWebP(img, q)
		if err != nil {
			return nil, false, err
		}
		if len(data) <= budget {
			best = data
			lo = q + 1
		} else {
			hi = q - 1
		}
	}
	if best == nil {
		return nil, false, nil
	}
	return best, true, nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
