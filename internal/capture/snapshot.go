package capture

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
)

type SnapshotFormat string

const (
	SnapshotJPEG SnapshotFormat = "jpeg"
	SnapshotPNG  SnapshotFormat = "png"
)

type SnapshotOptions struct {
	Format    SnapshotFormat
	Quality   int // JPEG quality 1-100; 0 picks the default
	MaxWidth  int // 0 leaves the frame untouched
	MaxHeight int
}

func (o SnapshotOptions) withDefaults() SnapshotOptions {
	if o.Format == "" {
		o.Format = SnapshotJPEG
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = 80
	}
	return o
}

func encodeSnapshot(img image.Image, opts SnapshotOptions) ([]byte, error) {
	opts = opts.withDefaults()
	img = downscale(img, opts.MaxWidth, opts.MaxHeight)

	var buf bytes.Buffer
	switch opts.Format {
	case SnapshotPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.Quality}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// downscale shrinks img to fit within maxW x maxH using nearest
// neighbour sampling; evidence snapshots do not need resampling
// quality.
func downscale(img image.Image, maxW, maxH int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return img
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && float64(h)*scale > float64(maxH) {
		scale = float64(maxH) / float64(h)
	}
	if scale >= 1.0 {
		return img
	}

	outW := int(float64(w) * scale)
	outH := int(float64(h) * scale)
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}
	out := image.NewRGBA(image.Rect(0, 0, outW, outH))
	for y := 0; y < outH; y++ {
		srcY := bounds.Min.Y + y*h/outH
		for x := 0; x < outW; x++ {
			srcX := bounds.Min.X + x*w/outW
			out.Set(x, y, img.At(srcX, srcY))
		}
	}
	return out
}
