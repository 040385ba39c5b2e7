// Package processor turns source image bytes plus an operation list into
// encoded variant bytes.
package processor

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/disintegration/imaging"

	"github.com/scaleserve/scaleserve/internal/entity"
)

// Processor renders one variant. Operations are applied in list order.
type Processor interface {
	Process(ctx context.Context, r io.Reader, ops *entity.OperationList, info *entity.Info, w io.Writer) error
}

// ImagingProcessor implements Processor on top of the imaging library.
type ImagingProcessor struct {
	jpegQuality int
}

func NewImagingProcessor(jpegQuality int) *ImagingProcessor {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 80
	}
	return &ImagingProcessor{jpegQuality: jpegQuality}
}

func (p *ImagingProcessor) Process(ctx context.Context, r io.Reader, ops *entity.OperationList, info *entity.Info, w io.Writer) error {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decoding source image: %w", err)
	}
	encode, _ := ops.Encode()

	for _, op := range ops.Operations() {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err = p.apply(img, op)
		if err != nil {
			return err
		}
	}
	return p.encode(w, img, encode)
}

func (p *ImagingProcessor) apply(img image.Image, op entity.Operation) (image.Image, error) {
	switch o := op.(type) {
	case entity.Crop:
		r := image.Rect(o.Region.X, o.Region.Y, o.Region.X+o.Region.Width, o.Region.Y+o.Region.Height)
		return imaging.Crop(img, r), nil
	case entity.Scale:
		return p.scale(img, o), nil
	case entity.Rotate:
		return p.rotate(img, o), nil
	case entity.Filter:
		return p.filter(img, o)
	case entity.Redact:
		return p.redact(img, o), nil
	case entity.Encode:
		// Handled at the end of the pipeline.
		return img, nil
	default:
		return nil, fmt.Errorf("unsupported operation %T", op)
	}
}

func (p *ImagingProcessor) scale(img image.Image, o entity.Scale) image.Image {
	b := img.Bounds()
	w, h := o.Width, o.Height
	if o.Percent > 0 {
		w = int(float64(b.Dx())*o.Percent + 0.5)
		h = int(float64(b.Dy())*o.Percent + 0.5)
	}
	if w <= 0 && h <= 0 {
		return img
	}
	// A single zero dimension preserves aspect ratio.
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

func (p *ImagingProcessor) rotate(img image.Image, o entity.Rotate) image.Image {
	if o.Mirror {
		img = imaging.FlipH(img)
	}
	switch o.Degrees {
	case 0:
		return img
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return imaging.Rotate(img, -o.Degrees, color.Black)
	}
}

func (p *ImagingProcessor) filter(img image.Image, o entity.Filter) (image.Image, error) {
	switch o {
	case entity.FilterGray:
		return imaging.Grayscale(img), nil
	case entity.FilterBitonal:
		gray := imaging.Grayscale(img)
		return imaging.AdjustFunc(gray, func(c color.NRGBA) color.NRGBA {
			if c.R >= 128 {
				return color.NRGBA{R: 255, G: 255, B: 255, A: c.A}
			}
			return color.NRGBA{A: c.A}
		}), nil
	default:
		return nil, fmt.Errorf("unsupported filter %q", string(o))
	}
}

func (p *ImagingProcessor) redact(img image.Image, o entity.Redact) image.Image {
	// A zero-area region or zero opacity means the redaction has no effect.
	if o.Region.Empty() || o.Opacity <= 0 {
		return img
	}
	dst := imaging.Clone(img)
	r := image.Rect(o.Region.X, o.Region.Y, o.Region.X+o.Region.Width, o.Region.Y+o.Region.Height)
	r = r.Intersect(dst.Bounds())
	if r.Empty() {
		return dst
	}
	alpha := uint8(255)
	if o.Opacity > 0 && o.Opacity < 1 {
		alpha = uint8(o.Opacity*255 + 0.5)
	}
	draw.Draw(dst, r, image.NewUniform(color.NRGBA{A: alpha}), image.Point{}, draw.Over)
	return dst
}

func (p *ImagingProcessor) encode(w io.Writer, img image.Image, e entity.Encode) error {
	quality := e.Quality
	if quality <= 0 || quality > 100 {
		quality = p.jpegQuality
	}
	switch e.Format {
	case "", "jpg", "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case "png":
		return png.Encode(w, img)
	case "gif":
		return gif.Encode(w, img, nil)
	default:
		return fmt.Errorf("unsupported output format %q", e.Format)
	}
}

// ReadInfo derives image characteristics from encoded bytes without a full
// decode.
func ReadInfo(r io.Reader) (*entity.Info, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return nil, fmt.Errorf("reading image header: %w", err)
	}
	info := entity.NewInfo(cfg.Width, cfg.Height)
	info.MediaType = mediaTypeForFormat(format)
	return info, nil
}

func mediaTypeForFormat(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}
