package transport

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/scaleserve/scaleserve/internal/entity"
)

// errBadRequest marks malformed request path parameters.
var errBadRequest = errors.New("malformed request parameter")

type regionKind int

const (
	regionFull regionKind = iota
	regionSquare
	regionPixels
	regionPercent
)

type regionSpec struct {
	kind       regionKind
	x, y, w, h float64
}

type sizeKind int

const (
	sizeMax sizeKind = iota
	sizePixels
	sizePercent
)

type sizeSpec struct {
	kind    sizeKind
	width   int
	height  int
	percent float64
	upscale bool
}

// imageParams is the parsed form of one image request path:
// {identifier}/{region}/{size}/{rotation}/{quality}.{format}
type imageParams struct {
	meta     entity.MetaIdentifier
	region   regionSpec
	size     sizeSpec
	rotation entity.Rotate
	quality  string
	format   string
}

func parseImageParams(identifier, region, size, rotation, qualityFormat string) (*imageParams, error) {
	meta, err := entity.ParseMetaIdentifier(identifier)
	if err != nil {
		return nil, err
	}
	p := &imageParams{meta: meta}
	if p.region, err = parseRegion(region); err != nil {
		return nil, err
	}
	if p.size, err = parseSize(size); err != nil {
		return nil, err
	}
	if p.rotation, err = parseRotation(rotation); err != nil {
		return nil, err
	}
	if p.quality, p.format, err = parseQualityFormat(qualityFormat); err != nil {
		return nil, err
	}
	return p, nil
}

func parseRegion(s string) (regionSpec, error) {
	switch s {
	case "full":
		return regionSpec{kind: regionFull}, nil
	case "square":
		return regionSpec{kind: regionSquare}, nil
	}
	kind := regionPixels
	if strings.HasPrefix(s, "pct:") {
		kind = regionPercent
		s = strings.TrimPrefix(s, "pct:")
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return regionSpec{}, fmt.Errorf("region %q: %w", s, errBadRequest)
	}
	vals := make([]float64, 4)
	for i, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 {
			return regionSpec{}, fmt.Errorf("region %q: %w", s, errBadRequest)
		}
		vals[i] = v
	}
	if vals[2] == 0 || vals[3] == 0 {
		return regionSpec{}, fmt.Errorf("region %q has zero area: %w", s, errBadRequest)
	}
	return regionSpec{kind: kind, x: vals[0], y: vals[1], w: vals[2], h: vals[3]}, nil
}

func parseSize(s string) (sizeSpec, error) {
	spec := sizeSpec{}
	if strings.HasPrefix(s, "^") {
		spec.upscale = true
		s = strings.TrimPrefix(s, "^")
	}
	if s == "max" {
		spec.kind = sizeMax
		return spec, nil
	}
	if strings.HasPrefix(s, "pct:") {
		pct, err := strconv.ParseFloat(strings.TrimPrefix(s, "pct:"), 64)
		if err != nil || pct <= 0 {
			return sizeSpec{}, fmt.Errorf("size %q: %w", s, errBadRequest)
		}
		if pct > 100 && !spec.upscale {
			return sizeSpec{}, fmt.Errorf("size %q upscales without ^: %w", s, errBadRequest)
		}
		spec.kind = sizePercent
		spec.percent = pct
		return spec, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 || (parts[0] == "" && parts[1] == "") {
		return sizeSpec{}, fmt.Errorf("size %q: %w", s, errBadRequest)
	}
	var err error
	if parts[0] != "" {
		if spec.width, err = strconv.Atoi(parts[0]); err != nil || spec.width < 1 {
			return sizeSpec{}, fmt.Errorf("size %q: %w", s, errBadRequest)
		}
	}
	if parts[1] != "" {
		if spec.height, err = strconv.Atoi(parts[1]); err != nil || spec.height < 1 {
			return sizeSpec{}, fmt.Errorf("size %q: %w", s, errBadRequest)
		}
	}
	spec.kind = sizePixels
	return spec, nil
}

func parseRotation(s string) (entity.Rotate, error) {
	rot := entity.Rotate{}
	if strings.HasPrefix(s, "!") {
		rot.Mirror = true
		s = strings.TrimPrefix(s, "!")
	}
	degrees, err := strconv.ParseFloat(s, 64)
	if err != nil || degrees < 0 || degrees >= 360 {
		return entity.Rotate{}, fmt.Errorf("rotation %q: %w", s, errBadRequest)
	}
	rot.Degrees = degrees
	return rot, nil
}

func parseQualityFormat(s string) (quality, format string, err error) {
	dot := strings.LastIndex(s, ".")
	if dot < 1 || dot == len(s)-1 {
		return "", "", fmt.Errorf("quality/format %q: %w", s, errBadRequest)
	}
	quality, format = s[:dot], s[dot+1:]
	switch quality {
	case "default", "color", "gray", "bitonal":
	default:
		return "", "", fmt.Errorf("quality %q: %w", quality, errBadRequest)
	}
	switch format {
	case "jpg", "png", "gif":
	default:
		return "", "", fmt.Errorf("format %q: %w", format, errBadRequest)
	}
	return quality, format, nil
}

// buildOperations amends ops against real image dimensions. Called once the
// handler has resolved the source characteristics. A positive maxPixels caps
// the area of the response.
func (p *imageParams) buildOperations(ops *entity.OperationList, full entity.Size, maxPixels int64) error {
	crop, cropped, err := p.resolveRegion(full)
	if err != nil {
		return err
	}
	if cropped {
		ops.Add(entity.Crop{Region: crop})
	} else {
		crop = entity.Region{Width: full.Width, Height: full.Height}
	}

	out := crop.Size()
	if scale, ok, err := p.resolveScale(crop.Size()); err != nil {
		return err
	} else if ok {
		ops.Add(scale)
		out = scaledOutput(crop.Size(), scale)
	}
	if maxPixels > 0 && out.Area() > maxPixels {
		return fmt.Errorf("response of %s exceeds the %d pixel ceiling: %w", out, maxPixels, errBadRequest)
	}

	if p.rotation.Degrees != 0 || p.rotation.Mirror {
		ops.Add(p.rotation)
	}
	switch p.quality {
	case "gray":
		ops.Add(entity.FilterGray)
	case "bitonal":
		ops.Add(entity.FilterBitonal)
	}
	ops.Add(entity.Encode{Format: p.format})
	return nil
}

// resolveRegion converts the region spec to pixel coordinates, reporting
// whether a crop is needed at all.
func (p *imageParams) resolveRegion(full entity.Size) (entity.Region, bool, error) {
	switch p.region.kind {
	case regionFull:
		return entity.Region{}, false, nil
	case regionSquare:
		if full.Width == full.Height {
			return entity.Region{}, false, nil
		}
		side := full.Width
		if full.Height < side {
			side = full.Height
		}
		return entity.Region{
			X:      (full.Width - side) / 2,
			Y:      (full.Height - side) / 2,
			Width:  side,
			Height: side,
		}, true, nil
	case regionPercent:
		r := entity.Region{
			X:      int(math.Round(p.region.x / 100 * float64(full.Width))),
			Y:      int(math.Round(p.region.y / 100 * float64(full.Height))),
			Width:  int(math.Round(p.region.w / 100 * float64(full.Width))),
			Height: int(math.Round(p.region.h / 100 * float64(full.Height))),
		}
		return clampRegion(r, full)
	default:
		r := entity.Region{
			X:      int(p.region.x),
			Y:      int(p.region.y),
			Width:  int(p.region.w),
			Height: int(p.region.h),
		}
		return clampRegion(r, full)
	}
}

// clampRegion trims a region to the image bounds. An origin outside the
// image maps to not-found per the protocol.
func clampRegion(r entity.Region, full entity.Size) (entity.Region, bool, error) {
	if r.X >= full.Width || r.Y >= full.Height {
		return entity.Region{}, false, fmt.Errorf("region origin outside image bounds: %w", entity.ErrNotFound)
	}
	if r.X+r.Width > full.Width {
		r.Width = full.Width - r.X
	}
	if r.Y+r.Height > full.Height {
		r.Height = full.Height - r.Y
	}
	if r.X == 0 && r.Y == 0 && r.Width == full.Width && r.Height == full.Height {
		return entity.Region{}, false, nil
	}
	return r, true, nil
}

// scaledOutput predicts the pixel size a scale produces from the given
// input, mirroring the processor's aspect-preserving behavior.
func scaledOutput(in entity.Size, s entity.Scale) entity.Size {
	if s.Percent > 0 {
		return entity.Size{
			Width:  int(float64(in.Width)*s.Percent + 0.5),
			Height: int(float64(in.Height)*s.Percent + 0.5),
		}
	}
	w, h := s.Width, s.Height
	switch {
	case w <= 0 && h > 0:
		w = int(float64(in.Width)*float64(h)/float64(in.Height) + 0.5)
	case h <= 0 && w > 0:
		h = int(float64(in.Height)*float64(w)/float64(in.Width) + 0.5)
	}
	return entity.Size{Width: w, Height: h}
}

// resolveScale converts the size spec against the post-crop size.
func (p *imageParams) resolveScale(cropped entity.Size) (entity.Scale, bool, error) {
	switch p.size.kind {
	case sizeMax:
		return entity.Scale{}, false, nil
	case sizePercent:
		if p.size.percent == 100 {
			return entity.Scale{}, false, nil
		}
		return entity.Scale{Percent: p.size.percent / 100}, true, nil
	default:
		w, h := p.size.width, p.size.height
		if !p.size.upscale && (w > cropped.Width || h > cropped.Height) {
			return entity.Scale{}, false, fmt.Errorf("size exceeds extracted region without ^: %w", errBadRequest)
		}
		if w == cropped.Width && h == cropped.Height {
			return entity.Scale{}, false, nil
		}
		return entity.Scale{Width: w, Height: h}, true, nil
	}
}
