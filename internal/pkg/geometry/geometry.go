// Resolution and tiling math for the image-pyramid protocols. Pure
// functions, no I/O.
package geometry

import (
	"errors"
	"math"

	"github.com/scaleserve/scaleserve/internal/entity"
)

// ErrTileOutOfBounds marks tile coordinates whose origin falls outside the
// scaled image bounds. Callers map it to a not-found response.
var ErrTileOutOfBounds = errors.New("tile coordinates are out of bounds")

// MaxReductionFactor returns the largest k such that halving the smaller of
// the full dimensions k times stays >= minDimension. Computed by iterative
// halving so that rounding matches the rest of the pyramid math.
func MaxReductionFactor(full entity.Size, minDimension int) int {
	if minDimension < 1 {
		minDimension = 1
	}
	d := float64(full.Width)
	if full.Height < full.Width {
		d = float64(full.Height)
	}
	factor := 0
	for d/2 >= float64(minDimension) {
		d /= 2
		factor++
	}
	return factor
}

// MinReductionFactor returns the smallest k such that halving the area k
// times brings the total pixel count <= maxPixels. Each step scales both
// dimensions by 0.5 with ceiling rounding, like the pyramid levels.
func MinReductionFactor(full entity.Size, maxPixels int64) int {
	if maxPixels < 1 {
		return 0
	}
	w, h := full.Width, full.Height
	factor := 0
	for int64(w)*int64(h) > maxPixels {
		w = halve(w)
		h = halve(h)
		factor++
	}
	return factor
}

// Pyramid returns the Deep Zoom level sizes ordered smallest-first. Each
// level's dimensions equal the ceiling of half the next level's; the top
// level is the full size exactly. Level count is ceil(log2(max(w,h))) + 1.
func Pyramid(full entity.Size) []entity.Size {
	longest := full.Width
	if full.Height > longest {
		longest = full.Height
	}
	if longest < 1 {
		longest = 1
	}
	levels := int(math.Ceil(math.Log2(float64(longest)))) + 1
	sizes := make([]entity.Size, levels)
	sizes[levels-1] = full
	for i := levels - 2; i >= 0; i-- {
		sizes[i] = entity.Size{
			Width:  halve(sizes[i+1].Width),
			Height: halve(sizes[i+1].Height),
		}
	}
	return sizes
}

// EffectiveTileSize negotiates the tile size to serve: the native tile size
// when the source is tiled and its tiles are at least minimum on both axes,
// otherwise a square tile of the configured minimum.
func EffectiveTileSize(image entity.InfoImage, minimum int) entity.Size {
	native := image.TileSize()
	if image.Tiled() && native.Width >= minimum && native.Height >= minimum {
		return native
	}
	return entity.Size{Width: minimum, Height: minimum}
}

// TileRegion maps a resolution level and tile indices onto the crop region
// within that level's scaled image. entire is true when the tile covers the
// whole scaled image, in which case no crop operation should be added.
// Returns ErrTileOutOfBounds when the tile origin lies beyond the level's
// bounds.
func TileRegion(full entity.Size, level, tileX, tileY int, tile entity.Size) (region entity.Region, entire bool, err error) {
	levels := Pyramid(full)
	if level < 0 || level >= len(levels) {
		return entity.Region{}, false, ErrTileOutOfBounds
	}
	scaled := levels[level]
	x := tileX * tile.Width
	y := tileY * tile.Height
	if tileX < 0 || tileY < 0 || x >= scaled.Width || y >= scaled.Height {
		return entity.Region{}, false, ErrTileOutOfBounds
	}
	region = entity.Region{
		X:      x,
		Y:      y,
		Width:  minInt(tile.Width, scaled.Width-x),
		Height: minInt(tile.Height, scaled.Height-y),
	}
	entire = region.X == 0 && region.Y == 0 &&
		region.Width == scaled.Width && region.Height == scaled.Height
	return region, entire, nil
}

// LevelCount returns the number of pyramid levels for a full size.
func LevelCount(full entity.Size) int {
	return len(Pyramid(full))
}

// RedactionRegion expresses a redaction (given in full-source coordinates)
// relative to a crop already in the pending operation list, honoring an
// optional scale constraint. An empty intersection yields a zero-area
// region; callers must skip drawing those.
func RedactionRegion(redaction entity.Region, sc *entity.ScaleConstraint, crop entity.Region) entity.Region {
	f := 1.0
	if sc != nil {
		f = sc.Fraction()
	}
	rx := int(math.Round(float64(redaction.X) * f))
	ry := int(math.Round(float64(redaction.Y) * f))
	rw := int(math.Round(float64(redaction.Width) * f))
	rh := int(math.Round(float64(redaction.Height) * f))

	x1 := maxInt(rx, crop.X)
	y1 := maxInt(ry, crop.Y)
	x2 := minInt(rx+rw, crop.X+crop.Width)
	y2 := minInt(ry+rh, crop.Y+crop.Height)
	if x2 <= x1 || y2 <= y1 {
		return entity.Region{}
	}
	return entity.Region{
		X:      x1 - crop.X,
		Y:      y1 - crop.Y,
		Width:  x2 - x1,
		Height: y2 - y1,
	}
}

func halve(d int) int {
	out := (d + 1) / 2
	if out < 1 {
		return 1
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
