package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleserve/scaleserve/internal/entity"
)

func TestMaxReductionFactor(t *testing.T) {
	tests := []struct {
		name         string
		full         entity.Size
		minDimension int
		expected     int
	}{
		{
			name:         "large image, small minimum",
			full:         entity.Size{Width: 8848, Height: 6928},
			minDimension: 64,
			expected:     6,
		},
		{
			name:         "image already at minimum",
			full:         entity.Size{Width: 64, Height: 64},
			minDimension: 64,
			expected:     0,
		},
		{
			name:         "one halving exactly",
			full:         entity.Size{Width: 128, Height: 256},
			minDimension: 64,
			expected:     1,
		},
		{
			name:         "smaller dimension governs",
			full:         entity.Size{Width: 4096, Height: 128},
			minDimension: 64,
			expected:     1,
		},
		{
			name:         "minimum below one is clamped",
			full:         entity.Size{Width: 4, Height: 4},
			minDimension: 0,
			expected:     2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaxReductionFactor(tt.full, tt.minDimension))
		})
	}
}

func TestMinReductionFactor(t *testing.T) {
	tests := []struct {
		name      string
		full      entity.Size
		maxPixels int64
		expected  int
	}{
		{
			name:      "already small enough",
			full:      entity.Size{Width: 100, Height: 100},
			maxPixels: 10000,
			expected:  0,
		},
		{
			name:      "one halving of area",
			full:      entity.Size{Width: 200, Height: 200},
			maxPixels: 20000,
			expected:  1,
		},
		{
			name:      "several halvings",
			full:      entity.Size{Width: 8848, Height: 6928},
			maxPixels: 1000000,
			expected:  3,
		},
		{
			name:      "non-positive budget",
			full:      entity.Size{Width: 100, Height: 100},
			maxPixels: 0,
			expected:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MinReductionFactor(tt.full, tt.maxPixels)
			assert.Equal(t, tt.expected, got)
			if tt.maxPixels > 0 {
				// The factor must actually satisfy the pixel budget.
				w, h := tt.full.Width, tt.full.Height
				for i := 0; i < got; i++ {
					w, h = halve(w), halve(h)
				}
				assert.LessOrEqual(t, int64(w)*int64(h), tt.maxPixels)
			}
		})
	}
}

func TestPyramid(t *testing.T) {
	full := entity.Size{Width: 8848, Height: 6928}
	levels := Pyramid(full)

	require.Len(t, levels, 15)
	assert.Equal(t, entity.Size{Width: 1, Height: 1}, levels[0])
	assert.Equal(t, full, levels[14])

	// Each level is the ceiling of half the next.
	for i := 0; i < len(levels)-1; i++ {
		assert.Equal(t, halve(levels[i+1].Width), levels[i].Width, "level %d width", i)
		assert.Equal(t, halve(levels[i+1].Height), levels[i].Height, "level %d height", i)
	}
}

func TestPyramidSmallImages(t *testing.T) {
	tests := []struct {
		name     string
		full     entity.Size
		levels   int
		smallest entity.Size
	}{
		{
			name:     "single pixel",
			full:     entity.Size{Width: 1, Height: 1},
			levels:   1,
			smallest: entity.Size{Width: 1, Height: 1},
		},
		{
			name:     "power of two",
			full:     entity.Size{Width: 1024, Height: 1024},
			levels:   11,
			smallest: entity.Size{Width: 1, Height: 1},
		},
		{
			name:     "one above a power of two",
			full:     entity.Size{Width: 1025, Height: 1024},
			levels:   12,
			smallest: entity.Size{Width: 1, Height: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			levels := Pyramid(tt.full)
			require.Len(t, levels, tt.levels)
			assert.Equal(t, tt.smallest, levels[0])
			assert.Equal(t, tt.full, levels[len(levels)-1])
		})
	}
}

func TestEffectiveTileSize(t *testing.T) {
	tests := []struct {
		name     string
		image    entity.InfoImage
		minimum  int
		expected entity.Size
	}{
		{
			name:     "untiled source uses square minimum",
			image:    entity.InfoImage{Width: 4000, Height: 3000},
			minimum:  512,
			expected: entity.Size{Width: 512, Height: 512},
		},
		{
			name:     "native tiles above minimum are kept",
			image:    entity.InfoImage{Width: 4000, Height: 3000, TileWidth: 1024, TileHeight: 1024},
			minimum:  512,
			expected: entity.Size{Width: 1024, Height: 1024},
		},
		{
			name:     "native tiles below minimum are replaced",
			image:    entity.InfoImage{Width: 4000, Height: 3000, TileWidth: 256, TileHeight: 256},
			minimum:  512,
			expected: entity.Size{Width: 512, Height: 512},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EffectiveTileSize(tt.image, tt.minimum))
		})
	}
}

func TestTileRegion(t *testing.T) {
	full := entity.Size{Width: 2000, Height: 1500}
	tile := entity.Size{Width: 512, Height: 512}
	top := LevelCount(full) - 1

	t.Run("interior tile", func(t *testing.T) {
		region, entire, err := TileRegion(full, top, 1, 1, tile)
		require.NoError(t, err)
		assert.False(t, entire)
		assert.Equal(t, entity.Region{X: 512, Y: 512, Width: 512, Height: 512}, region)
	})

	t.Run("edge tile is clipped", func(t *testing.T) {
		region, entire, err := TileRegion(full, top, 3, 2, tile)
		require.NoError(t, err)
		assert.False(t, entire)
		assert.Equal(t, entity.Region{X: 1536, Y: 1024, Width: 464, Height: 476}, region)
	})

	t.Run("whole image at a low level", func(t *testing.T) {
		// Level sizes shrink by halving; find one fully covered by a tile.
		levels := Pyramid(full)
		var level int
		for i, s := range levels {
			if s.Width <= tile.Width && s.Height <= tile.Height {
				level = i
			}
		}
		region, entire, err := TileRegion(full, level, 0, 0, tile)
		require.NoError(t, err)
		assert.True(t, entire)
		assert.Equal(t, 0, region.X)
		assert.Equal(t, 0, region.Y)
	})

	t.Run("origin outside bounds", func(t *testing.T) {
		_, _, err := TileRegion(full, top, 4, 0, tile)
		assert.ErrorIs(t, err, ErrTileOutOfBounds)
	})

	t.Run("negative indices", func(t *testing.T) {
		_, _, err := TileRegion(full, top, -1, 0, tile)
		assert.ErrorIs(t, err, ErrTileOutOfBounds)
	})

	t.Run("level out of range", func(t *testing.T) {
		_, _, err := TileRegion(full, top+1, 0, 0, tile)
		assert.ErrorIs(t, err, ErrTileOutOfBounds)
	})
}

func TestRedactionRegion(t *testing.T) {
	tests := []struct {
		name      string
		redaction entity.Region
		scale     *entity.ScaleConstraint
		crop      entity.Region
		expected  entity.Region
	}{
		{
			name:      "disjoint redaction yields zero area",
			redaction: entity.Region{X: 50, Y: 60, Width: 200, Height: 100},
			crop:      entity.Region{X: 300, Y: 300, Width: 100, Height: 100},
			expected:  entity.Region{},
		},
		{
			name:      "overlap is re-expressed in crop coordinates",
			redaction: entity.Region{X: 50, Y: 60, Width: 200, Height: 100},
			crop:      entity.Region{X: 100, Y: 100, Width: 400, Height: 400},
			expected:  entity.Region{X: 0, Y: 0, Width: 150, Height: 60},
		},
		{
			name:      "redaction inside crop keeps its size",
			redaction: entity.Region{X: 150, Y: 150, Width: 50, Height: 50},
			crop:      entity.Region{X: 100, Y: 100, Width: 400, Height: 400},
			expected:  entity.Region{X: 50, Y: 50, Width: 50, Height: 50},
		},
		{
			name:      "scale constraint shrinks the redaction first",
			redaction: entity.Region{X: 100, Y: 100, Width: 200, Height: 200},
			scale:     &entity.ScaleConstraint{Numerator: 1, Denominator: 2},
			crop:      entity.Region{X: 0, Y: 0, Width: 400, Height: 400},
			expected:  entity.Region{X: 50, Y: 50, Width: 100, Height: 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RedactionRegion(tt.redaction, tt.scale, tt.crop)
			assert.Equal(t, tt.expected, got)
			if tt.expected.Empty() {
				assert.True(t, got.Empty())
			}
		})
	}
}
