package processor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleserve/scaleserve/internal/entity"
)

func encodeTestImage(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func runPipeline(t *testing.T, src []byte, build func(*entity.OperationList)) image.Image {
	t.Helper()
	ops := entity.NewOperationList(entity.MetaIdentifier{ID: "test.jpg"})
	build(ops)
	ops.Freeze()

	p := NewImagingProcessor(80)
	var out bytes.Buffer
	info := entity.NewInfo(0, 0)
	require.NoError(t, p.Process(context.Background(), bytes.NewReader(src), ops, info, &out))

	decoded, _, err := image.Decode(&out)
	require.NoError(t, err)
	return decoded
}

func TestProcessCrop(t *testing.T) {
	src := encodeTestImage(t, 200, 100)
	got := runPipeline(t, src, func(ops *entity.OperationList) {
		ops.Add(entity.Crop{Region: entity.Region{X: 10, Y: 20, Width: 50, Height: 40}})
		ops.Add(entity.Encode{Format: "jpg"})
	})
	assert.Equal(t, 50, got.Bounds().Dx())
	assert.Equal(t, 40, got.Bounds().Dy())
}

func TestProcessScale(t *testing.T) {
	src := encodeTestImage(t, 400, 200)

	t.Run("explicit dimensions", func(t *testing.T) {
		got := runPipeline(t, src, func(ops *entity.OperationList) {
			ops.Add(entity.Scale{Width: 100, Height: 50})
			ops.Add(entity.Encode{Format: "jpg"})
		})
		assert.Equal(t, 100, got.Bounds().Dx())
		assert.Equal(t, 50, got.Bounds().Dy())
	})

	t.Run("width only preserves aspect", func(t *testing.T) {
		got := runPipeline(t, src, func(ops *entity.OperationList) {
			ops.Add(entity.Scale{Width: 200})
			ops.Add(entity.Encode{Format: "jpg"})
		})
		assert.Equal(t, 200, got.Bounds().Dx())
		assert.Equal(t, 100, got.Bounds().Dy())
	})

	t.Run("percent", func(t *testing.T) {
		got := runPipeline(t, src, func(ops *entity.OperationList) {
			ops.Add(entity.Scale{Percent: 0.5})
			ops.Add(entity.Encode{Format: "jpg"})
		})
		assert.Equal(t, 200, got.Bounds().Dx())
		assert.Equal(t, 100, got.Bounds().Dy())
	})
}

func TestProcessRotate(t *testing.T) {
	src := encodeTestImage(t, 300, 100)

	t.Run("quarter turn swaps dimensions", func(t *testing.T) {
		got := runPipeline(t, src, func(ops *entity.OperationList) {
			ops.Add(entity.Rotate{Degrees: 90})
			ops.Add(entity.Encode{Format: "png"})
		})
		assert.Equal(t, 100, got.Bounds().Dx())
		assert.Equal(t, 300, got.Bounds().Dy())
	})

	t.Run("half turn keeps dimensions", func(t *testing.T) {
		got := runPipeline(t, src, func(ops *entity.OperationList) {
			ops.Add(entity.Rotate{Degrees: 180})
			ops.Add(entity.Encode{Format: "png"})
		})
		assert.Equal(t, 300, got.Bounds().Dx())
		assert.Equal(t, 100, got.Bounds().Dy())
	})
}

func TestProcessFilters(t *testing.T) {
	src := encodeTestImage(t, 50, 50)

	t.Run("grayscale", func(t *testing.T) {
		got := runPipeline(t, src, func(ops *entity.OperationList) {
			ops.Add(entity.FilterGray)
			ops.Add(entity.Encode{Format: "png"})
		})
		r, g, b, _ := got.At(25, 25).RGBA()
		assert.Equal(t, r, g)
		assert.Equal(t, g, b)
	})

	t.Run("bitonal produces black or white", func(t *testing.T) {
		got := runPipeline(t, src, func(ops *entity.OperationList) {
			ops.Add(entity.FilterBitonal)
			ops.Add(entity.Encode{Format: "png"})
		})
		r, _, _, _ := got.At(10, 10).RGBA()
		assert.True(t, r == 0 || r == 0xffff, "pixel must be pure black or white, got %d", r)
	})
}

func TestProcessRedaction(t *testing.T) {
	src := encodeTestImage(t, 100, 100)
	got := runPipeline(t, src, func(ops *entity.OperationList) {
		ops.Add(entity.Redact{Region: entity.Region{X: 0, Y: 0, Width: 50, Height: 50}, Opacity: 1})
		ops.Add(entity.Encode{Format: "png"})
	})
	r, g, b, _ := got.At(10, 10).RGBA()
	assert.Zero(t, r)
	assert.Zero(t, g)
	assert.Zero(t, b)
}

func TestProcessRedactionsWithoutEffectAreSkipped(t *testing.T) {
	src := encodeTestImage(t, 100, 100)
	plain := runPipeline(t, src, func(ops *entity.OperationList) {
		ops.Add(entity.Encode{Format: "png"})
	})

	t.Run("zero area", func(t *testing.T) {
		redacted := runPipeline(t, src, func(ops *entity.OperationList) {
			ops.Add(entity.Redact{Region: entity.Region{}, Opacity: 1})
			ops.Add(entity.Encode{Format: "png"})
		})
		assert.Equal(t, plain.At(10, 10), redacted.At(10, 10))
	})

	t.Run("zero opacity", func(t *testing.T) {
		redacted := runPipeline(t, src, func(ops *entity.OperationList) {
			ops.Add(entity.Redact{Region: entity.Region{X: 0, Y: 0, Width: 50, Height: 50}})
			ops.Add(entity.Encode{Format: "png"})
		})
		assert.Equal(t, plain.At(10, 10), redacted.At(10, 10))
	})
}

func TestProcessUnsupportedFormat(t *testing.T) {
	src := encodeTestImage(t, 10, 10)
	ops := entity.NewOperationList(entity.MetaIdentifier{ID: "x"})
	ops.Add(entity.Encode{Format: "webm"})
	ops.Freeze()

	p := NewImagingProcessor(80)
	err := p.Process(context.Background(), bytes.NewReader(src), ops, entity.NewInfo(10, 10), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestReadInfo(t *testing.T) {
	src := encodeTestImage(t, 640, 480)
	info, err := ReadInfo(bytes.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, entity.Size{Width: 640, Height: 480}, info.Size(1))
	assert.Equal(t, "image/jpeg", info.MediaType)
	assert.True(t, info.Valid())
}

func TestReadInfoGarbage(t *testing.T) {
	_, err := ReadInfo(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}
