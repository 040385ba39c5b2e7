package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleserve/scaleserve/internal/entity"
	"github.com/scaleserve/scaleserve/internal/pkg/geometry"
)

func TestParseTileName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		col     int
		row     int
		format  string
		wantErr bool
	}{
		{name: "origin tile", input: "0_0.jpg", col: 0, row: 0, format: "jpg"},
		{name: "interior tile", input: "3_7.png", col: 3, row: 7, format: "png"},
		{name: "missing extension", input: "0_0", wantErr: true},
		{name: "bad separator", input: "0-0.jpg", wantErr: true},
		{name: "negative column", input: "-1_0.jpg", wantErr: true},
		{name: "unsupported format", input: "0_0.tiff", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col, row, format, err := parseTileName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, entity.ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.col, col)
			assert.Equal(t, tt.row, row)
			assert.Equal(t, tt.format, format)
		})
	}
}

func TestDZITileCallbackBuildsOperations(t *testing.T) {
	info := entity.NewInfo(2000, 1500)
	full := entity.Size{Width: 2000, Height: 1500}
	top := geometry.LevelCount(full) - 1

	t.Run("top level interior tile", func(t *testing.T) {
		ops := entity.NewOperationList(entity.MetaIdentifier{ID: "x"})
		cb := &dziTileCallback{
			ops:         ops,
			meta:        entity.MetaIdentifier{ID: "x"},
			level:       top,
			col:         1,
			row:         1,
			format:      "jpg",
			minTileSize: 512,
		}
		require.NoError(t, cb.InfoAvailable(info))

		list := ops.Operations()
		require.Len(t, list, 2)
		crop := list[0].(entity.Crop)
		assert.Equal(t, entity.Region{X: 512, Y: 512, Width: 512, Height: 512}, crop.Region)
		assert.IsType(t, entity.Encode{}, list[1])
	})

	t.Run("lower level adds a scale", func(t *testing.T) {
		ops := entity.NewOperationList(entity.MetaIdentifier{ID: "x"})
		cb := &dziTileCallback{
			ops:         ops,
			meta:        entity.MetaIdentifier{ID: "x"},
			level:       top - 1,
			col:         0,
			row:         0,
			format:      "jpg",
			minTileSize: 512,
		}
		require.NoError(t, cb.InfoAvailable(info))

		var hasScale bool
		for _, op := range ops.Operations() {
			if scale, ok := op.(entity.Scale); ok {
				hasScale = true
				assert.Equal(t, 512, scale.Width)
			}
		}
		assert.True(t, hasScale)
	})

	t.Run("out of bounds tile is not found", func(t *testing.T) {
		ops := entity.NewOperationList(entity.MetaIdentifier{ID: "x"})
		cb := &dziTileCallback{
			ops:         ops,
			meta:        entity.MetaIdentifier{ID: "x"},
			level:       top,
			col:         99,
			row:         0,
			format:      "jpg",
			minTileSize: 512,
		}
		err := cb.InfoAvailable(info)
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})
}
