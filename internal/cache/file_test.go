package cache

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleserve/scaleserve/internal/entity"
)

func TestFileVariantCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileVariantCache(t.TempDir())
	require.NoError(t, err)
	key := Key{ID: "scans/page one.tif", Hash: "deadbeef"}

	_, _, err = c.Open(ctx, key)
	assert.ErrorIs(t, err, entity.ErrCacheMiss)

	w, err := c.Create(ctx, key)
	require.NoError(t, err)
	_, err = w.Write([]byte("encoded tile"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, stat, err := c.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	r.Close()
	assert.Equal(t, "encoded tile", string(data))
	require.NotNil(t, stat.Size)
	assert.Equal(t, int64(len("encoded tile")), *stat.Size)
	assert.NotNil(t, stat.LastModified)
}

func TestFileVariantCacheAbortLeavesNoEntry(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileVariantCache(t.TempDir())
	require.NoError(t, err)
	key := Key{ID: "a", Hash: "h"}

	w, err := c.Create(ctx, key)
	require.NoError(t, err)
	_, err = w.Write([]byte("truncated"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	// Neither the entry nor a temp file must be readable.
	_, _, err = c.Open(ctx, key)
	assert.ErrorIs(t, err, entity.ErrCacheMiss)
	_, err = c.Stat(ctx, key)
	assert.ErrorIs(t, err, entity.ErrCacheMiss)
}

func TestFileVariantCacheEviction(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileVariantCache(t.TempDir())
	require.NoError(t, err)

	put := func(key Key) {
		w, err := c.Create(ctx, key)
		require.NoError(t, err)
		_, err = w.Write([]byte("x"))
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}
	put(Key{ID: "a", Hash: "1"})
	put(Key{ID: "b", Hash: "1"})

	require.NoError(t, c.EvictIdentifier(ctx, "a"))
	_, _, err = c.Open(ctx, Key{ID: "a", Hash: "1"})
	assert.ErrorIs(t, err, entity.ErrCacheMiss)
	_, _, err = c.Open(ctx, Key{ID: "b", Hash: "1"})
	assert.NoError(t, err)

	require.NoError(t, c.EvictAll(ctx))
	_, _, err = c.Open(ctx, Key{ID: "b", Hash: "1"})
	assert.ErrorIs(t, err, entity.ErrCacheMiss)
}

func TestFileInfoCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileInfoCache(t.TempDir())
	require.NoError(t, err)
	id := entity.Identifier("scans/page one.tif")

	_, err = c.Get(ctx, id)
	assert.ErrorIs(t, err, entity.ErrCacheMiss)

	require.NoError(t, c.Put(ctx, id, entity.NewInfo(1200, 900)))
	info, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.Size{Width: 1200, Height: 900}, info.Size(1))

	require.NoError(t, c.EvictAll(ctx))
	_, err = c.Get(ctx, id)
	assert.ErrorIs(t, err, entity.ErrCacheMiss)
}

func TestFileInfoCacheEvictInvalid(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileInfoCache(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, c.Put(ctx, "good", entity.NewInfo(10, 10)))
	require.NoError(t, c.Put(ctx, "bad", &entity.Info{}))

	evicted, err := c.EvictInvalid(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)

	_, err = c.Get(ctx, "good")
	assert.NoError(t, err)
	_, err = c.Get(ctx, "bad")
	assert.ErrorIs(t, err, entity.ErrCacheMiss)
}
