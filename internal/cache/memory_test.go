package cache

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleserve/scaleserve/internal/entity"
)

func TestMemoryVariantCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryVariantCache()
	key := Key{ID: "cats/cat.jpg", Hash: "abc123"}

	_, _, err := c.Open(ctx, key)
	assert.ErrorIs(t, err, entity.ErrCacheMiss)

	w, err := c.Create(ctx, key)
	require.NoError(t, err)
	_, err = w.Write([]byte("variant bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, stat, err := c.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	r.Close()
	assert.Equal(t, "variant bytes", string(data))
	require.NotNil(t, stat.Size)
	assert.Equal(t, int64(len("variant bytes")), *stat.Size)

	st, err := c.Stat(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(len("variant bytes")), *st.Size)
}

func TestMemoryVariantCacheAbortDiscardsEntry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryVariantCache()
	key := Key{ID: "x", Hash: "h"}

	w, err := c.Create(ctx, key)
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	_, _, err = c.Open(ctx, key)
	assert.ErrorIs(t, err, entity.ErrCacheMiss)
}

func TestMemoryVariantCacheEviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryVariantCache()

	put := func(key Key) {
		w, err := c.Create(ctx, key)
		require.NoError(t, err)
		_, err = w.Write([]byte("x"))
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}
	put(Key{ID: "a", Hash: "1"})
	put(Key{ID: "a", Hash: "2"})
	put(Key{ID: "b", Hash: "1"})

	require.NoError(t, c.EvictIdentifier(ctx, "a"))
	_, _, err := c.Open(ctx, Key{ID: "a", Hash: "1"})
	assert.ErrorIs(t, err, entity.ErrCacheMiss)
	_, _, err = c.Open(ctx, Key{ID: "a", Hash: "2"})
	assert.ErrorIs(t, err, entity.ErrCacheMiss)
	_, _, err = c.Open(ctx, Key{ID: "b", Hash: "1"})
	assert.NoError(t, err)

	require.NoError(t, c.EvictAll(ctx))
	_, _, err = c.Open(ctx, Key{ID: "b", Hash: "1"})
	assert.ErrorIs(t, err, entity.ErrCacheMiss)
}

func TestMemoryInfoCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryInfoCache()
	id := entity.Identifier("cats/cat.jpg")

	_, err := c.Get(ctx, id)
	assert.ErrorIs(t, err, entity.ErrCacheMiss)

	require.NoError(t, c.Put(ctx, id, entity.NewInfo(800, 600)))
	info, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.Size{Width: 800, Height: 600}, info.Size(1))

	require.NoError(t, c.EvictIdentifier(ctx, id))
	_, err = c.Get(ctx, id)
	assert.ErrorIs(t, err, entity.ErrCacheMiss)
}

func TestMemoryInfoCacheEvictInvalid(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryInfoCache()

	require.NoError(t, c.Put(ctx, "good", entity.NewInfo(100, 100)))
	require.NoError(t, c.Put(ctx, "bad", &entity.Info{}))
	require.NoError(t, c.Put(ctx, "zero", entity.NewInfo(0, 100)))

	evicted, err := c.EvictInvalid(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, evicted)

	_, err = c.Get(ctx, "good")
	assert.NoError(t, err)
	_, err = c.Get(ctx, "bad")
	assert.ErrorIs(t, err, entity.ErrCacheMiss)
}

func TestKeyForOperations(t *testing.T) {
	ops := entity.NewOperationList(entity.MetaIdentifier{ID: "cats/cat.jpg"})
	ops.Add(entity.Scale{Width: 100})
	ops.Freeze()

	key := KeyForOperations(ops)
	assert.Equal(t, entity.Identifier("cats/cat.jpg"), key.ID)
	assert.Len(t, key.Hash, 64)

	same := entity.NewOperationList(entity.MetaIdentifier{ID: "cats/cat.jpg"})
	same.Add(entity.Scale{Width: 100})
	same.Freeze()
	assert.Equal(t, key, KeyForOperations(same))

	other := entity.NewOperationList(entity.MetaIdentifier{ID: "cats/cat.jpg"})
	other.Add(entity.Scale{Width: 101})
	other.Freeze()
	assert.NotEqual(t, key.Hash, KeyForOperations(other).Hash)
}
