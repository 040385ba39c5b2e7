package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/scaleserve/scaleserve/internal/entity"
)

// MemoryVariantCache is an in-process variant cache. Entries live until
// evicted; it is meant for small deployments and tests.
type MemoryVariantCache struct {
	mu       sync.RWMutex
	variants map[string]memoryEntry
}

type memoryEntry struct {
	data     []byte
	modified time.Time
}

func NewMemoryVariantCache() *MemoryVariantCache {
	return &MemoryVariantCache{variants: make(map[string]memoryEntry)}
}

// The NUL byte cannot occur in a hex hash, so the composite key prefix is
// unambiguous for per-identifier eviction.
func memoryKey(key Key) string {
	return string(key.ID) + "\x00" + key.Hash
}

func (c *MemoryVariantCache) Open(ctx context.Context, key Key) (io.ReadCloser, *entity.StatResult, error) {
	c.mu.RLock()
	entry, ok := c.variants[memoryKey(key)]
	c.mu.RUnlock()
	if !ok {
		return nil, nil, entity.ErrCacheMiss
	}
	return io.NopCloser(bytes.NewReader(entry.data)),
		entity.NewStatResult(entry.modified, int64(len(entry.data))), nil
}

func (c *MemoryVariantCache) Create(ctx context.Context, key Key) (EntryWriter, error) {
	return newBufferWriter(func(data []byte) error {
		c.mu.Lock()
		c.variants[memoryKey(key)] = memoryEntry{data: data, modified: time.Now()}
		c.mu.Unlock()
		return nil
	}), nil
}

func (c *MemoryVariantCache) Stat(ctx context.Context, key Key) (*entity.StatResult, error) {
	c.mu.RLock()
	entry, ok := c.variants[memoryKey(key)]
	c.mu.RUnlock()
	if !ok {
		return nil, entity.ErrCacheMiss
	}
	return entity.NewStatResult(entry.modified, int64(len(entry.data))), nil
}

func (c *MemoryVariantCache) EvictIdentifier(ctx context.Context, id entity.Identifier) error {
	prefix := string(id) + "\x00"
	c.mu.Lock()
	for k := range c.variants {
		if strings.HasPrefix(k, prefix) {
			delete(c.variants, k)
		}
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryVariantCache) EvictAll(ctx context.Context) error {
	c.mu.Lock()
	c.variants = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}

// MemoryInfoCache is the in-process info tier.
type MemoryInfoCache struct {
	mu    sync.RWMutex
	infos map[entity.Identifier][]byte
}

func NewMemoryInfoCache() *MemoryInfoCache {
	return &MemoryInfoCache{infos: make(map[entity.Identifier][]byte)}
}

func (c *MemoryInfoCache) Put(ctx context.Context, id entity.Identifier, info *entity.Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.infos[id] = data
	c.mu.Unlock()
	return nil
}

func (c *MemoryInfoCache) Get(ctx context.Context, id entity.Identifier) (*entity.Info, error) {
	c.mu.RLock()
	data, ok := c.infos[id]
	c.mu.RUnlock()
	if !ok {
		return nil, entity.ErrCacheMiss
	}
	var info entity.Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *MemoryInfoCache) EvictIdentifier(ctx context.Context, id entity.Identifier) error {
	c.mu.Lock()
	delete(c.infos, id)
	c.mu.Unlock()
	return nil
}

func (c *MemoryInfoCache) EvictAll(ctx context.Context) error {
	c.mu.Lock()
	c.infos = make(map[entity.Identifier][]byte)
	c.mu.Unlock()
	return nil
}

func (c *MemoryInfoCache) EvictInvalid(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for id, data := range c.infos {
		var info entity.Info
		if err := json.Unmarshal(data, &info); err != nil || !info.Valid() {
			delete(c.infos, id)
			evicted++
		}
	}
	return evicted, nil
}
