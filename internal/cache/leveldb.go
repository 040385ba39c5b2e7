package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/scaleserve/scaleserve/internal/entity"
)

// LevelDB keys share one keyspace: "variant/<hex id>/<hash>" and
// "info/<hex id>". Hex-encoding the identifier keeps the "/" separators
// unambiguous for prefix iteration.
func levelVariantKey(key Key) []byte {
	return []byte(fmt.Sprintf("variant/%x/%s", string(key.ID), key.Hash))
}

func levelVariantPrefix(id entity.Identifier) []byte {
	return []byte(fmt.Sprintf("variant/%x/", string(id)))
}

func levelInfoKey(id entity.Identifier) []byte {
	return []byte(fmt.Sprintf("info/%x", string(id)))
}

// LevelDBVariantCache is an embedded persistent variant cache needing no
// external service.
type LevelDBVariantCache struct {
	db *leveldb.DB
}

func NewLevelDBVariantCache(db *leveldb.DB) *LevelDBVariantCache {
	return &LevelDBVariantCache{db: db}
}

var (
	levelMu  sync.Mutex
	levelDBs = map[string]*leveldb.DB{}
)

// OpenLevelDB opens (or creates) the embedded database at path. Handles are
// shared per path so both tiers can live in one database.
func OpenLevelDB(path string) (*leveldb.DB, error) {
	levelMu.Lock()
	defer levelMu.Unlock()
	if db, ok := levelDBs[path]; ok {
		return db, nil
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("opening leveldb cache at %s: %w", path, err)
	}
	levelDBs[path] = db
	return db, nil
}

func (c *LevelDBVariantCache) Open(ctx context.Context, key Key) (io.ReadCloser, *entity.StatResult, error) {
	data, err := c.db.Get(levelVariantKey(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil, entity.ErrCacheMiss
	}
	if err != nil {
		return nil, nil, err
	}
	size := int64(len(data))
	return io.NopCloser(bytes.NewReader(data)), &entity.StatResult{Size: &size}, nil
}

func (c *LevelDBVariantCache) Create(ctx context.Context, key Key) (EntryWriter, error) {
	return newBufferWriter(func(data []byte) error {
		return c.db.Put(levelVariantKey(key), data, nil)
	}), nil
}

func (c *LevelDBVariantCache) Stat(ctx context.Context, key Key) (*entity.StatResult, error) {
	data, err := c.db.Get(levelVariantKey(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, entity.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	size := int64(len(data))
	return &entity.StatResult{Size: &size}, nil
}

func (c *LevelDBVariantCache) EvictIdentifier(ctx context.Context, id entity.Identifier) error {
	return c.evictPrefix(levelVariantPrefix(id))
}

func (c *LevelDBVariantCache) EvictAll(ctx context.Context) error {
	return c.evictPrefix([]byte("variant/"))
}

func (c *LevelDBVariantCache) evictPrefix(prefix []byte) error {
	iter := c.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return c.db.Write(batch, nil)
}

// LevelDBInfoCache is the embedded info tier, usually sharing the database
// with the variant tier.
type LevelDBInfoCache struct {
	db *leveldb.DB
}

func NewLevelDBInfoCache(db *leveldb.DB) *LevelDBInfoCache {
	return &LevelDBInfoCache{db: db}
}

func (c *LevelDBInfoCache) Put(ctx context.Context, id entity.Identifier, info *entity.Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return c.db.Put(levelInfoKey(id), data, nil)
}

func (c *LevelDBInfoCache) Get(ctx context.Context, id entity.Identifier) (*entity.Info, error) {
	data, err := c.db.Get(levelInfoKey(id), nil)
	if err == leveldb.ErrNotFound {
		return nil, entity.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var info entity.Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *LevelDBInfoCache) EvictIdentifier(ctx context.Context, id entity.Identifier) error {
	return c.db.Delete(levelInfoKey(id), nil)
}

func (c *LevelDBInfoCache) EvictAll(ctx context.Context) error {
	iter := c.db.NewIterator(util.BytesPrefix([]byte("info/")), nil)
	defer iter.Release()
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return c.db.Write(batch, nil)
}

func (c *LevelDBInfoCache) EvictInvalid(ctx context.Context) (int, error) {
	iter := c.db.NewIterator(util.BytesPrefix([]byte("info/")), nil)
	defer iter.Release()
	batch := new(leveldb.Batch)
	evicted := 0
	for iter.Next() {
		var info entity.Info
		if err := json.Unmarshal(iter.Value(), &info); err == nil && info.Valid() {
			continue
		}
		batch.Delete(append([]byte(nil), iter.Key()...))
		evicted++
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	return evicted, c.db.Write(batch, nil)
}
