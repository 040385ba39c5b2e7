// Two-tier cache: a binary derivative ("variant") cache keyed by frozen
// operation lists, and a structural-metadata ("info") cache keyed by
// identifier. Either tier may be absent. All access goes through the Facade.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"

	"github.com/scaleserve/scaleserve/internal/entity"
)

// Key addresses one variant cache entry. Hash is a filename/key-safe digest
// of the canonical operation list serialization; ID is kept alongside so
// that backends can evict all variants of an identifier.
type Key struct {
	ID   entity.Identifier
	Hash string
}

// KeyForOperations derives the cache key of a frozen operation list.
func KeyForOperations(ops *entity.OperationList) Key {
	sum := sha256.Sum256([]byte(ops.CacheKey()))
	return Key{
		ID:   ops.Identifier(),
		Hash: hex.EncodeToString(sum[:]),
	}
}

// EntryWriter is an open variant-cache write stream. Close commits the
// entry; Abort discards it. A partial write must never become readable.
type EntryWriter interface {
	io.Writer
	Close() error
	Abort() error
}

// VariantCache stores encoded derivative images as opaque byte streams.
type VariantCache interface {
	// Open returns a read stream for the entry, or entity.ErrCacheMiss.
	Open(ctx context.Context, key Key) (io.ReadCloser, *entity.StatResult, error)
	// Create opens a write stream for a new entry.
	Create(ctx context.Context, key Key) (EntryWriter, error)
	// Stat probes the entry without reading it, or entity.ErrCacheMiss.
	Stat(ctx context.Context, key Key) (*entity.StatResult, error)
	// EvictIdentifier removes all variants of the identifier.
	EvictIdentifier(ctx context.Context, id entity.Identifier) error
	// EvictAll removes every variant.
	EvictAll(ctx context.Context) error
}

// InfoCache stores serialized structural metadata keyed by identifier.
type InfoCache interface {
	Put(ctx context.Context, id entity.Identifier, info *entity.Info) error
	// Get returns the cached info, or entity.ErrCacheMiss.
	Get(ctx context.Context, id entity.Identifier) (*entity.Info, error)
	EvictIdentifier(ctx context.Context, id entity.Identifier) error
	EvictAll(ctx context.Context) error
	// EvictInvalid removes entries failing structural validation and
	// returns how many were removed.
	EvictInvalid(ctx context.Context) (int, error)
}

// bufferWriter accumulates the entry in memory and commits it in one shot
// on Close. Backends without native streaming writes (memory, redis,
// leveldb, postgres) build on it; the all-or-nothing commit is what keeps a
// client disconnect from leaving a truncated entry.
type bufferWriter struct {
	buf    bytes.Buffer
	commit func([]byte) error
	done   bool
}

func newBufferWriter(commit func([]byte) error) *bufferWriter {
	return &bufferWriter{commit: commit}
}

func (w *bufferWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *bufferWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	return w.commit(w.buf.Bytes())
}

func (w *bufferWriter) Abort() error {
	w.done = true
	w.buf.Reset()
	return nil
}

func marshalInfo(info *entity.Info) ([]byte, error) {
	return json.Marshal(info)
}

func unmarshalInfo(data []byte) (*entity.Info, error) {
	var info entity.Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
