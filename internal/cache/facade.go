package cache

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/scaleserve/scaleserve/internal/entity"
)

// Facade is the single access point to both cache tiers. Either tier may be
// nil — absence is a valid, silent configuration. A fault from a configured
// tier degrades to a miss (reads) or to serving uncached (writes); the
// response is never failed by the cache layer.
//
// Consistency: info computation is deduplicated per identifier with
// singleflight, so concurrent requests for an uncached identifier compute
// the metadata once. Variant writes are all-or-nothing in every backend, so
// concurrent writers for the same key race harmlessly to byte-identical
// content. Evictions win against in-flight writes via per-identifier
// generation counters checked at commit time.
type Facade struct {
	variant VariantCache
	info    InfoCache
	flight  singleflight.Group

	mu        sync.Mutex
	globalGen uint64
	gens      map[entity.Identifier]uint64
}

func NewFacade(variant VariantCache, info InfoCache) *Facade {
	return &Facade{
		variant: variant,
		info:    info,
		gens:    make(map[entity.Identifier]uint64),
	}
}

// VariantTier exposes the raw tier for health-check round-trips. May be nil.
func (f *Facade) VariantTier() VariantCache { return f.variant }

// InfoTier exposes the raw tier for health-check round-trips. May be nil.
func (f *Facade) InfoTier() InfoCache { return f.info }

// ResolveInfo returns the cached Info for id, computing and caching it via
// compute on a miss. Concurrent callers for the same identifier share one
// computation.
func (f *Facade) ResolveInfo(ctx context.Context, id entity.Identifier, compute func(context.Context) (*entity.Info, error)) (*entity.Info, error) {
	v, err, _ := f.flight.Do(string(id), func() (interface{}, error) {
		if f.info != nil {
			info, err := f.info.Get(ctx, id)
			if err == nil {
				return info, nil
			}
			if !errors.Is(err, entity.ErrCacheMiss) {
				logrus.WithField("identifier", string(id)).
					Warnf("info cache read failed, treating as miss: %v", err)
			}
		}
		info, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if f.info != nil {
			if err := f.info.Put(ctx, id, info); err != nil {
				logrus.WithField("identifier", string(id)).
					Warnf("info cache write failed, serving uncached: %v", err)
			}
		}
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entity.Info), nil
}

// PeekInfo returns the cached Info without computing on a miss.
func (f *Facade) PeekInfo(ctx context.Context, id entity.Identifier) (*entity.Info, error) {
	if f.info == nil {
		return nil, entity.ErrCacheMiss
	}
	info, err := f.info.Get(ctx, id)
	if err != nil && !errors.Is(err, entity.ErrCacheMiss) {
		logrus.WithField("identifier", string(id)).
			Warnf("info cache read failed, treating as miss: %v", err)
		return nil, entity.ErrCacheMiss
	}
	return info, err
}

// OpenVariant returns a read stream for the variant addressed by the frozen
// operation list, or entity.ErrCacheMiss. Backend faults degrade to a miss.
func (f *Facade) OpenVariant(ctx context.Context, ops *entity.OperationList) (io.ReadCloser, *entity.StatResult, error) {
	if f.variant == nil {
		return nil, nil, entity.ErrCacheMiss
	}
	key := KeyForOperations(ops)
	rc, stat, err := f.variant.Open(ctx, key)
	if err != nil {
		if !errors.Is(err, entity.ErrCacheMiss) {
			logrus.WithField("key", key.Hash).
				Warnf("variant cache read failed, treating as miss: %v", err)
		}
		return nil, nil, entity.ErrCacheMiss
	}
	return rc, stat, nil
}

// CreateVariant opens a cache write stream for the variant, or returns nil
// when the tier is absent or erroring — the caller then serves uncached.
// The returned writer re-checks the identifier's eviction generation at
// commit: an eviction requested while the write was in flight wins, and the
// entry is discarded instead of landing with stale content.
func (f *Facade) CreateVariant(ctx context.Context, ops *entity.OperationList) EntryWriter {
	if f.variant == nil {
		return nil
	}
	key := KeyForOperations(ops)
	gen := f.generation(key.ID)
	w, err := f.variant.Create(ctx, key)
	if err != nil {
		logrus.WithField("key", key.Hash).
			Warnf("variant cache write failed to open, serving uncached: %v", err)
		return nil
	}
	return &generationWriter{inner: w, facade: f, id: key.ID, gen: gen}
}

// EvictIdentifier removes all cached state for one identifier from both
// tiers, atomically winning over in-flight writes.
func (f *Facade) EvictIdentifier(ctx context.Context, id entity.Identifier) error {
	f.bumpGeneration(id)
	var errs []error
	if f.variant != nil {
		if err := f.variant.EvictIdentifier(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	if f.info != nil {
		if err := f.info.EvictIdentifier(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EvictAllVariants purges the variant tier.
func (f *Facade) EvictAllVariants(ctx context.Context) error {
	f.bumpGlobalGeneration()
	if f.variant == nil {
		return nil
	}
	return f.variant.EvictAll(ctx)
}

// EvictAllInfos purges the info tier.
func (f *Facade) EvictAllInfos(ctx context.Context) error {
	f.bumpGlobalGeneration()
	if f.info == nil {
		return nil
	}
	return f.info.EvictAll(ctx)
}

// EvictInvalidInfos removes info entries failing structural validation.
func (f *Facade) EvictInvalidInfos(ctx context.Context) (int, error) {
	if f.info == nil {
		return 0, nil
	}
	return f.info.EvictInvalid(ctx)
}

// generation folds the global counter in so that evict-all also invalidates
// per-identifier snapshots.
func (f *Facade) generation(id entity.Identifier) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.globalGen + f.gens[id]
}

func (f *Facade) bumpGeneration(id entity.Identifier) {
	f.mu.Lock()
	f.gens[id]++
	f.mu.Unlock()
}

func (f *Facade) bumpGlobalGeneration() {
	f.mu.Lock()
	f.globalGen++
	f.mu.Unlock()
}

// generationWriter discards the entry at commit when an eviction raced the
// write ("evict wins").
type generationWriter struct {
	inner  EntryWriter
	facade *Facade
	id     entity.Identifier
	gen    uint64
}

func (w *generationWriter) Write(p []byte) (int, error) {
	return w.inner.Write(p)
}

func (w *generationWriter) Close() error {
	if w.facade.generation(w.id) != w.gen {
		logrus.WithField("identifier", string(w.id)).
			Info("eviction raced an in-flight variant write; discarding entry")
		return w.inner.Abort()
	}
	return w.inner.Close()
}

func (w *generationWriter) Abort() error {
	return w.inner.Abort()
}
