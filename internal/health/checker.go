// Package health probes the subsystems a running server depends on and
// folds the results into one monotonic Health value.
package health

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scaleserve/scaleserve/internal/async"
	"github.com/scaleserve/scaleserve/internal/cache"
	"github.com/scaleserve/scaleserve/internal/entity"
	"github.com/scaleserve/scaleserve/internal/source"
)

// Checker runs three probe groups: source access, variant cache round-trip
// and info cache round-trip. All groups report into one shared accumulator
// whose color only worsens.
type Checker struct {
	usage   *source.Usage
	facade  *cache.Facade
	pool    *async.Pool
	timeout time.Duration

	mu       sync.Mutex
	override *entity.Health
}

func NewChecker(usage *source.Usage, facade *cache.Facade, pool *async.Pool, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Checker{usage: usage, facade: facade, pool: pool, timeout: timeout}
}

// SetOverride forces a fixed result, bypassing all probing. A nil override
// restores normal probing.
func (c *Checker) SetOverride(h *entity.Health) {
	c.mu.Lock()
	c.override = h
	c.mu.Unlock()
}

func (c *Checker) overridden() *entity.Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.override
}

// CheckSerial runs the probe groups in declared order, skipping the rest
// once health has reached RED.
func (c *Checker) CheckSerial(ctx context.Context) *entity.Health {
	if h := c.overridden(); h != nil {
		return h
	}
	h := entity.NewHealth()
	for _, group := range c.groups() {
		if h.Color() == entity.HealthRed {
			break
		}
		group(ctx, h)
	}
	return h
}

// CheckConcurrent runs all probe groups in parallel on the probe pool and
// waits at most the configured timeout; on expiry it returns whatever has
// accumulated so far, downgraded to at least YELLOW.
func (c *Checker) CheckConcurrent(ctx context.Context) *entity.Health {
	if h := c.overridden(); h != nil {
		return h
	}
	h := entity.NewHealth()
	var wg sync.WaitGroup
	for _, group := range c.groups() {
		group := group
		wg.Add(1)
		c.pool.Submit(func() {
			defer wg.Done()
			group(ctx, h)
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.timeout):
		h.Downgrade(entity.HealthYellow, fmt.Sprintf("health check timed out after %s", c.timeout))
	}
	return h
}

func (c *Checker) groups() []func(context.Context, *entity.Health) {
	return []func(context.Context, *entity.Health){
		c.checkSources,
		c.checkVariantCache,
		c.checkInfoCache,
	}
}

// checkSources probes each distinct source implementation used since
// startup.
func (c *Checker) checkSources(ctx context.Context, h *entity.Health) {
	for _, src := range c.usage.Sources() {
		if _, err := src.Stat(ctx); err != nil {
			h.Downgrade(entity.HealthRed, fmt.Sprintf("%s: %v", src.Name(), err))
			return
		}
	}
}

// checkVariantCache writes, reads back and deletes a throwaway entry.
func (c *Checker) checkVariantCache(ctx context.Context, h *entity.Health) {
	tier := c.facade.VariantTier()
	if tier == nil {
		return
	}
	id := entity.Identifier("health-" + uuid.NewString())
	key := cache.Key{ID: id, Hash: "healthcheck"}
	payload := []byte("scaleserve health check")

	fail := func(stage string, err error) {
		logrus.Warnf("variant cache health check %s failed: %v", stage, err)
		h.Downgrade(entity.HealthRed, fmt.Sprintf("variant cache: %s: %v", stage, err))
	}

	w, err := tier.Create(ctx, key)
	if err != nil {
		fail("create", err)
		return
	}
	if _, err := w.Write(payload); err != nil {
		w.Abort()
		fail("write", err)
		return
	}
	if err := w.Close(); err != nil {
		fail("commit", err)
		return
	}
	r, _, err := tier.Open(ctx, key)
	if err != nil {
		fail("read", err)
		return
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		fail("read", err)
		return
	}
	if !bytes.Equal(data, payload) {
		fail("verify", fmt.Errorf("read %d bytes, wrote %d", len(data), len(payload)))
		return
	}
	if err := tier.EvictIdentifier(ctx, id); err != nil {
		fail("evict", err)
	}
}

// checkInfoCache round-trips a throwaway Info.
func (c *Checker) checkInfoCache(ctx context.Context, h *entity.Health) {
	tier := c.facade.InfoTier()
	if tier == nil {
		return
	}
	id := entity.Identifier("health-" + uuid.NewString())

	fail := func(stage string, err error) {
		logrus.Warnf("info cache health check %s failed: %v", stage, err)
		h.Downgrade(entity.HealthRed, fmt.Sprintf("info cache: %s: %v", stage, err))
	}

	info := entity.NewInfo(64, 48)
	if err := tier.Put(ctx, id, info); err != nil {
		fail("put", err)
		return
	}
	got, err := tier.Get(ctx, id)
	if err != nil {
		fail("get", err)
		return
	}
	if size := got.Size(1); size.Width != 64 || size.Height != 48 {
		fail("verify", fmt.Errorf("round-tripped size %s, want 64x48", size))
		return
	}
	if err := tier.EvictIdentifier(ctx, id); err != nil {
		fail("evict", err)
	}
}
