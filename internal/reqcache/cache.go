package reqcache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache deduplicates concurrent calls sharing a key. While a call for a key
// is in flight, further callers with that key wait for the same result
// instead of issuing their own. The entry is dropped once the call settles.
type Cache[T any] struct {
	group singleflight.Group

	mu         sync.RWMutex
	onSuccess  []func(T)
	onError    []func(error)
	onComplete []func()
	onShared   []func(key string)
	pending    map[string]struct{}
}

// New creates an empty cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{pending: make(map[string]struct{})}
}

// OnSuccess registers a hook run once for every successful resolution.
func (c *Cache[T]) OnSuccess(fn func(T)) {
	c.mu.Lock()
	c.onSuccess = append(c.onSuccess, fn)
	c.mu.Unlock()
}

// OnError registers a hook run once for every failed resolution.
func (c *Cache[T]) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = append(c.onError, fn)
	c.mu.Unlock()
}

// OnComplete registers a hook run once after every resolution.
func (c *Cache[T]) OnComplete(fn func()) {
	c.mu.Lock()
	c.onComplete = append(c.onComplete, fn)
	c.mu.Unlock()
}

// OnShared registers a hook run each time a caller joins an in-flight call.
func (c *Cache[T]) OnShared(fn func(key string)) {
	c.mu.Lock()
	c.onShared = append(c.onShared, fn)
	c.mu.Unlock()
}

// Run executes call under key. An empty key is never deduplicated. The call
// runs detached from ctx cancellation so that one caller giving up does not
// fail the others; a cancelled caller returns ctx.Err() while the call keeps
// going.
func (c *Cache[T]) Run(ctx context.Context, key string, call func(context.Context) (T, error)) (T, error) {
	if key == "" {
		return c.settle(call(ctx))
	}

	if c.InFlight(key) {
		c.shared(key)
	}
	ch := c.group.DoChan(key, func() (any, error) {
		c.mu.Lock()
		c.pending[key] = struct{}{}
		c.mu.Unlock()
		v, err := call(context.WithoutCancel(ctx))
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
		return c.settle(v, err)
	})

	select {
	case res := <-ch:
		v, _ := res.Val.(T)
		return v, res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// InFlight reports whether a call for key is pending.
func (c *Cache[T]) InFlight(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.pending[key]
	return ok
}

func (c *Cache[T]) settle(v T, err error) (T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err != nil {
		for _, fn := range c.onError {
			fn(err)
		}
	} else {
		for _, fn := range c.onSuccess {
			fn(v)
		}
	}
	for _, fn := range c.onComplete {
		fn()
	}
	return v, err
}

func (c *Cache[T]) shared(key string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, fn := range c.onShared {
		fn(key)
	}
}
