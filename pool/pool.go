// Package pool implements the generic connection pool described in spec
// §4.3: a LIFO idle stack, a FIFO waiter queue, and a periodic cleanup
// tick that enforces idle-timeout eviction, health checks, and refill to
// MinConnections. It is grounded on the teacher's
// internal/storage/dolt/watchdog.go health-check-then-recover-or-destroy
// loop and internal/storage/dolt/access_lock.go's mutex-guarded resource
// lifecycle, generalized from one embedded dolt server process to a pool
// of arbitrary connections.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/stratadb/core/errs"
)

// Factory creates a new connection of type C.
type Factory[C any] func(ctx context.Context) (C, error)

// Destroyer releases a connection's resources.
type Destroyer[C any] func(c C)

// Validator reports whether a connection is still usable. Used for both
// test_on_borrow and test_on_return and for the cleanup tick's health
// check.
type Validator[C any] func(c C) bool

// Resetter attempts to recover an unhealthy connection in place. Used by
// the cleanup tick before falling back to destroy.
type Resetter[C any] func(c C) bool

// Config tunes pool behavior.
type Config struct {
	MinConnections  int
	MaxConnections  int
	AcquireTimeout  time.Duration
	IdleTimeout     time.Duration
	MaxLifetime     time.Duration
	CleanupInterval time.Duration
	TestOnBorrow    bool
	TestOnReturn    bool
}

func (c Config) cleanupInterval() time.Duration {
	if c.CleanupInterval > 0 {
		return c.CleanupInterval
	}
	if c.IdleTimeout > 0 && c.IdleTimeout < 30*time.Second {
		return c.IdleTimeout
	}
	return 30 * time.Second
}

// Pooled wraps a connection with the lifecycle metadata from spec §3.
type Pooled[C any] struct {
	Conn        C
	CreatedAt   time.Time
	LastUsedAt  time.Time
	UseCount    uint64
	Healthy     bool
}

func (p *Pooled[C]) age(now time.Time) time.Duration { return now.Sub(p.CreatedAt) }

// Metrics reports pool-wide counters, sampled under the pool mutex.
type Metrics struct {
	Created          uint64
	Destroyed        uint64
	PeakActive       int
	CurrentIdle      int
	CurrentInUse     int
	CurrentTotal     int
	WaitersQueued    int
	AcquireLatencies []time.Duration // capped at 100 samples, newest last
}

type waiter[C any] struct {
	ch      chan *Pooled[C]
	errCh   chan error
	expires time.Time
}

// Pool is a generic connection pool.
type Pool[C any] struct {
	cfg      Config
	factory  Factory[C]
	destroy  Destroyer[C]
	validate Validator[C]
	reset    Resetter[C]

	mu          sync.Mutex
	idle        []*Pooled[C] // LIFO: append/pop from tail
	inUse       map[*Pooled[C]]struct{}
	waiters     []*waiter[C] // FIFO: append tail, pop head
	total       int
	created     uint64
	destroyed   uint64
	peakActive  int
	latencies   []time.Duration
	initialized bool
	closed      bool

	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// New constructs a Pool. Call Initialize before use.
func New[C any](cfg Config, factory Factory[C], destroy Destroyer[C], validate Validator[C], reset Resetter[C]) *Pool[C] {
	return &Pool[C]{
		cfg:      cfg,
		factory:  factory,
		destroy:  destroy,
		validate: validate,
		reset:    reset,
		inUse:    make(map[*Pooled[C]]struct{}),
	}
}

// Initialize pre-creates MinConnections connections and starts the
// periodic cleanup task.
func (p *Pool[C]) Initialize(ctx context.Context) error {
	p.mu.Lock()
	if p.initialized {
		p.mu.Unlock()
		return nil
	}
	p.initialized = true
	p.cleanupStop = make(chan struct{})
	p.cleanupDone = make(chan struct{})
	p.mu.Unlock()

	for i := 0; i < p.cfg.MinConnections; i++ {
		c, err := p.createLocked(ctx)
		if err != nil {
			continue // cleanup tick will try to refill; initialize tolerates partial failure
		}
		p.mu.Lock()
		p.idle = append(p.idle, c)
		p.mu.Unlock()
	}

	go p.cleanupLoop()
	return nil
}

func (p *Pool[C]) createLocked(ctx context.Context) (*Pooled[C], error) {
	conn, err := p.factory(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Network, err, "create pooled connection")
	}
	now := time.Now()
	p.mu.Lock()
	p.total++
	p.created++
	if p.total > p.peakActive {
		p.peakActive = p.total
	}
	p.mu.Unlock()
	return &Pooled[C]{Conn: conn, CreatedAt: now, LastUsedAt: now, Healthy: true}, nil
}

func (p *Pool[C]) destroyLocked(c *Pooled[C]) {
	p.destroy(c.Conn)
	p.mu.Lock()
	p.total--
	p.destroyed++
	p.mu.Unlock()
}

// Acquire returns a connection, blocking at most AcquireTimeout.
func (p *Pool[C]) Acquire(ctx context.Context) (*Pooled[C], error) {
	start := time.Now()
	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		return nil, errs.New(errs.PoolNotInit, "pool not initialized")
	}
	if p.closed {
		p.mu.Unlock()
		return nil, errs.New(errs.PoolClosed, "pool is closed")
	}

	for len(p.idle) > 0 {
		c := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		now := time.Now()
		if p.cfg.MaxLifetime > 0 && c.age(now) > p.cfg.MaxLifetime {
			p.mu.Unlock()
			p.destroyLocked(c)
			p.mu.Lock()
			continue
		}
		if p.cfg.TestOnBorrow && p.validate != nil && !p.validate(c.Conn) {
			p.mu.Unlock()
			p.destroyLocked(c)
			p.mu.Lock()
			continue
		}
		c.LastUsedAt = now
		c.UseCount++
		p.inUse[c] = struct{}{}
		p.recordLatencyLocked(time.Since(start))
		p.mu.Unlock()
		return c, nil
	}

	if p.total < p.cfg.MaxConnections {
		p.mu.Unlock()
		c, err := p.createLocked(ctx)
		if err != nil {
			return nil, err
		}
		if p.validate != nil && !p.validate(c.Conn) {
			p.destroyLocked(c)
			return nil, errs.New(errs.Network, "newly created connection failed validation")
		}
		p.mu.Lock()
		c.LastUsedAt = time.Now()
		c.UseCount++
		p.inUse[c] = struct{}{}
		p.recordLatencyLocked(time.Since(start))
		p.mu.Unlock()
		return c, nil
	}

	deadline := time.Now().Add(p.cfg.AcquireTimeout)
	w := &waiter[C]{ch: make(chan *Pooled[C], 1), errCh: make(chan error, 1), expires: deadline}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case c := <-w.ch:
		p.recordLatency(time.Since(start))
		return c, nil
	case err := <-w.errCh:
		return nil, err
	case <-timer.C:
		p.removeWaiter(w)
		return nil, errs.New(errs.PoolTimeout, "acquire timed out after %s", p.cfg.AcquireTimeout)
	case <-ctx.Done():
		p.removeWaiter(w)
		return nil, errs.Wrap(errs.Cancelled, ctx.Err(), "acquire cancelled")
	}
}

func (p *Pool[C]) recordLatencyLocked(d time.Duration) {
	p.latencies = append(p.latencies, d)
	if len(p.latencies) > 100 {
		p.latencies = p.latencies[len(p.latencies)-100:]
	}
}

func (p *Pool[C]) recordLatency(d time.Duration) {
	p.mu.Lock()
	p.recordLatencyLocked(d)
	p.mu.Unlock()
}

func (p *Pool[C]) removeWaiter(target *waiter[C]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == target {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// Release returns a connection to the pool: destroy on close or a
// test_on_return rejection; destroy if the pool is already holding more
// than MinConnections and no one is waiting for c; else hand c directly
// to a waiting acquirer; else push it onto the idle stack.
func (p *Pool[C]) Release(c *Pooled[C]) {
	p.mu.Lock()
	delete(p.inUse, c)

	if p.closed {
		p.mu.Unlock()
		p.destroyLocked(c)
		return
	}
	if p.cfg.TestOnReturn && p.validate != nil && !p.validate(c.Conn) {
		p.mu.Unlock()
		p.destroyLocked(c)
		return
	}
	// Shrink back toward MinConnections immediately on release rather
	// than waiting for the next cleanupTick, but never at a queued
	// waiter's expense — a waiter always gets first claim on c.
	if len(p.waiters) == 0 && len(p.idle)+len(p.inUse) > p.cfg.MinConnections {
		p.mu.Unlock()
		p.destroyLocked(c)
		return
	}
	for len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		if time.Now().After(w.expires) {
			continue // timer already fired on the acquirer side
		}
		c.LastUsedAt = time.Now()
		c.UseCount++
		p.inUse[c] = struct{}{}
		p.mu.Unlock()
		w.ch <- c
		return
	}
	p.idle = append(p.idle, c)
	p.mu.Unlock()
}

// WithConnection acquires a connection, runs fn, and guarantees release
// on every exit path including panic.
func (p *Pool[C]) WithConnection(ctx context.Context, fn func(C) error) (err error) {
	c, acqErr := p.Acquire(ctx)
	if acqErr != nil {
		return acqErr
	}
	defer func() {
		if r := recover(); r != nil {
			p.Release(c)
			panic(r)
		}
		p.Release(c)
	}()
	return fn(c.Conn)
}

// Close destroys all idle connections, wakes all waiters with PoolClosed,
// and is idempotent.
func (p *Pool[C]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	waiters := p.waiters
	p.waiters = nil
	stop := p.cleanupStop
	p.mu.Unlock()

	for _, c := range idle {
		p.destroyLocked(c)
	}
	for _, w := range waiters {
		w.errCh <- errs.New(errs.PoolClosed, "pool closed while waiting")
	}
	if stop != nil {
		close(stop)
		<-p.cleanupDone
	}
}

// Metrics returns a snapshot of pool counters.
func (p *Pool[C]) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Metrics{
		Created:          p.created,
		Destroyed:        p.destroyed,
		PeakActive:       p.peakActive,
		CurrentIdle:      len(p.idle),
		CurrentInUse:     len(p.inUse),
		CurrentTotal:     p.total,
		WaitersQueued:    len(p.waiters),
		AcquireLatencies: append([]time.Duration{}, p.latencies...),
	}
}

func (p *Pool[C]) cleanupLoop() {
	defer close(p.cleanupDone)
	ticker := time.NewTicker(p.cfg.cleanupInterval())
	defer ticker.Stop()
	for {
		select {
		case <-p.cleanupStop:
			return
		case <-ticker.C:
			p.cleanupTick()
		}
	}
}

// cleanupTick destroys over-idle connections, health-checks the rest,
// attempts reset-then-destroy on unhealthy ones, and refills to
// MinConnections. Tolerates create/destroy failures without crashing.
func (p *Pool[C]) cleanupTick() {
	now := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	remaining := p.total
	var keep []*Pooled[C]
	var evict []*Pooled[C]
	for _, c := range p.idle {
		idleFor := now.Sub(c.LastUsedAt)
		if p.cfg.IdleTimeout > 0 && idleFor > p.cfg.IdleTimeout && remaining > p.cfg.MinConnections {
			evict = append(evict, c)
			remaining--
			continue
		}
		keep = append(keep, c)
	}
	p.idle = keep
	p.mu.Unlock()

	for _, c := range evict {
		p.destroyLocked(c)
	}

	if p.validate != nil {
		p.mu.Lock()
		survivors := make([]*Pooled[C], 0, len(p.idle))
		var unhealthy []*Pooled[C]
		for _, c := range p.idle {
			if p.validate(c.Conn) {
				survivors = append(survivors, c)
			} else {
				unhealthy = append(unhealthy, c)
			}
		}
		p.idle = survivors
		p.mu.Unlock()

		for _, c := range unhealthy {
			if p.reset != nil && p.reset(c.Conn) {
				c.Healthy = true
				p.mu.Lock()
				p.idle = append(p.idle, c)
				p.mu.Unlock()
				continue
			}
			p.destroyLocked(c)
		}
	}

	p.refill()
}

func (p *Pool[C]) refill() {
	for {
		p.mu.Lock()
		if p.closed || p.total >= p.cfg.MinConnections {
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		c, err := p.createLocked(context.Background())
		if err != nil {
			return // tolerate: try again next tick
		}
		p.mu.Lock()
		p.idle = append(p.idle, c)
		p.mu.Unlock()
	}
}
