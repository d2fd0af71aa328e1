// Package pool bounds and recycles site connections.
//
// The pool is the only state shared between concurrent invocations, so
// every mutation happens under the mutex; the live-connection bound is a
// buffered-channel semaphore.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrExhausted = errors.New("pool: exhausted")
	ErrClosed    = errors.New("pool: closed")
)

// Conn is the pooled resource contract.
type Conn interface {
	Healthy() bool
	LastActive() time.Time
	Close() error
}

// Factory builds one ready connection. It is called lazily, only when an
// acquire finds no idle connection.
type Factory func(ctx context.Context) (Conn, error)

// Config bounds one site's pool.
type Config struct {
	MaxSize     int
	AcquireWait time.Duration
	IdleTTL     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxSize:     4,
		AcquireWait: 10 * time.Second,
		IdleTTL:     90 * time.Second,
	}
}

// Pool is a bounded set of ready connections for one site.
type Pool struct {
	site    string
	factory Factory
	cfg     Config
	slots   chan struct{}

	mu     sync.Mutex
	idle   []Conn
	closed bool

	stopReap chan struct{}
	reapDone chan struct{}
}

func New(site string, factory Factory, cfg Config) *Pool {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	if cfg.AcquireWait <= 0 {
		cfg.AcquireWait = DefaultConfig().AcquireWait
	}
	p := &Pool{
		site:     site,
		factory:  factory,
		cfg:      cfg,
		slots:    make(chan struct{}, cfg.MaxSize),
		stopReap: make(chan struct{}),
		reapDone: make(chan struct{}),
	}
	if cfg.IdleTTL > 0 {
		go p.reapLoop()
	} else {
		close(p.reapDone)
	}
	return p
}

func (p *Pool) Site() string { return p.site }

// Acquire returns a ready connection, growing the pool lazily up to its
// bound. It blocks until a slot frees, the wait elapses, or ctx ends.
func (p *Pool) Acquire(ctx context.Context) (Conn, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	wait := time.NewTimer(p.cfg.AcquireWait)
	defer wait.Stop()

	select {
	case p.slots <- struct{}{}:
	case <-wait.C:
		return nil, ErrExhausted
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if c := p.popIdle(); c != nil {
		return c, nil
	}

	c, err := p.factory(ctx)
	if err != nil {
		p.freeSlot()
		return nil, err
	}
	return c, nil
}

// Release returns a healthy connection for reuse; anything else is dropped.
// A replacement is only ever created lazily by a later acquire.
func (p *Pool) Release(c Conn) {
	if c == nil {
		p.freeSlot()
		return
	}
	if !c.Healthy() {
		p.Discard(c)
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = c.Close()
		p.freeSlot()
		return
	}
	p.idle = append(p.idle, c)
	p.mu.Unlock()
	p.freeSlot()
}

// Discard closes a connection that errored during use and frees its slot.
func (p *Pool) Discard(c Conn) {
	if c != nil {
		_ = c.Close()
	}
	p.freeSlot()
}

// Stats reports in-use and idle connection counts. Idle connections hold no
// slot; a release pushes to the idle list before freeing its slot, so an
// acquirer that wins the freed slot always sees the idle connection.
func (p *Pool) Stats() (inUse, idle int) {
	p.mu.Lock()
	idle = len(p.idle)
	p.mu.Unlock()
	return len(p.slots), idle
}

func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	close(p.stopReap)
	<-p.reapDone
	for _, c := range idle {
		_ = c.Close()
	}
}

func (p *Pool) popIdle() Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.idle) > 0 {
		last := len(p.idle) - 1
		c := p.idle[last]
		p.idle = p.idle[:last]
		if c.Healthy() && !p.expired(c, time.Now()) {
			return c
		}
		// Stale or unhealthy: close it here but keep the slot, since the
		// caller already owns one and will build a replacement.
		_ = c.Close()
	}
	return nil
}

func (p *Pool) freeSlot() {
	select {
	case <-p.slots:
	default:
	}
}

func (p *Pool) expired(c Conn, now time.Time) bool {
	return p.cfg.IdleTTL > 0 && now.Sub(c.LastActive()) > p.cfg.IdleTTL
}

func (p *Pool) reapLoop() {
	defer close(p.reapDone)
	interval := p.cfg.IdleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopReap:
			return
		case <-ticker.C:
			p.reapIdle(time.Now())
		}
	}
}

func (p *Pool) reapIdle(now time.Time) {
	p.mu.Lock()
	kept := p.idle[:0]
	var expired []Conn
	for _, c := range p.idle {
		if p.expired(c, now) {
			expired = append(expired, c)
		} else {
			kept = append(kept, c)
		}
	}
	p.idle = kept
	p.mu.Unlock()

	for _, c := range expired {
		_ = c.Close()
	}
}
