package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openvista/vistalink/internal/testutil/testlog"
)

type fakeConn struct {
	healthy    atomic.Bool
	closed     atomic.Bool
	lastActive time.Time
	onClose    func()
}

func newFakeConn() *fakeConn {
	c := &fakeConn{lastActive: time.Now()}
	c.healthy.Store(true)
	return c
}

func (c *fakeConn) Healthy() bool         { return c.healthy.Load() }
func (c *fakeConn) LastActive() time.Time { return c.lastActive }
func (c *fakeConn) Close() error {
	if c.closed.CompareAndSwap(false, true) && c.onClose != nil {
		c.onClose()
	}
	return nil
}

func TestConcurrentAcquirersNeverExceedBound(t *testing.T) {
	testlog.Start(t)
	const maxSize = 4
	const acquirers = 32

	var live, peak atomic.Int64
	factory := func(ctx context.Context) (Conn, error) {
		c := newFakeConn()
		now := live.Add(1)
		for {
			p := peak.Load()
			if now <= p || peak.CompareAndSwap(p, now) {
				break
			}
		}
		c.onClose = func() { live.Add(-1) }
		return c, nil
	}

	p := New("500", factory, Config{MaxSize: maxSize, AcquireWait: 5 * time.Second})
	defer p.Close()

	var wg sync.WaitGroup
	for i := 0; i < acquirers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 8; j++ {
				c, err := p.Acquire(context.Background())
				if err != nil {
					t.Errorf("acquire: %v", err)
					return
				}
				time.Sleep(time.Millisecond)
				p.Release(c)
			}
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > maxSize {
		t.Fatalf("peak live connections %d exceeds bound %d", got, maxSize)
	}
}

func TestAcquireWaitTimeout(t *testing.T) {
	testlog.Start(t)
	factory := func(ctx context.Context) (Conn, error) { return newFakeConn(), nil }
	p := New("500", factory, Config{MaxSize: 1, AcquireWait: 50 * time.Millisecond})
	defer p.Close()

	held, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	_, err = p.Acquire(context.Background())
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	p.Release(held)
}

func TestReleaseUnhealthyDropsAndReplacesLazily(t *testing.T) {
	testlog.Start(t)
	var built atomic.Int64
	factory := func(ctx context.Context) (Conn, error) {
		built.Add(1)
		return newFakeConn(), nil
	}
	p := New("500", factory, Config{MaxSize: 2, AcquireWait: time.Second})
	defer p.Close()

	c, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	c.(*fakeConn).healthy.Store(false)
	p.Release(c)
	if !c.(*fakeConn).closed.Load() {
		t.Fatalf("unhealthy connection not closed on release")
	}
	if got := built.Load(); got != 1 {
		t.Fatalf("replacement built eagerly: %d", got)
	}

	c2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire replacement: %v", err)
	}
	if got := built.Load(); got != 2 {
		t.Fatalf("expected lazy replacement on acquire, built=%d", got)
	}
	p.Release(c2)
}

func TestAcquireReusesIdleConnection(t *testing.T) {
	testlog.Start(t)
	var built atomic.Int64
	factory := func(ctx context.Context) (Conn, error) {
		built.Add(1)
		return newFakeConn(), nil
	}
	p := New("500", factory, Config{MaxSize: 2, AcquireWait: time.Second})
	defer p.Close()

	c, _ := p.Acquire(context.Background())
	p.Release(c)
	c2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if c2 != c {
		t.Fatalf("idle connection not reused")
	}
	if built.Load() != 1 {
		t.Fatalf("built %d connections, want 1", built.Load())
	}
	p.Release(c2)
}

func TestFactoryErrorFreesSlot(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("dial refused")
	fail := atomic.Bool{}
	fail.Store(true)
	factory := func(ctx context.Context) (Conn, error) {
		if fail.Load() {
			return nil, boom
		}
		return newFakeConn(), nil
	}
	p := New("500", factory, Config{MaxSize: 1, AcquireWait: 100 * time.Millisecond})
	defer p.Close()

	if _, err := p.Acquire(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}
	fail.Store(false)
	c, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("slot leaked by failed factory: %v", err)
	}
	p.Release(c)
}

func TestIdleReapClosesExpired(t *testing.T) {
	testlog.Start(t)
	factory := func(ctx context.Context) (Conn, error) { return newFakeConn(), nil }
	p := New("500", factory, Config{MaxSize: 2, AcquireWait: time.Second, IdleTTL: 20 * time.Millisecond})
	defer p.Close()

	c, _ := p.Acquire(context.Background())
	fc := c.(*fakeConn)
	fc.lastActive = time.Now().Add(-time.Minute)
	p.Release(c)

	p.reapIdle(time.Now())
	if !fc.closed.Load() {
		t.Fatalf("expired idle connection not closed")
	}
	if _, idle := p.Stats(); idle != 0 {
		t.Fatalf("expired connection still idle")
	}
}

func TestAcquireAfterCloseFails(t *testing.T) {
	testlog.Start(t)
	factory := func(ctx context.Context) (Conn, error) { return newFakeConn(), nil }
	p := New("500", factory, Config{MaxSize: 1, AcquireWait: time.Second})
	p.Close()
	if _, err := p.Acquire(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
