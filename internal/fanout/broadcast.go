package fanout

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openvista/vistalink/internal/broker"
)

var (
	ErrNoSites     = errors.New("fanout: no sites to broadcast to")
	ErrNoResponses = errors.New("fanout: no site responded before the deadline")
)

// Broadcast dispatches one logical call to every listed site concurrently.
// Each invocation keeps its own per-call timeout; the shared deadline bounds
// the whole operation, and any site still unanswered when it elapses comes
// back as a Timeout result. Completion order never shapes the output, which
// is keyed by site code.
func (iv *Invoker) Broadcast(ctx context.Context, call broker.RPCCall, sites []string, deadline time.Duration) (map[string]broker.RPCResult, error) {
	return iv.BroadcastFunc(ctx, call.WithSite, sites, deadline)
}

// BroadcastFunc is Broadcast with a per-site call builder, for calls whose
// parameters differ by site (local record identifiers, most commonly).
func (iv *Invoker) BroadcastFunc(ctx context.Context, build func(site string) broker.RPCCall, sites []string, deadline time.Duration) (map[string]broker.RPCResult, error) {
	if len(sites) == 0 {
		return nil, ErrNoSites
	}

	bctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var mu sync.Mutex
	results := make(map[string]broker.RPCResult, len(sites))

	g, gctx := errgroup.WithContext(bctx)
	for _, site := range sites {
		site := site
		g.Go(func() error {
			res := iv.Invoke(gctx, build(site))
			mu.Lock()
			results[site] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	responded := 0
	for _, res := range results {
		if siteResponded(res) {
			responded++
		}
	}
	if responded == 0 {
		return results, ErrNoResponses
	}
	return results, nil
}

// siteResponded reports whether the site completed a protocol exchange,
// successful or not. Timeouts, pool starvation, and transport failures are
// not responses.
func siteResponded(res broker.RPCResult) bool {
	if res.Err == nil {
		return true
	}
	var remote *broker.RemoteError
	return errors.As(res.Err, &remote)
}
