package fanout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/openvista/vistalink/internal/broker"
	"github.com/openvista/vistalink/internal/observability"
	"github.com/openvista/vistalink/internal/pool"
	"github.com/openvista/vistalink/internal/protocol"
)

var ErrUnknownSite = errors.New("fanout: site not registered")

// executor is what an invocation needs from a pooled connection.
type executor interface {
	pool.Conn
	Execute(ctx context.Context, name string, params []string, timeout time.Duration) (protocol.Response, error)
}

type siteEntry struct {
	pool        *pool.Pool
	callTimeout time.Duration
}

// Invoker executes one call against one site via that site's pool.
type Invoker struct {
	sites map[string]siteEntry
	log   zerolog.Logger
}

func NewInvoker(log zerolog.Logger) *Invoker {
	return &Invoker{
		sites: make(map[string]siteEntry),
		log:   log,
	}
}

// AddSite registers a site pool. Not safe to call once invocations begin;
// the site set is fixed at startup.
func (iv *Invoker) AddSite(code string, p *pool.Pool, callTimeout time.Duration) {
	iv.sites[code] = siteEntry{pool: p, callTimeout: callTimeout}
}

// Sites returns registered site codes in sorted order.
func (iv *Invoker) Sites() []string {
	out := make([]string, 0, len(iv.sites))
	for code := range iv.sites {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// SiteStats reports the in-use and idle connection counts for one site's
// pool.
func (iv *Invoker) SiteStats(code string) (inUse, idle int, ok bool) {
	entry, found := iv.sites[code]
	if !found {
		return 0, 0, false
	}
	inUse, idle = entry.pool.Stats()
	return inUse, idle, true
}

func (iv *Invoker) Close() {
	for _, entry := range iv.sites {
		entry.pool.Close()
	}
}

// Invoke runs one call and always returns a result tagged with the site
// and the measured latency. Timeouts surface as explicit Timeout results,
// never as dropped work.
func (iv *Invoker) Invoke(ctx context.Context, call broker.RPCCall) broker.RPCResult {
	start := time.Now()
	res := iv.invoke(ctx, call)
	res.Site = call.Site
	res.RPC = call.Name
	res.Latency = time.Since(start)

	outcome := classifyOutcome(res.Err)
	observability.RecordCall(call.Site, call.Name, outcome, res.Latency)
	if entry, ok := iv.sites[call.Site]; ok {
		inUse, idle := entry.pool.Stats()
		observability.SetPoolGauges(call.Site, inUse, idle)
	}
	if res.Err != nil {
		iv.log.Debug().
			Str("site", call.Site).
			Str("rpc", call.Name).
			Str("outcome", outcome).
			Dur("latency", res.Latency).
			Err(res.Err).
			Msg("call failed")
	}
	return res
}

func (iv *Invoker) invoke(ctx context.Context, call broker.RPCCall) broker.RPCResult {
	entry, ok := iv.sites[call.Site]
	if !ok {
		return broker.RPCResult{Err: fmt.Errorf("%w: %s", ErrUnknownSite, call.Site)}
	}

	c, err := entry.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: waiting for connection", broker.ErrTimeout)
		}
		return broker.RPCResult{Err: err}
	}

	ex, ok := c.(executor)
	if !ok {
		entry.pool.Discard(c)
		return broker.RPCResult{Err: fmt.Errorf("fanout: pooled connection cannot execute")}
	}

	resp, err := ex.Execute(ctx, call.Name, call.Params, entry.callTimeout)
	entry.pool.Release(c)
	if err != nil {
		return broker.RPCResult{Err: err}
	}
	return broker.RPCResult{
		OK:     true,
		Scalar: resp.Scalar,
		Lines:  resp.Lines,
	}
}

func classifyOutcome(err error) string {
	var remote *broker.RemoteError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, broker.ErrTimeout):
		return "timeout"
	case errors.Is(err, pool.ErrExhausted):
		return "pool_exhausted"
	case errors.As(err, &remote):
		return "remote_error"
	case errors.Is(err, broker.ErrProtocol):
		return "protocol_error"
	case errors.Is(err, broker.ErrAuth), errors.Is(err, broker.ErrContextDenied):
		return "auth_error"
	default:
		return "network_error"
	}
}
