package broker

import "time"

// RPCCall is one procedure invocation against one site.
type RPCCall struct {
	Site   string
	Name   string
	Params []string
}

// WithSite returns a copy of the call addressed to site. Every call carries
// its full target; there is no implicit "current site".
func (c RPCCall) WithSite(site string) RPCCall {
	c.Site = site
	return c
}

// RPCResult is the outcome of one invocation, always tagged with its site
// and measured latency.
type RPCResult struct {
	Site    string
	RPC     string
	OK      bool
	Scalar  string
	Lines   []string
	Latency time.Duration
	Err     error
}
