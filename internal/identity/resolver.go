// Package identity maps a cross-site patient identifier to each site's
// local record identifier. The backing store keeps no reverse index, so the
// resolver builds an explicit per-request one and throws it away after use.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openvista/vistalink/internal/broker"
)

// ResolveRPC translates a global identifier (ICN) into a site-local record
// number (DFN).
const ResolveRPC = "VAFCTFU CONVERT ICN TO DFN"

// ErrLookupMiss marks a site that holds no record for the identifier. A
// miss is a normal outcome; Resolve wraps it in this sentinel so callers
// can separate misses from genuine faults.
var ErrLookupMiss = errors.New("identity: no local identifier at site")

// Broadcaster is the fan-out surface the resolver consumes.
type Broadcaster interface {
	Broadcast(ctx context.Context, call broker.RPCCall, sites []string, deadline time.Duration) (map[string]broker.RPCResult, error)
}

// Index is one resolved per-request identity: global identifier plus the
// site-local identifier at every site that knows the patient.
type Index struct {
	GlobalID string
	Local    map[string]string
}

// Sites returns the site codes holding a mapping, in sorted order.
func (ix Index) Sites() []string {
	out := make([]string, 0, len(ix.Local))
	for code := range ix.Local {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

type Resolver struct {
	caller   Broadcaster
	deadline time.Duration
	log      zerolog.Logger
}

func NewResolver(caller Broadcaster, deadline time.Duration, log zerolog.Logger) *Resolver {
	return &Resolver{caller: caller, deadline: deadline, log: log}
}

// Resolve looks the global identifier up at every site. Sites that do not
// hold the identifier never enter the index; they come back in the second
// return value wrapped in ErrLookupMiss so callers can tell a miss from a
// fault with errors.Is and decide which to record.
func (r *Resolver) Resolve(ctx context.Context, globalID string, sites []string) (Index, map[string]error) {
	ix := Index{GlobalID: globalID, Local: make(map[string]string, len(sites))}
	if len(sites) == 0 {
		return ix, nil
	}

	call := broker.RPCCall{Name: ResolveRPC, Params: []string{globalID}}
	results, err := r.caller.Broadcast(ctx, call, sites, r.deadline)
	faults := make(map[string]error)
	for site, res := range results {
		switch {
		case res.Err != nil:
			faults[site] = res.Err
		case isMiss(res.Scalar):
			r.log.Debug().Str("site", site).Str("global_id", globalID).Msg("identity miss")
			faults[site] = fmt.Errorf("%w: %s", ErrLookupMiss, site)
		default:
			ix.Local[site] = strings.TrimSpace(res.Scalar)
		}
	}
	if err != nil && len(results) == 0 {
		for _, site := range sites {
			faults[site] = err
		}
	}
	if len(faults) == 0 {
		faults = nil
	}
	return ix, faults
}

// isMiss recognizes the store's "no such patient" replies: an empty scalar
// or a -1^message pair.
func isMiss(scalar string) bool {
	s := strings.TrimSpace(scalar)
	if s == "" {
		return true
	}
	piece, _, _ := strings.Cut(s, "^")
	return piece == "-1"
}
