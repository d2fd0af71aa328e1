package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openvista/vistalink/internal/broker"
	"github.com/openvista/vistalink/internal/identity"
	"github.com/openvista/vistalink/internal/observability"
)

// DemographicsRPC serves the patient header.
const DemographicsRPC = "ORWPT ID INFO"

// Broadcaster is the fan-out surface the aggregator consumes.
type Broadcaster interface {
	Broadcast(ctx context.Context, call broker.RPCCall, sites []string, deadline time.Duration) (map[string]broker.RPCResult, error)
	BroadcastFunc(ctx context.Context, build func(site string) broker.RPCCall, sites []string, deadline time.Duration) (map[string]broker.RPCResult, error)
}

// IdentityResolver maps a global identifier to the per-site local ones.
type IdentityResolver interface {
	Resolve(ctx context.Context, globalID string, sites []string) (identity.Index, map[string]error)
}

// Aggregator builds merged cross-site patient records: resolve identity,
// fan each requested domain out to every site holding the patient, parse,
// deduplicate, flag conflicts, and return whatever arrived before the
// deadline. One unreachable site never sinks the record.
type Aggregator struct {
	caller   Broadcaster
	resolver IdentityResolver
	domains  map[string]Domain
	policy   MergePolicy
	deadline time.Duration
	log      zerolog.Logger
}

// Option adjusts Aggregator construction.
type Option func(*Aggregator)

// WithPolicy swaps the conflict election policy.
func WithPolicy(p MergePolicy) Option {
	return func(a *Aggregator) { a.policy = p }
}

// WithDeadline sets the shared fan-out deadline per domain.
func WithDeadline(d time.Duration) Option {
	return func(a *Aggregator) { a.deadline = d }
}

// WithDomain registers an extra or replacement domain.
func WithDomain(d Domain) Option {
	return func(a *Aggregator) { a.domains[d.Name] = d }
}

func New(caller Broadcaster, resolver IdentityResolver, primarySite string, log zerolog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		caller:   caller,
		resolver: resolver,
		domains:  domainTable(),
		policy:   CompletenessPolicy{PrimarySite: primarySite},
		deadline: 30 * time.Second,
		log:      log.With().Str("component", "aggregate").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate assembles the merged record for one patient across the given
// sites. Per-site, per-domain failures land in the record's error list; the
// returned error is reserved for caller mistakes and cancellation.
func (a *Aggregator) Aggregate(ctx context.Context, globalID string, domainNames, sites []string) (*Record, error) {
	if len(domainNames) == 0 {
		domainNames = DomainNames()
	}
	wanted := make([]Domain, 0, len(domainNames))
	for _, name := range domainNames {
		d, ok := a.domains[name]
		if !ok {
			return nil, fmt.Errorf("aggregate: unknown domain %q", name)
		}
		wanted = append(wanted, d)
	}

	ix, faults := a.resolver.Resolve(ctx, globalID, sites)
	rec := newRecord(uuid.NewString(), globalID, ix)
	for site, err := range faults {
		// A miss is a normal outcome: the site simply holds no record for
		// this patient and stays out of the merged view entirely.
		if errors.Is(err, identity.ErrLookupMiss) {
			a.log.Debug().Str("site", site).Str("global_id", globalID).Msg("site holds no record")
			continue
		}
		rec.addError("identity", site, err)
	}

	resolved := ix.Sites()
	log := a.log.With().Str("request_id", rec.RequestID).Str("global_id", globalID).Logger()
	if len(resolved) == 0 {
		log.Warn().Int("faults", len(faults)).Msg("no site resolved the identifier")
		rec.sortErrors()
		return rec, nil
	}
	log.Debug().Strs("sites", resolved).Int("domains", len(wanted)).Msg("aggregating record")

	a.fetchDemographics(ctx, rec, ix, resolved)

	for _, d := range wanted {
		if err := ctx.Err(); err != nil {
			return rec, err
		}
		a.fetchDomain(ctx, rec, d, ix, resolved)
	}

	rec.sortErrors()
	return rec, nil
}

func (a *Aggregator) fetchDemographics(ctx context.Context, rec *Record, ix identity.Index, sites []string) {
	results, err := a.caller.BroadcastFunc(ctx, func(site string) broker.RPCCall {
		return broker.RPCCall{Site: site, Name: DemographicsRPC, Params: []string{ix.Local[site]}}
	}, sites, a.deadline)
	if err != nil && len(results) == 0 {
		for _, site := range sites {
			rec.addError("demographics", site, err)
		}
		return
	}

	var candidates []Demographics
	for site, res := range results {
		if res.Err != nil {
			rec.addError("demographics", site, res.Err)
			continue
		}
		candidates = append(candidates, parseDemographics(site, ix.Local[site], res.Scalar))
	}
	if len(candidates) == 0 {
		return
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Site < candidates[j].Site })
	rec.Demographics = a.policy.PickDemographics(candidates)
}

func (a *Aggregator) fetchDomain(ctx context.Context, rec *Record, d Domain, ix identity.Index, sites []string) {
	results, err := a.caller.BroadcastFunc(ctx, func(site string) broker.RPCCall {
		return broker.RPCCall{Site: site, Name: d.RPC, Params: d.BuildParams(ix.Local[site])}
	}, sites, a.deadline)
	if err != nil && len(results) == 0 {
		for _, site := range sites {
			rec.addError(d.Name, site, err)
		}
		return
	}

	now := time.Now().UTC()
	perSite := make(map[string][]Entry, len(results))
	for site, res := range results {
		if res.Err != nil {
			rec.addError(d.Name, site, res.Err)
			continue
		}
		var entries []Entry
		for _, line := range res.Lines {
			fields, ok := d.Parse(line)
			if !ok {
				continue
			}
			entries = append(entries, Entry{Fields: fields, Site: site, FetchedAt: now})
		}
		perSite[site] = entries
	}

	merged, conflicts := mergeDomain(d, perSite, a.policy)
	rec.Domains[d.Name] = merged
	if len(conflicts) > 0 {
		rec.Conflicts = append(rec.Conflicts, conflicts...)
		observability.RecordConflicts(d.Name, len(conflicts))
		a.log.Info().Str("domain", d.Name).Int("conflicts", len(conflicts)).Msg("cross-site field conflicts flagged")
	}
}

// parseDemographics unpacks the header scalar "dfn^ssn^dob^sex^name".
func parseDemographics(site, localID, scalar string) Demographics {
	d := Demographics{
		Site:    site,
		LocalID: localID,
		SSN:     piece(scalar, 2),
		Sex:     piece(scalar, 4),
		Name:    piece(scalar, 5),
	}
	if dob := piece(scalar, 3); dob != "" {
		d.DOB = fmDateISO(dob)
		if t, err := ParseFMDate(dob); err == nil {
			d.Age = ageAt(t, time.Now().UTC())
		}
	}
	return d
}
