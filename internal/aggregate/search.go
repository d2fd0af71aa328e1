package aggregate

import (
	"context"
	"sort"

	"github.com/openvista/vistalink/internal/broker"
)

// SearchRPC matches patients by partial name.
const SearchRPC = "ORWPT SELECT"

// Candidate is one name-search hit at one site. Search runs before
// identity resolution, so hits carry only local identifiers.
type Candidate struct {
	Site    string `json:"site"`
	LocalID string `json:"local_id"`
	Name    string `json:"name"`
}

// Search fans a name lookup out to every listed site and returns the
// union of hits. Sites that fail are reported alongside, never instead of,
// the hits from sites that answered.
func (a *Aggregator) Search(ctx context.Context, term string, sites []string) ([]Candidate, []SiteError) {
	call := broker.RPCCall{Name: SearchRPC, Params: []string{term}}
	results, err := a.caller.Broadcast(ctx, call, sites, a.deadline)
	if err != nil && len(results) == 0 {
		errs := make([]SiteError, 0, len(sites))
		for _, site := range sites {
			errs = append(errs, SiteError{Domain: "search", Site: site, Kind: errorKind(err), Message: err.Error()})
		}
		return nil, errs
	}

	var (
		hits []Candidate
		errs []SiteError
	)
	for site, res := range results {
		if res.Err != nil {
			errs = append(errs, SiteError{Domain: "search", Site: site, Kind: errorKind(res.Err), Message: res.Err.Error()})
			continue
		}
		for _, line := range res.Lines {
			id, name := piece(line, 1), piece(line, 2)
			if id == "" || name == "" {
				continue
			}
			hits = append(hits, Candidate{Site: site, LocalID: id, Name: name})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Name != hits[j].Name {
			return hits[i].Name < hits[j].Name
		}
		return hits[i].Site < hits[j].Site
	})
	sort.Slice(errs, func(i, j int) bool { return errs[i].Site < errs[j].Site })
	return hits, errs
}
