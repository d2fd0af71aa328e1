package aggregate

import (
	"errors"
	"sort"
	"time"

	"github.com/openvista/vistalink/internal/broker"
	"github.com/openvista/vistalink/internal/identity"
	"github.com/openvista/vistalink/internal/pool"
)

// Demographics is the patient header, elected from one site's answer rather
// than field-merged: mixing name pieces from different registrations
// produces records no clinician entered.
type Demographics struct {
	Site    string `json:"site"`
	LocalID string `json:"local_id"`
	Name    string `json:"name"`
	Sex     string `json:"sex"`
	DOB     string `json:"dob"`
	Age     int    `json:"age,omitempty"`
	SSN     string `json:"ssn,omitempty"`
}

// completeness counts populated identifying fields; the merge policy uses
// it to rank candidate headers.
func (d Demographics) completeness() int {
	n := 0
	for _, v := range []string{d.Name, d.Sex, d.DOB, d.SSN} {
		if v != "" {
			n++
		}
	}
	return n
}

// ConflictFlag records a field that carried different values at different
// sites for the same logical entry. The winning value is already folded
// into the entry; the flag preserves every original so reviewers can audit
// the election.
type ConflictFlag struct {
	Domain string            `json:"domain"`
	Key    string            `json:"key"`
	Field  string            `json:"field"`
	Values map[string]string `json:"values"`
}

// SiteError is one per-site, per-domain failure attached to an otherwise
// usable record.
type SiteError struct {
	Domain  string `json:"domain"`
	Site    string `json:"site"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Record is the merged cross-site view of one patient. Partial failure is
// the normal case: the Errors list names every site/domain pair that did
// not contribute, and everything else stands on its own.
type Record struct {
	RequestID    string             `json:"request_id"`
	GlobalID     string             `json:"global_id"`
	Demographics Demographics       `json:"demographics"`
	Sites        map[string]string  `json:"sites"`
	Domains      map[string][]Entry `json:"domains"`
	Conflicts    []ConflictFlag     `json:"conflicts,omitempty"`
	Errors       []SiteError        `json:"errors,omitempty"`
	FetchedAt    time.Time          `json:"fetched_at"`
}

func newRecord(requestID, globalID string, ix identity.Index) *Record {
	sites := make(map[string]string, len(ix.Local))
	for code, local := range ix.Local {
		sites[code] = local
	}
	return &Record{
		RequestID: requestID,
		GlobalID:  globalID,
		Sites:     sites,
		Domains:   make(map[string][]Entry),
		FetchedAt: time.Now().UTC(),
	}
}

func (r *Record) addError(domain, site string, err error) {
	r.Errors = append(r.Errors, SiteError{
		Domain:  domain,
		Site:    site,
		Kind:    errorKind(err),
		Message: err.Error(),
	})
}

// sortErrors fixes the error list order so identical inputs always render
// identically.
func (r *Record) sortErrors() {
	sort.Slice(r.Errors, func(i, j int) bool {
		a, b := r.Errors[i], r.Errors[j]
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		return a.Site < b.Site
	})
}

func errorKind(err error) string {
	var remote *broker.RemoteError
	switch {
	case errors.Is(err, broker.ErrTimeout):
		return "timeout"
	case errors.Is(err, pool.ErrExhausted):
		return "pool_exhausted"
	case errors.Is(err, broker.ErrContextDenied):
		return "context_denied"
	case errors.Is(err, broker.ErrAuth):
		return "auth"
	case errors.Is(err, broker.ErrProtocol):
		return "protocol"
	case errors.As(err, &remote):
		return "remote_error"
	default:
		return "network"
	}
}
