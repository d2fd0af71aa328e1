package aggregate

import (
	"sort"
	"strings"
	"time"
)

// Entry is one clinical datum from one site, reduced to a flat field map so
// merge and conflict detection work uniformly across domains.
type Entry struct {
	Fields    map[string]string `json:"fields"`
	Site      string            `json:"site"`
	Sources   []string          `json:"sources"`
	FetchedAt time.Time         `json:"fetched_at"`
}

func (e Entry) field(name string) string {
	return e.Fields[name]
}

// key derives the dedupe identity of an entry within its domain.
func (e Entry) key(d Domain) string {
	vals := make([]string, len(d.KeyFields))
	for i, f := range d.KeyFields {
		vals[i] = strings.ToUpper(e.Fields[f])
	}
	return strings.Join(vals, "|")
}

// Domain describes how one clinical data category is fetched and merged:
// which remote procedure serves it, how its caret-delimited lines unpack
// into fields, which fields identify a duplicate, and the deterministic
// output order.
type Domain struct {
	Name        string
	RPC         string
	BuildParams func(localID string) []string
	Parse       func(line string) (map[string]string, bool)
	KeyFields   []string
	SortFields  []string
}

func localIDParams(localID string) []string { return []string{localID} }

// builtinDomains is the clinical catalogue. Line layouts follow the host
// procedures' caret-piece conventions; pieces past the documented layout
// are ignored rather than rejected.
var builtinDomains = []Domain{
	{
		Name:        "medications",
		RPC:         "ORWPS ACTIVE",
		BuildParams: localIDParams,
		Parse: func(line string) (map[string]string, bool) {
			name := piece(line, 2)
			if name == "" {
				return nil, false
			}
			return map[string]string{
				"name":   name,
				"dosage": piece(line, 3),
				"status": piece(line, 4),
				"start":  fmDateISO(piece(line, 5)),
			}, true
		},
		KeyFields:  []string{"name", "start"},
		SortFields: []string{"name", "start"},
	},
	{
		Name:        "vitals",
		RPC:         "ORQQVI VITALS",
		BuildParams: localIDParams,
		Parse: func(line string) (map[string]string, bool) {
			typ := piece(line, 2)
			if typ == "" {
				return nil, false
			}
			return map[string]string{
				"type":  typ,
				"value": piece(line, 3),
				"units": piece(line, 4),
				"taken": fmDateISO(piece(line, 5)),
			}, true
		},
		KeyFields:  []string{"type", "taken"},
		SortFields: []string{"taken", "type"},
	},
	{
		Name:        "labs",
		RPC:         "ORWLRR INTERIM",
		BuildParams: localIDParams,
		Parse: func(line string) (map[string]string, bool) {
			test := piece(line, 2)
			if test == "" {
				return nil, false
			}
			return map[string]string{
				"test":      test,
				"result":    piece(line, 3),
				"units":     piece(line, 4),
				"flag":      piece(line, 5),
				"collected": fmDateISO(piece(line, 6)),
			}, true
		},
		KeyFields:  []string{"test", "collected"},
		SortFields: []string{"collected", "test"},
	},
	{
		Name:        "allergies",
		RPC:         "ORQQAL LIST",
		BuildParams: localIDParams,
		Parse: func(line string) (map[string]string, bool) {
			allergen := piece(line, 2)
			if allergen == "" {
				return nil, false
			}
			return map[string]string{
				"allergen": allergen,
				"reaction": piece(line, 3),
				"severity": piece(line, 4),
			}, true
		},
		KeyFields:  []string{"allergen"},
		SortFields: []string{"allergen"},
	},
	{
		Name:        "problems",
		RPC:         "ORQQPL PROBLEM LIST",
		BuildParams: localIDParams,
		Parse: func(line string) (map[string]string, bool) {
			problem := piece(line, 2)
			if problem == "" {
				return nil, false
			}
			return map[string]string{
				"problem": problem,
				"status":  piece(line, 3),
				"onset":   fmDateISO(piece(line, 4)),
			}, true
		},
		KeyFields:  []string{"problem", "onset"},
		SortFields: []string{"problem", "onset"},
	},
}

// DomainNames lists the built-in clinical domains in sorted order.
func DomainNames() []string {
	out := make([]string, len(builtinDomains))
	for i, d := range builtinDomains {
		out[i] = d.Name
	}
	sort.Strings(out)
	return out
}

func domainTable() map[string]Domain {
	table := make(map[string]Domain, len(builtinDomains))
	for _, d := range builtinDomains {
		table[d.Name] = d
	}
	return table
}
