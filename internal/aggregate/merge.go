package aggregate

import (
	"sort"
	"strings"
)

// FieldValue is one site's value for one field of a contested entry.
type FieldValue struct {
	Site  string
	Value string
}

// MergePolicy decides which value wins a conflict. The election is only
// about what the merged entry carries; every conflict is flagged on the
// record regardless of who wins.
type MergePolicy interface {
	// PickDemographics elects one header from the per-site candidates.
	// Called with at least one candidate.
	PickDemographics(candidates []Demographics) Demographics
	// PickValue elects the winning value for one contested field.
	PickValue(domain, field string, a, b FieldValue) FieldValue
}

// CompletenessPolicy is the default election: the most complete answer
// wins, the primary site breaks ties, and the lowest site code breaks
// what remains.
type CompletenessPolicy struct {
	PrimarySite string
}

func (p CompletenessPolicy) PickDemographics(candidates []Demographics) Demographics {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if p.outranks(c, best) {
			best = c
		}
	}
	return best
}

func (p CompletenessPolicy) outranks(a, b Demographics) bool {
	if a.completeness() != b.completeness() {
		return a.completeness() > b.completeness()
	}
	if (a.Site == p.PrimarySite) != (b.Site == p.PrimarySite) {
		return a.Site == p.PrimarySite
	}
	return a.Site < b.Site
}

func (p CompletenessPolicy) PickValue(domain, field string, a, b FieldValue) FieldValue {
	if (a.Site == p.PrimarySite) != (b.Site == p.PrimarySite) {
		if a.Site == p.PrimarySite {
			return a
		}
		return b
	}
	if a.Site <= b.Site {
		return a
	}
	return b
}

// mergeDomain folds per-site entries into one deduplicated list. Entries
// sharing the domain's key fields collapse into a single entry; any field
// where two sites disagree is elected by the policy and flagged. Sites are
// folded in code order so the output never depends on response arrival.
func mergeDomain(d Domain, perSite map[string][]Entry, policy MergePolicy) ([]Entry, []ConflictFlag) {
	sites := make([]string, 0, len(perSite))
	for site := range perSite {
		sites = append(sites, site)
	}
	sort.Strings(sites)

	merged := make(map[string]*Entry)
	// provenance tracks, per merged entry, which site reported the value
	// currently held in each field. Conflict flags must name the true
	// reporting sites even after an earlier election replaced a value.
	provenance := make(map[string]map[string]string)
	var order []string
	var conflicts []ConflictFlag

	for _, site := range sites {
		for _, in := range perSite[site] {
			k := in.key(d)
			existing, ok := merged[k]
			if !ok {
				cp := in
				cp.Fields = make(map[string]string, len(in.Fields))
				prov := make(map[string]string, len(in.Fields))
				for f, v := range in.Fields {
					cp.Fields[f] = v
					if v != "" {
						prov[f] = in.Site
					}
				}
				cp.Sources = []string{in.Site}
				merged[k] = &cp
				provenance[k] = prov
				order = append(order, k)
				continue
			}
			conflicts = append(conflicts, foldEntry(d, k, existing, provenance[k], in, policy)...)
		}
	}

	out := make([]Entry, 0, len(order))
	for _, k := range order {
		out = append(out, *merged[k])
	}
	sortEntries(d, out)
	return out, conflicts
}

// foldEntry absorbs a duplicate into the existing merged entry, filling
// blanks and flagging disagreements. prov maps each held field to the site
// that reported its current value and is updated as elections land.
func foldEntry(d Domain, key string, dst *Entry, prov map[string]string, in Entry, policy MergePolicy) []ConflictFlag {
	dst.Sources = append(dst.Sources, in.Site)

	fields := make([]string, 0, len(dst.Fields)+len(in.Fields))
	seen := make(map[string]bool)
	for f := range dst.Fields {
		fields = append(fields, f)
		seen[f] = true
	}
	for f := range in.Fields {
		if !seen[f] {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)

	var flags []ConflictFlag
	for _, f := range fields {
		have, got := dst.Fields[f], in.Fields[f]
		switch {
		case got == "" || have == got:
			// nothing to reconcile
		case have == "":
			dst.Fields[f] = got
			prov[f] = in.Site
		default:
			holder := prov[f]
			win := policy.PickValue(d.Name, f,
				FieldValue{Site: holder, Value: have},
				FieldValue{Site: in.Site, Value: got})
			dst.Fields[f] = win.Value
			prov[f] = win.Site
			flags = append(flags, ConflictFlag{
				Domain: d.Name,
				Key:    key,
				Field:  f,
				Values: map[string]string{holder: have, in.Site: got},
			})
		}
	}
	return flags
}

func sortEntries(d Domain, entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		for _, f := range d.SortFields {
			a, b := entries[i].Fields[f], entries[j].Fields[f]
			if a != b {
				return strings.ToUpper(a) < strings.ToUpper(b)
			}
		}
		return entries[i].Site < entries[j].Site
	})
}
