package aggregate

import (
	"testing"
)

func medDomain(t *testing.T) Domain {
	t.Helper()
	d, ok := domainTable()["medications"]
	if !ok {
		t.Fatal("medications domain not registered")
	}
	return d
}

func TestMergeCollapsesDuplicatesAcrossSites(t *testing.T) {
	d := medDomain(t)
	perSite := map[string][]Entry{
		"640": {{Site: "640", Fields: map[string]string{"name": "METFORMIN TAB", "dosage": "500MG", "start": "2024-01-15"}}},
		"500": {{Site: "500", Fields: map[string]string{"name": "METFORMIN TAB", "dosage": "500MG", "start": "2024-01-15"}}},
	}

	merged, conflicts := mergeDomain(d, perSite, CompletenessPolicy{PrimarySite: "500"})
	if len(merged) != 1 {
		t.Fatalf("merged entries = %d, want 1", len(merged))
	}
	if len(conflicts) != 0 {
		t.Fatalf("conflicts = %d, want 0", len(conflicts))
	}
	e := merged[0]
	if len(e.Sources) != 2 || e.Sources[0] != "500" || e.Sources[1] != "640" {
		t.Fatalf("sources = %v, want [500 640]", e.Sources)
	}
}

func TestMergeFlagsFieldConflictOnce(t *testing.T) {
	d := medDomain(t)
	perSite := map[string][]Entry{
		"500": {{Site: "500", Fields: map[string]string{"name": "METFORMIN TAB", "dosage": "500MG", "start": "2024-01-15"}}},
		"640": {{Site: "640", Fields: map[string]string{"name": "METFORMIN TAB", "dosage": "850MG", "start": "2024-01-15"}}},
	}

	merged, conflicts := mergeDomain(d, perSite, CompletenessPolicy{PrimarySite: "500"})
	if len(merged) != 1 {
		t.Fatalf("merged entries = %d, want exactly 1", len(merged))
	}
	if merged[0].Fields["dosage"] != "500MG" {
		t.Fatalf("elected dosage = %q, want primary site's 500MG", merged[0].Fields["dosage"])
	}
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %d, want exactly 1", len(conflicts))
	}
	c := conflicts[0]
	if c.Domain != "medications" || c.Field != "dosage" {
		t.Fatalf("conflict = %+v", c)
	}
	if c.Values["500"] != "500MG" || c.Values["640"] != "850MG" {
		t.Fatalf("conflict values = %v", c.Values)
	}
}

func TestMergeThreeSiteConflictNamesTrueReportingSites(t *testing.T) {
	d := medDomain(t)
	perSite := map[string][]Entry{
		"500": {{Site: "500", Fields: map[string]string{"name": "METFORMIN TAB", "dosage": "500MG", "start": "2024-01-15"}}},
		"640": {{Site: "640", Fields: map[string]string{"name": "METFORMIN TAB", "dosage": "850MG", "start": "2024-01-15"}}},
		"688": {{Site: "688", Fields: map[string]string{"name": "METFORMIN TAB", "dosage": "1000MG", "start": "2024-01-15"}}},
	}

	merged, conflicts := mergeDomain(d, perSite, CompletenessPolicy{PrimarySite: "640"})
	if len(merged) != 1 {
		t.Fatalf("merged entries = %d, want 1", len(merged))
	}
	if merged[0].Fields["dosage"] != "850MG" {
		t.Fatalf("elected dosage = %q, want primary site's 850MG", merged[0].Fields["dosage"])
	}
	if len(conflicts) != 2 {
		t.Fatalf("conflicts = %d, want 2", len(conflicts))
	}

	first := conflicts[0]
	if first.Values["500"] != "500MG" || first.Values["640"] != "850MG" {
		t.Fatalf("first conflict values = %v", first.Values)
	}
	// The primary's 850MG won the first election, so the second conflict is
	// between site 640's held value and site 688's new one. Site 500 must
	// not be named as the source of a value it never reported.
	second := conflicts[1]
	if second.Values["640"] != "850MG" || second.Values["688"] != "1000MG" {
		t.Fatalf("second conflict values = %v", second.Values)
	}
	if _, ok := second.Values["500"]; ok {
		t.Fatalf("second conflict misattributes a value to site 500: %v", second.Values)
	}
}

func TestMergeDoesNotMutateInputEntries(t *testing.T) {
	d := medDomain(t)
	sparse := map[string]string{"name": "LISINOPRIL TAB", "dosage": "", "start": "2023-06-01"}
	perSite := map[string][]Entry{
		"500": {{Site: "500", Fields: sparse}},
		"640": {{Site: "640", Fields: map[string]string{"name": "LISINOPRIL TAB", "dosage": "10MG", "start": "2023-06-01"}}},
	}

	merged, _ := mergeDomain(d, perSite, CompletenessPolicy{PrimarySite: "500"})
	if merged[0].Fields["dosage"] != "10MG" {
		t.Fatalf("merged dosage = %q", merged[0].Fields["dosage"])
	}
	if sparse["dosage"] != "" {
		t.Fatalf("input entry mutated: dosage = %q", sparse["dosage"])
	}
}

func TestMergeFillsBlanksWithoutFlagging(t *testing.T) {
	d := medDomain(t)
	perSite := map[string][]Entry{
		"500": {{Site: "500", Fields: map[string]string{"name": "LISINOPRIL TAB", "dosage": "", "start": "2023-06-01"}}},
		"640": {{Site: "640", Fields: map[string]string{"name": "LISINOPRIL TAB", "dosage": "10MG", "start": "2023-06-01"}}},
	}

	merged, conflicts := mergeDomain(d, perSite, CompletenessPolicy{PrimarySite: "500"})
	if len(conflicts) != 0 {
		t.Fatalf("filling a blank flagged a conflict: %+v", conflicts)
	}
	if merged[0].Fields["dosage"] != "10MG" {
		t.Fatalf("dosage = %q, want blank filled with 10MG", merged[0].Fields["dosage"])
	}
}

func TestMergeOutputOrderIsDeterministic(t *testing.T) {
	d := medDomain(t)
	perSite := map[string][]Entry{
		"640": {
			{Site: "640", Fields: map[string]string{"name": "WARFARIN TAB", "dosage": "5MG", "start": "2024-02-01"}},
			{Site: "640", Fields: map[string]string{"name": "ASPIRIN TAB", "dosage": "81MG", "start": "2024-03-01"}},
		},
		"500": {
			{Site: "500", Fields: map[string]string{"name": "METFORMIN TAB", "dosage": "500MG", "start": "2024-01-15"}},
		},
	}

	merged, _ := mergeDomain(d, perSite, CompletenessPolicy{PrimarySite: "500"})
	want := []string{"ASPIRIN TAB", "METFORMIN TAB", "WARFARIN TAB"}
	for i, name := range want {
		if merged[i].Fields["name"] != name {
			t.Fatalf("position %d = %q, want %q", i, merged[i].Fields["name"], name)
		}
	}
}

func TestCompletenessPolicyElectsHeader(t *testing.T) {
	policy := CompletenessPolicy{PrimarySite: "500"}

	fuller := Demographics{Site: "640", Name: "AGGREGATE,PATIENT", Sex: "M", DOB: "1945-03-01", SSN: "666120001"}
	sparser := Demographics{Site: "500", Name: "AGGREGATE,PATIENT", Sex: "M", DOB: "1945-03-01"}
	if got := policy.PickDemographics([]Demographics{sparser, fuller}); got.Site != "640" {
		t.Fatalf("completeness should outrank primary site, elected %q", got.Site)
	}

	tied := Demographics{Site: "640", Name: "AGGREGATE,PATIENT", Sex: "M", DOB: "1945-03-01", SSN: "666120001"}
	primary := Demographics{Site: "500", Name: "AGGREGATE,PATIENT", Sex: "M", DOB: "1945-03-01", SSN: "666120001"}
	if got := policy.PickDemographics([]Demographics{tied, primary}); got.Site != "500" {
		t.Fatalf("primary site should break completeness ties, elected %q", got.Site)
	}
}
