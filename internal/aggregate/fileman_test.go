package aggregate

import (
	"testing"
	"time"
)

func TestParseFMDate(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"3251104", time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC)},
		{"2450301", time.Date(1945, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"3251104.1430", time.Date(2025, 11, 4, 14, 30, 0, 0, time.UTC)},
		{"3251104.143022", time.Date(2025, 11, 4, 14, 30, 22, 0, time.UTC)},
		// imprecise historical dates store zero month or day
		{"3250000", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := ParseFMDate(tc.in)
		if err != nil {
			t.Fatalf("ParseFMDate(%q): %v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("ParseFMDate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseFMDateRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "325", "20251104", "325110x", "3251301", "3251104.999999"} {
		if _, err := ParseFMDate(in); err == nil {
			t.Fatalf("ParseFMDate(%q): want error", in)
		}
	}
}

func TestFMDateISOPassesUnparseableThrough(t *testing.T) {
	if got := fmDateISO("UNKNOWN"); got != "UNKNOWN" {
		t.Fatalf("fmDateISO passthrough = %q", got)
	}
	if got := fmDateISO("3251104"); got != "2025-11-04" {
		t.Fatalf("fmDateISO date = %q", got)
	}
	if got := fmDateISO("3251104.1430"); got != "2025-11-04T14:30:00Z" {
		t.Fatalf("fmDateISO datetime = %q", got)
	}
}

func TestAgeAtCountsWholeYears(t *testing.T) {
	birth := time.Date(1945, 3, 1, 0, 0, 0, 0, time.UTC)
	if got := ageAt(birth, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)); got != 79 {
		t.Fatalf("age before anniversary = %d, want 79", got)
	}
	if got := ageAt(birth, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)); got != 80 {
		t.Fatalf("age on anniversary = %d, want 80", got)
	}
}

func TestPieceNeverFaults(t *testing.T) {
	line := "7218^METFORMIN TAB^500MG"
	if got := piece(line, 2); got != "METFORMIN TAB" {
		t.Fatalf("piece 2 = %q", got)
	}
	if got := piece(line, 9); got != "" {
		t.Fatalf("piece past end = %q, want empty", got)
	}
	if got := piece(line, 0); got != "" {
		t.Fatalf("piece 0 = %q, want empty", got)
	}
}
