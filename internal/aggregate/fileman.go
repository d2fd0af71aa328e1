package aggregate

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FileMan dates encode the year as years-since-1700, so "3251104" is
// 2025-11-04. A trailing ".HHMMSS" fragment carries the time of day and may
// be truncated at any point; missing components read as zero.
const filemanEpochYear = 1700

// ParseFMDate converts a FileMan date ("YYYMMDD" or "YYYMMDD.HHMMSS") into
// a time.Time. A month or day of zero is clamped to one, which is how the
// host systems store imprecise historical dates.
func ParseFMDate(s string) (time.Time, error) {
	datePart, timePart, _ := strings.Cut(s, ".")
	if len(datePart) != 7 {
		return time.Time{}, fmt.Errorf("fileman date %q: want 7 date digits", s)
	}
	yy, err1 := strconv.Atoi(datePart[:3])
	mm, err2 := strconv.Atoi(datePart[3:5])
	dd, err3 := strconv.Atoi(datePart[5:7])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, fmt.Errorf("fileman date %q: non-numeric component", s)
	}
	if mm > 12 || dd > 31 {
		return time.Time{}, fmt.Errorf("fileman date %q: component out of range", s)
	}
	if mm == 0 {
		mm = 1
	}
	if dd == 0 {
		dd = 1
	}

	hh, mi, ss := 0, 0, 0
	if timePart != "" {
		for len(timePart) < 6 {
			timePart += "0"
		}
		hh, err1 = strconv.Atoi(timePart[:2])
		mi, err2 = strconv.Atoi(timePart[2:4])
		ss, err3 = strconv.Atoi(timePart[4:6])
		if err1 != nil || err2 != nil || err3 != nil || hh > 23 || mi > 59 || ss > 59 {
			return time.Time{}, fmt.Errorf("fileman date %q: bad time fragment", s)
		}
	}

	return time.Date(filemanEpochYear+yy, time.Month(mm), dd, hh, mi, ss, 0, time.UTC), nil
}

// fmDateISO renders a FileMan date as ISO 8601. Unparseable input passes
// through untouched so a record never loses data to a formatting failure.
func fmDateISO(s string) string {
	if s == "" {
		return ""
	}
	t, err := ParseFMDate(s)
	if err != nil {
		return s
	}
	if strings.Contains(s, ".") {
		return t.Format("2006-01-02T15:04:05Z")
	}
	return t.Format("2006-01-02")
}

// ageAt derives whole years between birth and now.
func ageAt(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	anniversary := birth.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// piece returns the n-th caret-delimited piece of line, 1-based, or the
// empty string when the line is too short. Mirrors the host convention
// where $PIECE never faults on missing pieces.
func piece(line string, n int) string {
	parts := strings.Split(line, "^")
	if n < 1 || n > len(parts) {
		return ""
	}
	return strings.TrimSpace(parts[n-1])
}
