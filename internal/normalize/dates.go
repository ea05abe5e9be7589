package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// zonedLayouts carry a time and offset; they are converted to the local
// calendar before truncation so an RSS pubDate late in the UTC evening lands
// on the correct Hong Kong day.
var zonedLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// civilLayouts are plain calendar dates.
var civilLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"2 January 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"02.01.2006",
}

var (
	isoPrefix   = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})[-/](\d{1,2})`)
	dmyPrefix   = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})`)
	cjkDate     = regexp.MustCompile(`(\d{4})\s*年\s*(\d{1,2})\s*月\s*(\d{1,2})\s*日`)
	monthPrefix = regexp.MustCompile(`^(\d{1,2})[\s-]([A-Za-z]{3,9})[\s,-]+(\d{4})`)
)

// ParseDate parses the date formats seen across HK and SG sources and
// returns the calendar date as midnight UTC. Ambiguous numeric dates are read
// day-first, which is the convention in both jurisdictions.
func ParseDate(raw string, loc *time.Location) (time.Time, bool) {
	s := strings.Join(strings.Fields(raw), " ")
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if layout == "2006-01-02T15:04:05" || layout == "2006-01-02 15:04:05" {
				t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
			}
			return civil(t.In(loc)), true
		}
	}
	for _, layout := range civilLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil(t), true
		}
	}

	// Dates followed by a time or a note, e.g. "30/06/2026 12:00 noon".
	if m := isoPrefix.FindStringSubmatch(s); m != nil {
		return fromParts(m[1], m[2], m[3])
	}
	if m := dmyPrefix.FindStringSubmatch(s); m != nil {
		return fromParts(m[3], m[2], m[1])
	}
	if m := cjkDate.FindStringSubmatch(s); m != nil {
		return fromParts(m[1], m[2], m[3])
	}
	if m := monthPrefix.FindStringSubmatch(s); m != nil {
		if mon, ok := monthByName(m[2]); ok {
			return fromParts(m[3], strconv.Itoa(int(mon)), m[1])
		}
	}
	return time.Time{}, false
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// fromParts validates the calendar triple; time.Date would silently roll
// 31 April over to 1 May.
func fromParts(year, month, day string) (time.Time, bool) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, false
	}
	return t, true
}

func monthByName(name string) (time.Month, bool) {
	n := strings.ToLower(name)
	if len(n) < 3 {
		return 0, false
	}
	for m := time.January; m <= time.December; m++ {
		full := strings.ToLower(m.String())
		if n == full || n == full[:3] || (n == "sept" && m == time.September) {
			return m, true
		}
	}
	return 0, false
}
