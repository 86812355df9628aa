package timeparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"
	"golang.org/x/text/unicode/norm"
)

// CanonicalLayout is the layout FormatAbsolute produces and ParseAbsolute accepts back.
const CanonicalLayout = "02/01/2006 at 15:04"

// FormatAbsolute renders t in the canonical wizard form, e.g. "25/12/2026 at 09:00".
func FormatAbsolute(t time.Time) string { return t.Format(CanonicalLayout) }

var (
	reTomorrow = regexp.MustCompile(`\b(?:tmrw?|tmw|tomorrow)\b`)
	reToday    = regexp.MustCompile(`\b(?:today|tdy)\b`)
	reSpaces   = regexp.MustCompile(`\s+`)

	reClock    = regexp.MustCompile(`(?:\bat\s+)?\b(\d{1,2}):(\d{2})(?:\s*([ap])\.?m\.?)?(?:[,\s]|$)`)
	reMeridiem = regexp.MustCompile(`(?:\bat\s+)?\b(\d{1,2})\s*([ap])\.?m\.?(?:[,\s]|$)`)
	reNamedTOD = regexp.MustCompile(`(?:\bat\s+)?\b(noon|midday|midnight)\b`)

	reDMY     = regexp.MustCompile(`^(\d{1,2})[/.-](\d{1,2})(?:[/.-](\d{2}|\d{4}))?$`)
	reISO     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	reDayMon  = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?([a-z]+)(?:,?\s+(\d{4}))?$`)
	reMonDay  = regexp.MustCompile(`^([a-z]+)\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?$`)
	reMonYear = regexp.MustCompile(`^([a-z]+)(?:\s+(\d{4}))?$`)
	reWeekday = regexp.MustCompile(`^(next\s+|this\s+)?([a-z]+)$`)
)

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

type clockTime struct {
	hour, min int
	set       bool
}

// ParseAbsolute resolves a day expression with an optional time of day to an
// instant in loc. now anchors relative words ("today", "next monday") and the
// future-preference rules:
//   - a bare time that already passed today resolves to tomorrow
//   - a day and month without a year that already passed resolves to next year
//   - a month with no day resolves to the first of that month
//
// A missing time of day keeps the wall clock of now.
func ParseAbsolute(text string, loc *time.Location, now time.Time) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)

	s := strings.ToLower(norm.NFKC.String(text))
	s = reSpaces.ReplaceAllString(strings.TrimSpace(s), " ")
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", ErrInvalid)
	}
	s = reTomorrow.ReplaceAllString(s, "tomorrow")
	s = reToday.ReplaceAllString(s, "today")

	if rest, ok := strings.CutPrefix(s, "in "); ok {
		iv, err := ParseInterval(rest)
		if err != nil {
			return time.Time{}, err
		}
		return iv.AddTo(now)
	}

	day, tod, err := splitTimeOfDay(s)
	if err != nil {
		return time.Time{}, err
	}
	day = strings.Trim(day, " ,")
	day = strings.TrimPrefix(day, "on ")
	day = strings.TrimSuffix(day, " at")
	day = strings.TrimSpace(day)

	clock := tod
	if !clock.set {
		clock = clockTime{hour: now.Hour(), min: now.Minute()}
	}
	at := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, clock.hour, clock.min, 0, 0, loc)
	}

	switch day {
	case "":
		if !tod.set {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalid, text)
		}
		t := at(now.Year(), now.Month(), now.Day())
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	case "today":
		return at(now.Year(), now.Month(), now.Day()), nil
	case "tomorrow":
		n := now.AddDate(0, 0, 1)
		return at(n.Year(), n.Month(), n.Day()), nil
	}

	if m := reISO.FindStringSubmatch(day); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return exactDate(y, time.Month(mo), d, at)
	}
	if m := reDMY.FindStringSubmatch(day); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		if m[3] == "" {
			return futureDate(now, time.Month(mo), d, at)
		}
		y, _ := strconv.Atoi(m[3])
		if len(m[3]) == 2 {
			y += 2000
		}
		return exactDate(y, time.Month(mo), d, at)
	}
	if m := reDayMon.FindStringSubmatch(day); m != nil {
		if mo, ok := monthNames[m[2]]; ok {
			d, _ := strconv.Atoi(m[1])
			return withOptionalYear(now, mo, d, m[3], at)
		}
	}
	if m := reMonDay.FindStringSubmatch(day); m != nil {
		if mo, ok := monthNames[m[1]]; ok {
			d, _ := strconv.Atoi(m[2])
			return withOptionalYear(now, mo, d, m[3], at)
		}
	}
	if m := reMonYear.FindStringSubmatch(day); m != nil {
		if mo, ok := monthNames[m[1]]; ok {
			return withOptionalYear(now, mo, 1, m[2], at)
		}
	}
	if m := reWeekday.FindStringSubmatch(day); m != nil {
		if wd, ok := weekdayNames[m[2]]; ok {
			ahead := (int(wd) - int(now.Weekday()) + 7) % 7
			t := at(now.Year(), now.Month(), now.Day()).AddDate(0, 0, ahead)
			if ahead == 0 && (strings.HasPrefix(m[1], "next") || !t.After(now)) {
				t = t.AddDate(0, 0, 7)
			}
			return t, nil
		}
	}
	return parseWithDateparser(day, loc, now, at)
}

// parseWithDateparser handles full dates the fixed grammar does not know
// ("december 25th, 2026", "25 de diciembre de 2026"). Strict parsing keeps
// fragments such as a lone day number from resolving to some date.
func parseWithDateparser(day string, loc *time.Location, now time.Time, at func(int, time.Month, int) time.Time) (time.Time, error) {
	cfg := &dps.Configuration{
		CurrentTime:         now,
		DefaultTimezone:     loc,
		DateOrder:           dps.DMY,
		PreferredDayOfMonth: dps.First,
		PreferredDateSource: dps.Future,
		StrictParsing:       true,
	}
	dt, err := dps.Parse(cfg, day)
	if err != nil || dt.Time.IsZero() {
		return time.Time{}, fmt.Errorf("%w: unrecognised date %q", ErrInvalid, day)
	}
	y, m, d := dt.Time.In(loc).Date()
	return exactDate(y, m, d, at)
}

// splitTimeOfDay removes the first time-of-day phrase from s and returns what is left.
func splitTimeOfDay(s string) (string, clockTime, error) {
	if loc := reClock.FindStringSubmatchIndex(s); loc != nil {
		h, _ := strconv.Atoi(s[loc[2]:loc[3]])
		mi, _ := strconv.Atoi(s[loc[4]:loc[5]])
		mer := ""
		if loc[6] >= 0 {
			mer = s[loc[6]:loc[7]]
		}
		ct, err := makeClock(h, mi, mer)
		if err != nil {
			return "", clockTime{}, err
		}
		return s[:loc[0]] + " " + s[loc[1]:], ct, nil
	}
	if loc := reMeridiem.FindStringSubmatchIndex(s); loc != nil {
		h, _ := strconv.Atoi(s[loc[2]:loc[3]])
		ct, err := makeClock(h, 0, s[loc[4]:loc[5]])
		if err != nil {
			return "", clockTime{}, err
		}
		return s[:loc[0]] + " " + s[loc[1]:], ct, nil
	}
	if loc := reNamedTOD.FindStringSubmatchIndex(s); loc != nil {
		ct := clockTime{hour: 12, set: true}
		if s[loc[2]:loc[3]] == "midnight" {
			ct.hour = 0
		}
		return s[:loc[0]] + " " + s[loc[1]:], ct, nil
	}
	return s, clockTime{}, nil
}

func makeClock(h, m int, meridiem string) (clockTime, error) {
	if m > 59 {
		return clockTime{}, fmt.Errorf("%w: minute %d out of range", ErrInvalid, m)
	}
	switch meridiem {
	case "":
		if h > 23 {
			return clockTime{}, fmt.Errorf("%w: hour %d out of range", ErrInvalid, h)
		}
	case "a", "p":
		if h < 1 || h > 12 {
			return clockTime{}, fmt.Errorf("%w: hour %d out of range", ErrInvalid, h)
		}
		if h == 12 {
			h = 0
		}
		if meridiem == "p" {
			h += 12
		}
	}
	return clockTime{hour: h, min: m, set: true}, nil
}

func exactDate(y int, m time.Month, d int, at func(int, time.Month, int) time.Time) (time.Time, error) {
	if m < time.January || m > time.December || d < 1 || d > daysIn(y, m) {
		return time.Time{}, fmt.Errorf("%w: date %02d/%02d/%04d does not exist", ErrInvalid, d, int(m), y)
	}
	return at(y, m, d), nil
}

// futureDate picks the next occurrence of day/month that is after now.
func futureDate(now time.Time, m time.Month, d int, at func(int, time.Month, int) time.Time) (time.Time, error) {
	if m < time.January || m > time.December || d < 1 || d > 31 {
		return time.Time{}, fmt.Errorf("%w: day %d of month %d", ErrInvalid, d, int(m))
	}
	// 29/02 may need a few years to exist again.
	for y := now.Year(); y <= now.Year()+8; y++ {
		if d > daysIn(y, m) {
			continue
		}
		if t := at(y, m, d); t.After(now) {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: day %d of month %d", ErrInvalid, d, int(m))
}

func withOptionalYear(now time.Time, m time.Month, d int, year string, at func(int, time.Month, int) time.Time) (time.Time, error) {
	if year == "" {
		return futureDate(now, m, d, at)
	}
	y, _ := strconv.Atoi(year)
	return exactDate(y, m, d, at)
}
