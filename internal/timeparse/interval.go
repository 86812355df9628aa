package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalid is returned when text cannot be resolved to a date/time or interval.
var ErrInvalid = errors.New("timeparse: invalid expression")

// Unit is a recurrence unit. Units are ordered from largest to smallest.
type Unit int

const (
	Year Unit = iota
	Month
	Week
	Day
	Hour
	Minute
	Second
)

var unitNames = [...]string{"year", "month", "week", "day", "hour", "minute", "second"}

func (u Unit) String() string {
	if u < Year || u > Second {
		return "unit(" + strconv.Itoa(int(u)) + ")"
	}
	return unitNames[u]
}

// Calendar reports whether the unit is applied with calendar arithmetic.
func (u Unit) Calendar() bool { return u <= Day }

// unitAliases mirrors the abbreviations people actually type.
var unitAliases = map[string]Unit{
	"y": Year, "ys": Year, "yr": Year, "yrs": Year, "year": Year, "years": Year,
	"mo": Month, "mos": Month, "mth": Month, "mths": Month, "month": Month, "months": Month,
	"w": Week, "wk": Week, "wks": Week, "week": Week, "weeks": Week,
	"d": Day, "dy": Day, "dys": Day, "day": Day, "days": Day,
	"h": Hour, "hr": Hour, "hrs": Hour, "hour": Hour, "hours": Hour,
	"m": Minute, "min": Minute, "mins": Minute, "minute": Minute, "minutes": Minute,
	"s": Second, "sec": Second, "secs": Second, "second": Second, "seconds": Second,
}

// Component is one "<amount> <unit>" part of an interval.
type Component struct {
	Amount float64
	Unit   Unit
}

func (c Component) String() string {
	s := strconv.FormatFloat(c.Amount, 'f', -1, 64) + " " + c.Unit.String()
	if c.Amount != 1 {
		s += "s"
	}
	return s
}

// Interval is a normalised recurrence period: at most one component per unit,
// ordered year → second, with no zero amounts.
type Interval []Component

// String renders the canonical form, e.g. "1 month, 2 days".
func (iv Interval) String() string {
	parts := make([]string, 0, len(iv))
	for _, c := range iv {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, ", ")
}

// Upper bounds on an interval. They keep the summed clock part inside
// time.Duration and calendar arithmetic inside a sane year range.
const (
	maxIntervalMonths = 12 * 1000
	maxIntervalDays   = 366 * 1000
	maxIntervalClock  = 100 * 366 * 24 * time.Hour
)

var (
	reIntervalPart = regexp.MustCompile(`^\s*(\d*\.?\d+)?\s*([a-z]+)`)
	reIntervalSep  = regexp.MustCompile(`\s*(?:[,/]|\band\b)\s*`)
)

// ParseInterval reads any supported interval text (including canonical output)
// into an Interval.
func ParseInterval(text string) (Interval, error) {
	s := strings.ToLower(strings.TrimSpace(norm.NFKC.String(text)))
	if s == "" {
		return nil, fmt.Errorf("%w: empty interval", ErrInvalid)
	}
	s = reIntervalSep.ReplaceAllString(s, " ")

	var (
		amounts [len(unitNames)]float64
		seen    [len(unitNames)]bool
		order   []Unit
		bare    bool
	)
	rest := s
	for strings.TrimSpace(rest) != "" {
		m := reIntervalPart.FindStringSubmatch(rest)
		if m == nil {
			return nil, fmt.Errorf("%w: unexpected %q", ErrInvalid, strings.TrimSpace(rest))
		}
		unit, ok := unitAliases[m[2]]
		if !ok {
			return nil, fmt.Errorf("%w: unknown unit %q", ErrInvalid, m[2])
		}
		amount := 1.0
		if m[1] == "" {
			bare = true
		} else {
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad amount %q", ErrInvalid, m[1])
			}
			amount = v
		}
		if (unit == Year || unit == Month) && amount != float64(int64(amount)) {
			return nil, fmt.Errorf("%w: %s must be a whole number", ErrInvalid, unitNames[unit]+"s")
		}
		if !seen[unit] {
			order = append(order, unit)
		}
		seen[unit] = true
		amounts[unit] += amount
		rest = rest[len(m[0]):]
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("%w: no unit", ErrInvalid)
	}
	// A number-less unit is only meaningful on its own ("day", "week").
	if bare && len(order) > 1 {
		return nil, fmt.Errorf("%w: missing amount", ErrInvalid)
	}

	var iv Interval
	leading := true
	for u := Year; u <= Second; u++ {
		if !seen[u] {
			continue
		}
		if amounts[u] == 0 {
			if leading {
				return nil, fmt.Errorf("%w: leading amount is zero", ErrInvalid)
			}
			continue
		}
		leading = false
		iv = append(iv, Component{Amount: amounts[u], Unit: u})
	}
	if err := checkBounds(amounts); err != nil {
		return nil, err
	}
	if len(iv) == 0 || iv.effectivelyZero() {
		return nil, fmt.Errorf("%w: interval is zero", ErrInvalid)
	}
	return iv, nil
}

func checkBounds(a [len(unitNames)]float64) error {
	if a[Year]*12+a[Month] > maxIntervalMonths {
		return fmt.Errorf("%w: interval too long", ErrInvalid)
	}
	if a[Week]*7+a[Day] > maxIntervalDays {
		return fmt.Errorf("%w: interval too long", ErrInvalid)
	}
	clock := a[Hour]*3600 + a[Minute]*60 + a[Second]
	if clock > maxIntervalClock.Seconds() {
		return fmt.Errorf("%w: interval too long", ErrInvalid)
	}
	return nil
}

// NormaliseInterval returns the canonical "n unit[s]" string for text.
func NormaliseInterval(text string) (string, error) {
	iv, err := ParseInterval(text)
	if err != nil {
		return "", err
	}
	return iv.String(), nil
}

// AddInterval applies a canonical interval to base.
func AddInterval(canonical string, base time.Time) (time.Time, error) {
	iv, err := ParseInterval(canonical)
	if err != nil {
		return time.Time{}, err
	}
	return iv.AddTo(base)
}

// AddTo applies calendar components first (years and months clamp the day of
// month, weeks and days keep the wall clock), then clock components as exact
// durations. Sub-day fractions of calendar units are dropped. The result is
// always strictly after base.
func (iv Interval) AddTo(base time.Time) (time.Time, error) {
	years, months, days, clock := iv.split()
	t := base
	if years != 0 || months != 0 {
		t = addMonthsClamped(t, years*12+months)
	}
	if days != 0 {
		t = t.AddDate(0, 0, days)
	}
	t = t.Add(clock)
	if !t.After(base) {
		return time.Time{}, fmt.Errorf("%w: %s does not move %s forward", ErrInvalid, iv, base.Format(time.RFC3339))
	}
	return t, nil
}

func (iv Interval) split() (years, months, days int, clock time.Duration) {
	for _, c := range iv {
		switch c.Unit {
		case Year:
			years += int(c.Amount)
		case Month:
			months += int(c.Amount)
		case Week:
			days += int(c.Amount * 7)
		case Day:
			days += int(c.Amount)
		case Hour:
			clock += time.Duration(c.Amount * float64(time.Hour))
		case Minute:
			clock += time.Duration(c.Amount * float64(time.Minute))
		case Second:
			clock += time.Duration(c.Amount * float64(time.Second))
		}
	}
	return years, months, days, clock
}

func (iv Interval) effectivelyZero() bool {
	y, m, d, c := iv.split()
	return y == 0 && m == 0 && d == 0 && c <= 0
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + months
	ny := y + floorDiv(total, 12)
	nm := time.Month(total-floorDiv(total, 12)*12 + 1)
	if last := daysIn(ny, nm); d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(ny, nm, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func daysIn(year int, m time.Month) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
