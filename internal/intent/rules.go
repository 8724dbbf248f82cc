package intent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// RuleResolver recognizes date hints without the oracle. Explicit ranges in
// English or German (years, months, "last week", "letzten Monat", "between
// X and Y") are tried first; anything else goes through the when parser and
// a single point P becomes [P, P+1 day].
type RuleResolver struct {
	parser *when.Parser
}

// NewRuleResolver creates a RuleResolver with the English and common when rules.
func NewRuleResolver() *RuleResolver {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &RuleResolver{parser: w}
}

var (
	reBetween  = regexp.MustCompile(`^(?:between|zwischen|from|von|vom)\s+(.+?)\s+(?:and|und|to|till|until|bis(?:\s+zum)?)\s+(.+)$`)
	reISODate  = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	reDEDate   = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})$`)
	reYear     = regexp.MustCompile(`^(?:(?:im jahr|im|in|aus|from|of|year|jahr)\s+)?(\d{4})$`)
	reMonthNum = regexp.MustCompile(`^(\d{1,2})[/.](\d{4})$`)
	reYearMon  = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)
	reMonthNm  = regexp.MustCompile(`^(?:(?:im|in)\s+)?(\p{L}+)\.?(?:\s+(\d{4}))?$`)
	reRelative = regexp.MustCompile(`^(last|past|previous|this|current|letzte[nmrs]?|vergangene[nmrs]?|vorige[nmrs]?|diese[nmrs]?)\s+(week|month|year|woche|monat|jahr)$`)
	reHasYear  = regexp.MustCompile(`\b\d{4}\b`)
	reLastN    = regexp.MustCompile(`^(?:in the last|in the past|in den letzten|last|past|letzte[nm]?|vergangene[nm]?)\s+(\d+)\s+(days?|weeks?|months?|years?|tage[n]?|wochen|woche|monate[n]?|monat|jahre[n]?|jahr)$`)
)

var monthNames = map[string]time.Month{
	"january": time.January, "januar": time.January, "jan": time.January, "jänner": time.January,
	"february": time.February, "februar": time.February, "feb": time.February,
	"march": time.March, "märz": time.March, "maerz": time.March, "mar": time.March, "mär": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May, "mai": time.May,
	"june": time.June, "juni": time.June, "jun": time.June,
	"july": time.July, "juli": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oktober": time.October, "oct": time.October, "okt": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dezember": time.December, "dec": time.December, "dez": time.December,
}

func (r *RuleResolver) Resolve(_ context.Context, hint string, now time.Time) (*DateRange, error) {
	h := normalizeHint(hint)
	if h == "" {
		return nil, ErrNoDate
	}

	if m := reBetween.FindStringSubmatch(h); m != nil {
		dr := r.between(r.side(m[1], m[2], now), r.side(m[2], m[1], now))
		if dr.Inverted() {
			dr = r.between(r.single(m[1], now), r.single(m[2], now))
		}
		if dr.Inverted() {
			return nil, fmt.Errorf("%w: %q ends before it starts", ErrNoDate, hint)
		}
		if dr != nil {
			return dr, nil
		}
	}

	if dr := r.single(h, now); dr != nil {
		return dr, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoDate, hint)
}

func (r *RuleResolver) between(from, to *DateRange) *DateRange {
	if from == nil || to == nil {
		return nil
	}
	end := to.End
	if end == nil {
		end = to.Start
	}
	return &DateRange{Start: from.Start, End: end}
}

// side resolves one end of a "between" range. A side without a year takes
// the year named on the other side, so "März bis Mai 2024" stays in 2024.
func (r *RuleResolver) side(h, other string, now time.Time) *DateRange {
	if !reHasYear.MatchString(h) {
		if y := reHasYear.FindString(other); y != "" {
			if dr := r.single(h+" "+y, now); dr != nil {
				return dr
			}
		}
	}
	return r.single(h, now)
}

// single resolves a hint that names one period or one point in time.
func (r *RuleResolver) single(h string, now time.Time) *DateRange {
	if dr := explicitRange(h, now); dr != nil {
		return dr
	}
	res, err := r.parser.Parse(h, now)
	if err != nil || res == nil {
		return nil
	}
	return point(res.Time)
}

func explicitRange(h string, now time.Time) *DateRange {
	today := day(now)

	switch h {
	case "today", "heute":
		return point(today)
	case "yesterday", "gestern":
		return point(today.AddDate(0, 0, -1))
	case "vorgestern":
		return point(today.AddDate(0, 0, -2))
	}

	if m := reISODate.FindStringSubmatch(h); m != nil {
		if t, ok := date(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return point(t)
		}
		return nil
	}
	if m := reDEDate.FindStringSubmatch(h); m != nil {
		if t, ok := date(atoi(m[3]), atoi(m[2]), atoi(m[1])); ok {
			return point(t)
		}
		return nil
	}
	if m := reYear.FindStringSubmatch(h); m != nil {
		return yearRange(atoi(m[1]))
	}
	if m := reMonthNum.FindStringSubmatch(h); m != nil {
		return monthRange(atoi(m[2]), atoi(m[1]))
	}
	if m := reYearMon.FindStringSubmatch(h); m != nil {
		return monthRange(atoi(m[1]), atoi(m[2]))
	}
	if m := reMonthNm.FindStringSubmatch(h); m != nil {
		if month, ok := monthNames[m[1]]; ok {
			year := today.Year()
			if m[2] != "" {
				year = atoi(m[2])
			} else if month > today.Month() {
				year--
			}
			return monthRange(year, int(month))
		}
	}
	if m := reRelative.FindStringSubmatch(h); m != nil {
		previous := !strings.HasPrefix(m[1], "this") && !strings.HasPrefix(m[1], "current") && !strings.HasPrefix(m[1], "diese")
		return relativeRange(today, m[2], previous)
	}
	if m := reLastN.FindStringSubmatch(h); m != nil {
		n := atoi(m[1])
		var start time.Time
		switch unit := m[2]; {
		case strings.HasPrefix(unit, "day"), strings.HasPrefix(unit, "tag"):
			start = today.AddDate(0, 0, -n)
		case strings.HasPrefix(unit, "week"), strings.HasPrefix(unit, "woche"):
			start = today.AddDate(0, 0, -7*n)
		case strings.HasPrefix(unit, "month"), strings.HasPrefix(unit, "monat"):
			start = today.AddDate(0, -n, 0)
		default:
			start = today.AddDate(-n, 0, 0)
		}
		return span(start, today)
	}
	return nil
}

func relativeRange(today time.Time, unit string, previous bool) *DateRange {
	switch unit {
	case "week", "woche":
		monday := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))
		if previous {
			monday = monday.AddDate(0, 0, -7)
		}
		return span(monday, monday.AddDate(0, 0, 6))
	case "month", "monat":
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		if previous {
			first = first.AddDate(0, -1, 0)
		}
		return span(first, first.AddDate(0, 1, -1))
	default:
		year := today.Year()
		if previous {
			year--
		}
		return yearRange(year)
	}
}

func yearRange(year int) *DateRange {
	return span(
		time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	)
}

func monthRange(year, month int) *DateRange {
	if month < 1 || month > 12 {
		return nil
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return span(first, first.AddDate(0, 1, -1))
}

// date builds a calendar date, rejecting values time.Date would normalize.
func date(year, month, d int) (time.Time, bool) {
	t := time.Date(year, time.Month(month), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func normalizeHint(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, ".,;:!?")
	return strings.Join(strings.Fields(s), " ")
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
