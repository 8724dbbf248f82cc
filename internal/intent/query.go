package intent

import (
	"strings"
	"time"
)

// Query is the structured search request extracted from one mention.
// Only DateRange is attached after creation.
type Query struct {
	RawText     string
	PodcastName string
	Keywords    string
	DateHint    string
	DateRange   *DateRange
}

// Empty reports whether the query names neither a podcast nor keywords.
// Empty queries must not be sent to the search API.
func (q *Query) Empty() bool {
	return q == nil || (strings.TrimSpace(q.PodcastName) == "" && strings.TrimSpace(q.Keywords) == "")
}

// DateRange bounds a search by calendar day. Either bound may be absent;
// both are inclusive and stored as midnight UTC.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// IsZero reports whether neither bound is set.
func (r *DateRange) IsZero() bool {
	return r == nil || (r.Start == nil && r.End == nil)
}

// Inverted reports whether both bounds are set and the start lies after the end.
func (r *DateRange) Inverted() bool {
	return r != nil && r.Start != nil && r.End != nil && r.Start.After(*r.End)
}

func (r *DateRange) String() string {
	if r.IsZero() {
		return ""
	}
	var start, end string
	if r.Start != nil {
		start = r.Start.Format(time.DateOnly)
	}
	if r.End != nil {
		end = r.End.Format(time.DateOnly)
	}
	return start + ".." + end
}

// day truncates t to midnight UTC of its calendar date.
func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func span(start, end time.Time) *DateRange {
	s, e := day(start), day(end)
	return &DateRange{Start: &s, End: &e}
}

// point covers a single resolved instant: the day itself and the next one.
func point(t time.Time) *DateRange {
	return span(t, day(t).AddDate(0, 0, 1))
}
