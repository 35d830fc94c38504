package models

import (
	"errors"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

var (
	ErrDateCount = errors.New("exactly two dates are required")
	ErrDateOrder = errors.New("start date is after end date")
)

// DateRange is an inclusive span of calendar days. Both ends are stored as
// midnight UTC; only their year/month/day carry meaning.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Date truncates t to its calendar day, keeping t's own wall clock.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewDateRange builds a range from exactly two dates with start <= end.
func NewDateRange(dates ...time.Time) (DateRange, error) {
	if len(dates) != 2 {
		return DateRange{}, fmt.Errorf("%w: got %d", ErrDateCount, len(dates))
	}
	start, end := Date(dates[0]), Date(dates[1])
	if start.After(end) {
		return DateRange{}, fmt.Errorf("%w: %s > %s", ErrDateOrder, start.Format(dateLayout), end.Format(dateLayout))
	}
	return DateRange{Start: start, End: end}, nil
}

// Days is the inclusive day count, (end - start) + 1.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Each calls fn for every day of the range, in order.
func (r DateRange) Each(fn func(day time.Time)) {
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		fn(d)
	}
}

// Contains reports whether the calendar day of t falls within the range.
func (r DateRange) Contains(t time.Time) bool {
	d := Date(t)
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r DateRange) String() string {
	return r.Start.Format(dateLayout) + "_" + r.End.Format(dateLayout)
}
