// Package recurrence expands recurrence rules into concrete occurrence
// dates. It is pure calendar arithmetic: no clock reads, no I/O.
package recurrence

import (
	"fmt"
	"sort"
	"time"

	"github.com/poisvin/tusk/internal/domain"
)

// Evaluate returns every occurrence date d with anchor < d <= horizon for
// the given rule, sorted ascending with no duplicates. The horizon is one
// calendar month past the anchor, except monthly rules which look one
// year ahead.
func Evaluate(anchor time.Time, rule domain.Recurrence, weeklyDays []string) ([]time.Time, error) {
	anchor = truncate(anchor)
	end := Horizon(anchor, rule)

	var dates []time.Time
	switch rule {
	case domain.RecurrenceOneTime:
		return nil, nil
	case domain.RecurrenceDaily:
		for d := anchor.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
			dates = append(dates, d)
		}
	case domain.RecurrenceWeekdays:
		for d := anchor.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
			if isWeekday(d) {
				dates = append(dates, d)
			}
		}
	case domain.RecurrenceWeekends:
		for d := anchor.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
			if isWeekend(d) {
				dates = append(dates, d)
			}
		}
	case domain.RecurrenceWeekly:
		if len(weeklyDays) == 0 {
			for d := anchor.AddDate(0, 0, 7); !d.After(end); d = d.AddDate(0, 0, 7) {
				dates = append(dates, d)
			}
			break
		}
		wanted, err := parseWeekdaySet(weeklyDays)
		if err != nil {
			return nil, err
		}
		for ws := weekStart(anchor); !ws.After(end); ws = ws.AddDate(0, 0, 7) {
			for i := 0; i < 7; i++ {
				d := ws.AddDate(0, 0, i)
				if !wanted[d.Weekday()] {
					continue
				}
				if d.After(anchor) && !d.After(end) {
					dates = append(dates, d)
				}
			}
		}
	case domain.RecurrenceMonthly:
		for i := 1; ; i++ {
			d := AddMonths(anchor, i)
			if d.After(end) {
				break
			}
			dates = append(dates, d)
		}
	default:
		return nil, fmt.Errorf("unknown recurrence rule %q", rule)
	}

	return dedupeSorted(dates), nil
}

// Normalize advances a new root's anchor to the nearest date satisfying
// its own rule. daily/monthly anchors and weekly rules without an
// explicit day set are returned unchanged.
func Normalize(anchor time.Time, rule domain.Recurrence, weeklyDays []string) (time.Time, error) {
	anchor = truncate(anchor)
	switch rule {
	case domain.RecurrenceWeekdays:
		for !isWeekday(anchor) {
			anchor = anchor.AddDate(0, 0, 1)
		}
	case domain.RecurrenceWeekends:
		for !isWeekend(anchor) {
			anchor = anchor.AddDate(0, 0, 1)
		}
	case domain.RecurrenceWeekly:
		if len(weeklyDays) == 0 {
			break
		}
		wanted, err := parseWeekdaySet(weeklyDays)
		if err != nil {
			return anchor, err
		}
		for !wanted[anchor.Weekday()] {
			anchor = anchor.AddDate(0, 0, 1)
		}
	}
	return anchor, nil
}

// Horizon returns the generation boundary for a rule's anchor.
func Horizon(anchor time.Time, rule domain.Recurrence) time.Time {
	if rule == domain.RecurrenceMonthly {
		return AddMonths(anchor, 12)
	}
	return AddMonths(anchor, 1)
}

// AddMonths adds calendar months, clamping the day to the target month's
// length (Jan 31 + 1 month = Feb 28/29). time.Time.AddDate would
// normalize overflow into the following month instead.
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// weekStart returns the Monday of t's week.
func weekStart(t time.Time) time.Time {
	offset := int(t.Weekday()-time.Monday+7) % 7
	return t.AddDate(0, 0, -offset)
}

func parseWeekdaySet(names []string) (map[time.Weekday]bool, error) {
	set := make(map[time.Weekday]bool, len(names))
	for _, name := range names {
		wd, err := domain.ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		set[wd] = true
	}
	return set, nil
}

func truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func dedupeSorted(dates []time.Time) []time.Time {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	out := dates[:0]
	for i, d := range dates {
		if i == 0 || !d.Equal(dates[i-1]) {
			out = append(out, d)
		}
	}
	return out
}
