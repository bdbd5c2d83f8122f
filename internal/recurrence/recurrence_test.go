package recurrence_test

import (
	"testing"
	"time"

	"github.com/poisvin/tusk/internal/domain"
	"github.com/poisvin/tusk/internal/recurrence"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func assertOrderedWithin(t *testing.T, dates []time.Time, anchor, horizon time.Time) {
	t.Helper()
	for i, d := range dates {
		if !d.After(anchor) {
			t.Fatalf("date %s not after anchor %s", d, anchor)
		}
		if d.After(horizon) {
			t.Fatalf("date %s past horizon %s", d, horizon)
		}
		if i > 0 && !dates[i-1].Before(d) {
			t.Fatalf("dates not strictly ascending at %d: %s then %s", i, dates[i-1], d)
		}
	}
}

func TestEvaluateDaily(t *testing.T) {
	anchor := date(2026, time.March, 10)
	dates, err := recurrence.Evaluate(anchor, domain.RecurrenceDaily, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertOrderedWithin(t, dates, anchor, recurrence.Horizon(anchor, domain.RecurrenceDaily))
	// March 11 through April 10 inclusive.
	if len(dates) != 31 {
		t.Fatalf("expected 31 daily occurrences, got %d", len(dates))
	}
	if !dates[0].Equal(date(2026, time.March, 11)) {
		t.Fatalf("first occurrence %s", dates[0])
	}
}

func TestEvaluateWeekdays(t *testing.T) {
	anchor := date(2026, time.March, 10)
	dates, err := recurrence.Evaluate(anchor, domain.RecurrenceWeekdays, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(dates) == 0 {
		t.Fatal("expected occurrences")
	}
	for _, d := range dates {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("weekend date %s in weekdays rule", d)
		}
	}
}

func TestEvaluateWeekends(t *testing.T) {
	anchor := date(2026, time.March, 10)
	dates, err := recurrence.Evaluate(anchor, domain.RecurrenceWeekends, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(dates) == 0 {
		t.Fatal("expected occurrences")
	}
	for _, d := range dates {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			t.Fatalf("weekday date %s in weekends rule", d)
		}
	}
}

func TestEvaluateWeeklySameWeekday(t *testing.T) {
	anchor := date(2026, time.March, 10) // a Tuesday
	dates, err := recurrence.Evaluate(anchor, domain.RecurrenceWeekly, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(dates) < 4 || len(dates) > 5 {
		t.Fatalf("expected 4-5 weekly occurrences, got %d", len(dates))
	}
	for _, d := range dates {
		if d.Weekday() != time.Tuesday {
			t.Fatalf("expected Tuesday, got %s on %s", d.Weekday(), d)
		}
	}
}

func TestEvaluateWeeklyWithDaySet(t *testing.T) {
	anchor := date(2026, time.March, 2) // a Monday
	days := []string{"monday", "wednesday", "friday"}
	dates, err := recurrence.Evaluate(anchor, domain.RecurrenceWeekly, days)
	if err != nil {
		t.Fatal(err)
	}
	assertOrderedWithin(t, dates, anchor, recurrence.Horizon(anchor, domain.RecurrenceWeekly))
	allowed := map[time.Weekday]bool{time.Monday: true, time.Wednesday: true, time.Friday: true}
	for _, d := range dates {
		if !allowed[d.Weekday()] {
			t.Fatalf("unexpected weekday %s on %s", d.Weekday(), d)
		}
		if d.Equal(anchor) {
			t.Fatalf("anchor date included in result")
		}
	}
	// The anchor's own week still contributes its later days.
	if !dates[0].Equal(date(2026, time.March, 4)) {
		t.Fatalf("expected first occurrence Wed Mar 4, got %s", dates[0])
	}
}

func TestEvaluateWeeklyUnknownDayName(t *testing.T) {
	_, err := recurrence.Evaluate(date(2026, time.March, 2), domain.RecurrenceWeekly, []string{"funday"})
	if err == nil {
		t.Fatal("expected error for unknown weekday name")
	}
}

func TestEvaluateMonthlyClampsEndOfMonth(t *testing.T) {
	anchor := date(2026, time.January, 31)
	dates, err := recurrence.Evaluate(anchor, domain.RecurrenceMonthly, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(dates) != 12 {
		t.Fatalf("expected 12 monthly occurrences, got %d", len(dates))
	}
	if !dates[0].Equal(date(2026, time.February, 28)) {
		t.Fatalf("expected Feb 28 first, got %s", dates[0])
	}
	if !dates[1].Equal(date(2026, time.March, 31)) {
		t.Fatalf("expected Mar 31 second, got %s", dates[1])
	}
	if !dates[11].Equal(date(2027, time.January, 31)) {
		t.Fatalf("expected Jan 31 last, got %s", dates[11])
	}
}

func TestEvaluateOneTime(t *testing.T) {
	dates, err := recurrence.Evaluate(date(2026, time.March, 10), domain.RecurrenceOneTime, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(dates) != 0 {
		t.Fatalf("expected no occurrences for one_time, got %d", len(dates))
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	anchor := date(2026, time.March, 2)
	a, err := recurrence.Evaluate(anchor, domain.RecurrenceWeekly, []string{"monday", "friday"})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := recurrence.Evaluate(anchor, domain.RecurrenceWeekly, []string{"monday", "friday"})
	if len(a) != len(b) {
		t.Fatalf("re-evaluation changed result: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			t.Fatalf("re-evaluation changed date %d", i)
		}
	}
}

func TestNormalizeWeekdaysFromSaturday(t *testing.T) {
	got, err := recurrence.Normalize(date(2026, time.March, 7), domain.RecurrenceWeekdays, nil) // Saturday
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(date(2026, time.March, 9)) {
		t.Fatalf("expected Monday Mar 9, got %s", got)
	}
}

func TestNormalizeWeekendsFromWednesday(t *testing.T) {
	got, err := recurrence.Normalize(date(2026, time.March, 4), domain.RecurrenceWeekends, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(date(2026, time.March, 7)) {
		t.Fatalf("expected Saturday Mar 7, got %s", got)
	}
}

func TestNormalizeWeeklyDaySet(t *testing.T) {
	// Tuesday anchor, rule wants Thursday/Friday.
	got, err := recurrence.Normalize(date(2026, time.March, 3), domain.RecurrenceWeekly, []string{"thursday", "friday"})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(date(2026, time.March, 5)) {
		t.Fatalf("expected Thursday Mar 5, got %s", got)
	}
}

func TestNormalizeLeavesDailyAndMonthly(t *testing.T) {
	anchor := date(2026, time.March, 7)
	for _, rule := range []domain.Recurrence{domain.RecurrenceDaily, domain.RecurrenceMonthly, domain.RecurrenceWeekly} {
		got, err := recurrence.Normalize(anchor, rule, nil)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(anchor) {
			t.Fatalf("rule %s moved anchor to %s", rule, got)
		}
	}
}

func TestAddMonthsClamping(t *testing.T) {
	cases := []struct {
		in     time.Time
		months int
		want   time.Time
	}{
		{date(2026, time.January, 31), 1, date(2026, time.February, 28)},
		{date(2024, time.January, 31), 1, date(2024, time.February, 29)},
		{date(2026, time.January, 31), 3, date(2026, time.April, 30)},
		{date(2026, time.March, 15), 1, date(2026, time.April, 15)},
		{date(2024, time.February, 29), 12, date(2025, time.February, 28)},
	}
	for _, c := range cases {
		if got := recurrence.AddMonths(c.in, c.months); !got.Equal(c.want) {
			t.Fatalf("AddMonths(%s, %d) = %s, want %s", c.in, c.months, got, c.want)
		}
	}
}
