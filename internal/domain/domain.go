package domain

import (
	"fmt"
	"time"
)

// DateLayout is the persisted form of calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// FormatDate renders a date in its persisted form.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusInProgress Status = "in_progress"
	StatusPartial    Status = "partial"
	StatusDone       Status = "done"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type Category string

const (
	CategoryPersonal Category = "personal"
	CategoryOfficial Category = "official"
)

type Recurrence string

const (
	RecurrenceOneTime  Recurrence = "one_time"
	RecurrenceDaily    Recurrence = "daily"
	RecurrenceWeekly   Recurrence = "weekly"
	RecurrenceMonthly  Recurrence = "monthly"
	RecurrenceWeekdays Recurrence = "weekdays"
	RecurrenceWeekends Recurrence = "weekends"
)

// Numeric codes are the persisted encoding; the order is part of the
// storage format and must not be rearranged.
var (
	statusCodes = map[Status]int{
		StatusBacklog:    0,
		StatusInProgress: 1,
		StatusPartial:    2,
		StatusDone:       3,
	}
	priorityCodes = map[Priority]int{
		PriorityLow:    0,
		PriorityMedium: 1,
		PriorityHigh:   2,
	}
	categoryCodes = map[Category]int{
		CategoryPersonal: 0,
		CategoryOfficial: 1,
	}
	recurrenceCodes = map[Recurrence]int{
		RecurrenceOneTime:  0,
		RecurrenceDaily:    1,
		RecurrenceWeekly:   2,
		RecurrenceMonthly:  3,
		RecurrenceWeekdays: 4,
		RecurrenceWeekends: 5,
	}

	statusFromCode     = invert(statusCodes)
	priorityFromCode   = invert(priorityCodes)
	categoryFromCode   = invert(categoryCodes)
	recurrenceFromCode = invert(recurrenceCodes)
)

func invert[K comparable](m map[K]int) map[int]K {
	out := make(map[int]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

func (s Status) Code() int     { return statusCodes[s] }
func (p Priority) Code() int   { return priorityCodes[p] }
func (c Category) Code() int   { return categoryCodes[c] }
func (r Recurrence) Code() int { return recurrenceCodes[r] }

func StatusFromCode(code int) (Status, error) {
	s, ok := statusFromCode[code]
	if !ok {
		return "", fmt.Errorf("unknown status code %d", code)
	}
	return s, nil
}

func PriorityFromCode(code int) (Priority, error) {
	p, ok := priorityFromCode[code]
	if !ok {
		return "", fmt.Errorf("unknown priority code %d", code)
	}
	return p, nil
}

func CategoryFromCode(code int) (Category, error) {
	c, ok := categoryFromCode[code]
	if !ok {
		return "", fmt.Errorf("unknown category code %d", code)
	}
	return c, nil
}

func RecurrenceFromCode(code int) (Recurrence, error) {
	r, ok := recurrenceFromCode[code]
	if !ok {
		return "", fmt.Errorf("unknown recurrence code %d", code)
	}
	return r, nil
}

func ParseStatus(s string) (Status, error) {
	v := Status(s)
	if _, ok := statusCodes[v]; !ok {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return v, nil
}

func ParsePriority(s string) (Priority, error) {
	v := Priority(s)
	if _, ok := priorityCodes[v]; !ok {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return v, nil
}

func ParseCategory(s string) (Category, error) {
	v := Category(s)
	if _, ok := categoryCodes[v]; !ok {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return v, nil
}

func ParseRecurrence(s string) (Recurrence, error) {
	v := Recurrence(s)
	if _, ok := recurrenceCodes[v]; !ok {
		return "", fmt.Errorf("unknown recurrence %q", s)
	}
	return v, nil
}

// Weekday names as persisted in weekly_days, lowercase English.
var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func ParseWeekday(name string) (time.Weekday, error) {
	d, ok := weekdayNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", name)
	}
	return d, nil
}

type Task struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	ScheduledDate      string     `json:"scheduled_date" format:"date"`
	StartTime          *string    `json:"start_time,omitempty"`
	EndTime            *string    `json:"end_time,omitempty"`
	Status             Status     `json:"status" enum:"backlog,in_progress,partial,done"`
	Priority           Priority   `json:"priority" enum:"low,medium,high"`
	Category           Category   `json:"category" enum:"personal,official"`
	Recurrence         Recurrence `json:"recurrence" enum:"one_time,daily,weekly,monthly,weekdays,weekends"`
	WeeklyDays         []string   `json:"weekly_days,omitempty"`
	RecurrenceParentID *string    `json:"recurrence_parent_id,omitempty"`
	Remind             bool       `json:"remind"`
	CarriedOver        bool       `json:"carried_over"`
	OriginalDate       *string    `json:"original_date,omitempty" format:"date"`
	TagIDs             []string   `json:"tag_ids,omitempty"`
	CreatedAt          string     `json:"created_at" format:"date-time"`
	UpdatedAt          string     `json:"updated_at" format:"date-time"`
}

// IsRoot reports whether the task owns its series (or is a one-off).
func (t Task) IsRoot() bool {
	return t.RecurrenceParentID == nil
}

// RootID resolves the id of the task's series root.
func (t Task) RootID() string {
	if t.RecurrenceParentID != nil {
		return *t.RecurrenceParentID
	}
	return t.ID
}

type Tag struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts" format:"date-time"`
	Type     string `json:"type"`
	EntityID string `json:"entity_id,omitempty"`
	ActorID  string `json:"actor_id"`
	Payload  string `json:"payload_json"`
}
