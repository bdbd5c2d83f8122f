package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/poisvin/tusk/internal/config"
	"github.com/poisvin/tusk/internal/domain"
	"github.com/poisvin/tusk/internal/events"
	"github.com/poisvin/tusk/internal/recurrence"
	"github.com/poisvin/tusk/internal/repo"
)

// Engine owns every task mutation. Each exported operation runs in a
// single write transaction, which is what serializes generation, sync,
// and regeneration for a series.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) today() string {
	return domain.FormatDate(e.now().UTC())
}

// appendEvent writes an audit row stamped with the engine's clock, so
// an injected Now also pins event timestamps.
func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	w.Now = e.now
	return w.Append(ctx, tx, evtType, entityID, actorID, payload)
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID            string
	Title         string
	Description   string
	ScheduledDate string
	StartTime     string
	EndTime       string
	Status        string
	Priority      string
	Category      string
	Recurrence    string
	WeeklyDays    []string
	Remind        bool
	TagIDs        []string
	ActorID       string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.ScheduledDate == "" {
		return domain.Task{}, errors.New("scheduled date is required")
	}
	anchor, err := domain.ParseDate(opts.ScheduledDate)
	if err != nil {
		return domain.Task{}, fmt.Errorf("scheduled date: %w", err)
	}

	status := domain.StatusBacklog
	if opts.Status != "" {
		if status, err = domain.ParseStatus(opts.Status); err != nil {
			return domain.Task{}, err
		}
	}
	priority := e.Config.DefaultPriority()
	if opts.Priority != "" {
		if priority, err = domain.ParsePriority(opts.Priority); err != nil {
			return domain.Task{}, err
		}
	}
	category := e.Config.DefaultCategory()
	if opts.Category != "" {
		if category, err = domain.ParseCategory(opts.Category); err != nil {
			return domain.Task{}, err
		}
	}
	rule := domain.RecurrenceOneTime
	if opts.Recurrence != "" {
		if rule, err = domain.ParseRecurrence(opts.Recurrence); err != nil {
			return domain.Task{}, err
		}
	}
	for _, day := range opts.WeeklyDays {
		if _, err := domain.ParseWeekday(day); err != nil {
			return domain.Task{}, err
		}
	}

	// A fresh recurring root gets its anchor moved to the first date
	// that satisfies its own rule. Existing roots are never re-normalized.
	if rule != domain.RecurrenceOneTime {
		anchor, err = recurrence.Normalize(anchor, rule, opts.WeeklyDays)
		if err != nil {
			return domain.Task{}, err
		}
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:            id,
		Title:         opts.Title,
		Description:   opts.Description,
		ScheduledDate: domain.FormatDate(anchor),
		StartTime:     optionalString(opts.StartTime),
		EndTime:       optionalString(opts.EndTime),
		Status:        status,
		Priority:      priority,
		Category:      category,
		Recurrence:    rule,
		WeeklyDays:    opts.WeeklyDays,
		Remind:        opts.Remind,
		TagIDs:        opts.TagIDs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if len(t.TagIDs) > 0 {
		if err := e.Repo.AddTaskTags(ctx, tx, t.ID, t.TagIDs); err != nil {
			return domain.Task{}, err
		}
	}
	if err := e.appendEvent(ctx, tx, "task.created", t.ID, opts.ActorID, events.EventPayload{
		"title":      t.Title,
		"recurrence": t.Recurrence,
	}); err != nil {
		return domain.Task{}, err
	}
	if t.Recurrence != domain.RecurrenceOneTime {
		created, err := e.generateSeries(ctx, tx, t)
		if err != nil {
			return domain.Task{}, err
		}
		if err := e.appendEvent(ctx, tx, "series.generated", t.ID, opts.ActorID, events.EventPayload{
			"count": created,
		}); err != nil {
			return domain.Task{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdateOptions encapsulates allowed updates; nil fields are left
// unchanged, so the engine sees the exact field delta of an edit.
type TaskUpdateOptions struct {
	ID            string
	Title         *string
	Description   *string
	ScheduledDate *string
	StartTime     *string
	EndTime       *string
	Status        *string
	Priority      *string
	Category      *string
	Recurrence    *string
	WeeklyDays    *[]string
	Remind        *bool
	TagIDs        *[]string
	ActorID       string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return t, err
	}
	original := t

	var shared repo.SharedFields
	if opts.Title != nil && *opts.Title != t.Title {
		if *opts.Title == "" {
			return t, errors.New("title is required")
		}
		t.Title = *opts.Title
		shared.Title = opts.Title
	}
	if opts.Description != nil && *opts.Description != t.Description {
		t.Description = *opts.Description
		shared.Description = opts.Description
	}
	if opts.StartTime != nil && !equalOptional(opts.StartTime, t.StartTime) {
		t.StartTime = optionalString(*opts.StartTime)
		shared.StartTime = opts.StartTime
	}
	if opts.EndTime != nil && !equalOptional(opts.EndTime, t.EndTime) {
		t.EndTime = optionalString(*opts.EndTime)
		shared.EndTime = opts.EndTime
	}
	if opts.Priority != nil {
		p, err := domain.ParsePriority(*opts.Priority)
		if err != nil {
			return t, err
		}
		if p != t.Priority {
			t.Priority = p
			shared.Priority = &p
		}
	}
	if opts.Category != nil {
		c, err := domain.ParseCategory(*opts.Category)
		if err != nil {
			return t, err
		}
		if c != t.Category {
			t.Category = c
			shared.Category = &c
		}
	}

	statusChanged := false
	if opts.Status != nil {
		st, err := domain.ParseStatus(*opts.Status)
		if err != nil {
			return t, err
		}
		if st != t.Status {
			t.Status = st
			statusChanged = true
		}
	}
	if opts.ScheduledDate != nil && *opts.ScheduledDate != t.ScheduledDate {
		if _, err := domain.ParseDate(*opts.ScheduledDate); err != nil {
			return t, fmt.Errorf("scheduled date: %w", err)
		}
		t.ScheduledDate = *opts.ScheduledDate
	}
	if opts.Remind != nil {
		t.Remind = *opts.Remind
	}

	ruleChanged := false
	if opts.Recurrence != nil {
		rec, err := domain.ParseRecurrence(*opts.Recurrence)
		if err != nil {
			return t, err
		}
		if rec != t.Recurrence {
			t.Recurrence = rec
			ruleChanged = true
		}
	}
	if opts.WeeklyDays != nil && !equalStrings(*opts.WeeklyDays, t.WeeklyDays) {
		for _, day := range *opts.WeeklyDays {
			if _, err := domain.ParseWeekday(day); err != nil {
				return t, err
			}
		}
		t.WeeklyDays = *opts.WeeklyDays
		ruleChanged = true
	}

	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if opts.TagIDs != nil {
		if err := e.Repo.ReplaceTaskTags(ctx, tx, t.ID, *opts.TagIDs); err != nil {
			return t, err
		}
		t.TagIDs = *opts.TagIDs
	}

	// Rule changes on the root rebuild the series; shared-field edits
	// ripple forward. The two triggers are mutually exclusive.
	switch {
	case ruleChanged && t.IsRoot():
		deleted, created, err := e.regenerateSeries(ctx, tx, t)
		if err != nil {
			return t, err
		}
		if err := e.appendEvent(ctx, tx, "series.regenerated", t.ID, opts.ActorID, events.EventPayload{
			"deleted": deleted,
			"created": created,
		}); err != nil {
			return t, err
		}
	case !shared.Empty() && !statusChanged && !ruleChanged:
		synced, err := e.syncSeries(ctx, tx, t, shared)
		if err != nil {
			return t, err
		}
		if synced > 0 {
			if err := e.appendEvent(ctx, tx, "series.synced", t.ID, opts.ActorID, events.EventPayload{
				"targets": synced,
			}); err != nil {
				return t, err
			}
		}
	}

	if err := e.appendEvent(ctx, tx, "task.updated", t.ID, opts.ActorID, events.EventPayload{
		"from_status": original.Status,
		"to_status":   t.Status,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// DeleteTask removes a task; deleting a root takes its children with it.
func (e Engine) DeleteTask(ctx context.Context, id, actorID string) error {
	if _, err := e.Repo.GetTask(ctx, id); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, "task.deleted", id, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateTag registers a tag.
func (e Engine) CreateTag(ctx context.Context, name, color, actorID string) (domain.Tag, error) {
	if name == "" {
		return domain.Tag{}, errors.New("name is required")
	}
	tag := domain.Tag{
		ID:        uuid.New().String(),
		Name:      name,
		Color:     color,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertTag(ctx, tag.ID, tag.Name, tag.Color, tag.CreatedAt); err != nil {
		return domain.Tag{}, err
	}
	return tag, nil
}

// SetTags replaces a task's tag set without touching the series.
func (e Engine) SetTags(ctx context.Context, taskID string, tagIDs []string, actorID string) error {
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return err
	}
	for _, tagID := range tagIDs {
		if _, err := e.Repo.GetTag(ctx, tagID); err != nil {
			return fmt.Errorf("tag %s: %w", tagID, err)
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.ReplaceTaskTags(ctx, tx, taskID, tagIDs); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, "task.updated", taskID, actorID, events.EventPayload{"tags": len(tagIDs)}); err != nil {
		return err
	}
	return tx.Commit()
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func equalOptional(a *string, b *string) bool {
	av := ""
	if a != nil {
		av = *a
	}
	bv := ""
	if b != nil {
		bv = *b
	}
	return av == bv
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
