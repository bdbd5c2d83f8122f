package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/poisvin/tusk/internal/domain"
	"github.com/poisvin/tusk/internal/events"
	"github.com/poisvin/tusk/internal/recurrence"
	"github.com/poisvin/tusk/internal/repo"
)

// generateSeries creates the missing future occurrences of a recurring
// root. Idempotent: dates already present in the series are skipped, so
// re-running with the same root never duplicates a row.
func (e Engine) generateSeries(ctx context.Context, tx *sql.Tx, root domain.Task) (int, error) {
	if root.Recurrence == domain.RecurrenceOneTime {
		return 0, nil
	}
	anchor, err := domain.ParseDate(root.ScheduledDate)
	if err != nil {
		return 0, fmt.Errorf("root %s anchor: %w", root.ID, err)
	}
	dates, err := recurrence.Evaluate(anchor, root.Recurrence, root.WeeklyDays)
	if err != nil {
		return 0, err
	}
	rootID := root.RootID()
	existing, err := e.Repo.SeriesDatesTx(ctx, tx, rootID)
	if err != nil {
		return 0, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	created := 0
	for _, date := range dates {
		key := domain.FormatDate(date)
		if existing[key] {
			continue
		}
		child := domain.Task{
			ID:                 uuid.New().String(),
			Title:              root.Title,
			Description:        root.Description,
			ScheduledDate:      key,
			StartTime:          root.StartTime,
			EndTime:            root.EndTime,
			Status:             domain.StatusBacklog,
			Priority:           root.Priority,
			Category:           root.Category,
			Recurrence:         root.Recurrence,
			WeeklyDays:         root.WeeklyDays,
			RecurrenceParentID: &rootID,
			Remind:             root.Remind,
			CarriedOver:        false,
			OriginalDate:       nil,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := e.Repo.InsertTask(ctx, tx, child); err != nil {
			return created, fmt.Errorf("insert occurrence %s: %w", key, err)
		}
		if len(root.TagIDs) > 0 {
			if err := e.Repo.AddTaskTags(ctx, tx, child.ID, root.TagIDs); err != nil {
				return created, err
			}
		}
		created++
	}
	return created, nil
}

// Generate tops up a root's series to its horizon, creating only the
// occurrences that are missing. Safe to re-run at any time.
func (e Engine) Generate(ctx context.Context, rootID, actorID string) (int, error) {
	root, err := e.Repo.GetTask(ctx, rootID)
	if err != nil {
		return 0, err
	}
	if !root.IsRoot() {
		return 0, fmt.Errorf("task %s is not a series root", rootID)
	}
	if root.Recurrence == domain.RecurrenceOneTime {
		return 0, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	created, err := e.generateSeries(ctx, tx, root)
	if err != nil {
		return 0, err
	}
	if err := e.appendEvent(ctx, tx, "series.generated", root.ID, actorID, events.EventPayload{"count": created}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return created, nil
}

// regenerateSeries rebuilds a root's future occurrences after its rule
// changed. Children dated after today that are not done are removed;
// completed future work survives. Runs only for roots.
func (e Engine) regenerateSeries(ctx context.Context, tx *sql.Tx, root domain.Task) (deleted int64, created int, err error) {
	deleted, err = e.Repo.DeleteFutureIncompleteChildrenTx(ctx, tx, root.ID, e.today())
	if err != nil {
		return 0, 0, err
	}
	created, err = e.generateSeries(ctx, tx, root)
	if err != nil {
		return deleted, created, err
	}
	return deleted, created, nil
}

// syncSeries propagates an edit's shared fields forward through the
// series. A child edit also lands on the root; members dated at or
// before the edited task are untouched, and status is never written.
func (e Engine) syncSeries(ctx context.Context, tx *sql.Tx, t domain.Task, shared repo.SharedFields) (int, error) {
	rootID := t.RootID()
	inSeries := !t.IsRoot()
	if !inSeries {
		children, err := e.Repo.HasChildren(ctx, t.ID)
		if err != nil {
			return 0, err
		}
		inSeries = children
	}
	if !inSeries {
		return 0, nil
	}
	targets, err := e.Repo.FutureMemberIDsTx(ctx, tx, rootID, t.ID, t.ScheduledDate)
	if err != nil {
		return 0, err
	}
	if !t.IsRoot() {
		seen := false
		for _, id := range targets {
			if id == rootID {
				seen = true
				break
			}
		}
		if !seen {
			targets = append(targets, rootID)
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}
	updatedAt := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.OverwriteSharedFields(ctx, tx, targets, shared, updatedAt); err != nil {
		return 0, err
	}
	return len(targets), nil
}
