package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/poisvin/tusk/internal/domain"
	"github.com/poisvin/tusk/internal/events"
)

// Sweep carries incomplete one-off tasks dated before targetDate onto
// it. Recurring roots and occurrences are excluded; they get fresh
// future rows from the generator instead. The whole sweep is one
// transaction and one UPDATE, so a failure leaves nothing half-carried
// and re-running with the same target is a no-op.
func (e Engine) Sweep(ctx context.Context, targetDate, actorID string) (int64, error) {
	if targetDate == "" {
		targetDate = e.today()
	}
	if _, err := domain.ParseDate(targetDate); err != nil {
		return 0, fmt.Errorf("target date: %w", err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	updatedAt := e.now().UTC().Format(time.RFC3339)
	carried, err := e.Repo.CarryOverDueTx(ctx, tx, targetDate, updatedAt)
	if err != nil {
		return 0, err
	}
	if err := e.appendEvent(ctx, tx, "sweep.completed", "", actorID, events.EventPayload{
		"target_date": targetDate,
		"carried":     carried,
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return carried, nil
}
