package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/poisvin/tusk/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const taskColumns = `id,title,description,scheduled_date,start_time,end_time,status,priority,category,recurrence,weekly_days,recurrence_parent_id,remind,carried_over,original_date,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var description, startTime, endTime, weeklyDays, parentID, originalDate sql.NullString
	var status, priority, category, recurrence, remind, carriedOver int
	err := row.Scan(&t.ID, &t.Title, &description, &t.ScheduledDate, &startTime, &endTime,
		&status, &priority, &category, &recurrence, &weeklyDays, &parentID,
		&remind, &carriedOver, &originalDate, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if startTime.Valid {
		t.StartTime = &startTime.String
	}
	if endTime.Valid {
		t.EndTime = &endTime.String
	}
	if parentID.Valid {
		t.RecurrenceParentID = &parentID.String
	}
	if originalDate.Valid {
		t.OriginalDate = &originalDate.String
	}
	if weeklyDays.Valid && weeklyDays.String != "" {
		if err := json.Unmarshal([]byte(weeklyDays.String), &t.WeeklyDays); err != nil {
			return t, fmt.Errorf("decode weekly_days for task %s: %w", t.ID, err)
		}
	}
	if t.Status, err = domain.StatusFromCode(status); err != nil {
		return t, err
	}
	if t.Priority, err = domain.PriorityFromCode(priority); err != nil {
		return t, err
	}
	if t.Category, err = domain.CategoryFromCode(category); err != nil {
		return t, err
	}
	if t.Recurrence, err = domain.RecurrenceFromCode(recurrence); err != nil {
		return t, err
	}
	t.Remind = remind != 0
	t.CarriedOver = carriedOver != 0
	return t, nil
}

func weeklyDaysJSON(days []string) any {
	if len(days) == 0 {
		return nil
	}
	b, _ := json.Marshal(days)
	return string(b)
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), t.ScheduledDate, nullableStringPtr(t.StartTime), nullableStringPtr(t.EndTime),
		t.Status.Code(), t.Priority.Code(), t.Category.Code(), t.Recurrence.Code(), weeklyDaysJSON(t.WeeklyDays),
		nullableStringPtr(t.RecurrenceParentID), boolInt(t.Remind), boolInt(t.CarriedOver), nullableStringPtr(t.OriginalDate),
		t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, scheduled_date=?, start_time=?, end_time=?, status=?, priority=?, category=?, recurrence=?, weekly_days=?, remind=?, carried_over=?, original_date=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.ScheduledDate, nullableStringPtr(t.StartTime), nullableStringPtr(t.EndTime),
		t.Status.Code(), t.Priority.Code(), t.Category.Code(), t.Recurrence.Code(), weeklyDaysJSON(t.WeeklyDays),
		boolInt(t.Remind), boolInt(t.CarriedOver), nullableStringPtr(t.OriginalDate), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err != nil {
		return t, err
	}
	t.TagIDs, err = r.TagIDsForTask(ctx, t.ID)
	return t, err
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	t, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err != nil {
		return t, err
	}
	t.TagIDs, err = tagIDsForTask(ctx, tx, t.ID)
	return t, err
}

type TaskFilters struct {
	Date        string
	Status      string
	Recurrence  string
	ParentID    string
	CarriedOver *bool
	Limit       int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Date != "" {
		clauses = append(clauses, "scheduled_date=?")
		args = append(args, f.Date)
	}
	if f.Status != "" {
		st, err := domain.ParseStatus(f.Status)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, "status=?")
		args = append(args, st.Code())
	}
	if f.Recurrence != "" {
		rec, err := domain.ParseRecurrence(f.Recurrence)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, "recurrence=?")
		args = append(args, rec.Code())
	}
	if f.ParentID != "" {
		clauses = append(clauses, "recurrence_parent_id=?")
		args = append(args, f.ParentID)
	}
	if f.CarriedOver != nil {
		clauses = append(clauses, "carried_over=?")
		args = append(args, boolInt(*f.CarriedOver))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY scheduled_date ASC, created_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListSeries returns the root plus every child, ordered by date.
func (r Repo) ListSeries(ctx context.Context, rootID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=? OR recurrence_parent_id=? ORDER BY scheduled_date ASC, id ASC`, rootID, rootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// SeriesDatesTx returns the set of scheduled dates already present in a
// series, root included.
func (r Repo) SeriesDatesTx(ctx context.Context, tx *sql.Tx, rootID string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT scheduled_date FROM tasks WHERE id=? OR recurrence_parent_id=?`, rootID, rootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	dates := map[string]bool{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates[d] = true
	}
	return dates, rows.Err()
}

func (r Repo) HasChildren(ctx context.Context, id string) (bool, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT 1 FROM tasks WHERE recurrence_parent_id=? LIMIT 1`, id)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}

// FutureMemberIDsTx lists ids of series members dated strictly after a
// cutoff, excluding the given task.
func (r Repo) FutureMemberIDsTx(ctx context.Context, tx *sql.Tx, rootID, excludeID, afterDate string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM tasks WHERE (id=? OR recurrence_parent_id=?) AND id != ? AND scheduled_date > ?`,
		rootID, rootID, excludeID, afterDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SharedFields carries the sync-eligible columns of a series edit; nil
// fields are left untouched on targets.
type SharedFields struct {
	Title       *string
	Description *string
	StartTime   *string
	EndTime     *string
	Priority    *domain.Priority
	Category    *domain.Category
}

func (f SharedFields) Empty() bool {
	return f.Title == nil && f.Description == nil && f.StartTime == nil &&
		f.EndTime == nil && f.Priority == nil && f.Category == nil
}

// OverwriteSharedFields is a plain column write used by series sync. It
// never touches status, recurrence, or schedule columns, and it does not
// pass back through the engine's update pipeline.
func (r Repo) OverwriteSharedFields(ctx context.Context, tx *sql.Tx, ids []string, f SharedFields, updatedAt string) error {
	if len(ids) == 0 || f.Empty() {
		return nil
	}
	var sets []string
	var args []any
	if f.Title != nil {
		sets = append(sets, "title=?")
		args = append(args, *f.Title)
	}
	if f.Description != nil {
		sets = append(sets, "description=?")
		args = append(args, nullable(*f.Description))
	}
	if f.StartTime != nil {
		sets = append(sets, "start_time=?")
		args = append(args, nullable(*f.StartTime))
	}
	if f.EndTime != nil {
		sets = append(sets, "end_time=?")
		args = append(args, nullable(*f.EndTime))
	}
	if f.Priority != nil {
		sets = append(sets, "priority=?")
		args = append(args, f.Priority.Code())
	}
	if f.Category != nil {
		sets = append(sets, "category=?")
		args = append(args, f.Category.Code())
	}
	sets = append(sets, "updated_at=?")
	args = append(args, updatedAt)

	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id IN (%s)`, strings.Join(sets, ","), placeholders), args...)
	return err
}

// DeleteFutureIncompleteChildrenTx removes a root's children dated after
// the cutoff whose status is not done. The status filter sits inside the
// single DELETE so completed future work cannot be lost to a racing
// status change.
func (r Repo) DeleteFutureIncompleteChildrenTx(ctx context.Context, tx *sql.Tx, rootID, afterDate string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE recurrence_parent_id=? AND scheduled_date > ? AND status != ?`,
		rootID, afterDate, domain.StatusDone.Code())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CarryOverDueTx moves incomplete one-off tasks dated before target onto
// it, stamping carried_over and the first pre-carry date. One statement,
// so a sweep either applies completely or not at all.
func (r Repo) CarryOverDueTx(ctx context.Context, tx *sql.Tx, target, updatedAt string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE tasks
SET original_date = COALESCE(original_date, scheduled_date),
    scheduled_date = ?,
    carried_over = 1,
    updated_at = ?
WHERE scheduled_date < ?
  AND status != ?
  AND carried_over = 0
  AND recurrence = ?`,
		target, updatedAt, target, domain.StatusDone.Code(), domain.RecurrenceOneTime.Code())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
