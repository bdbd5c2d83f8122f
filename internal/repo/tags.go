package repo

import (
	"context"
	"database/sql"

	"github.com/poisvin/tusk/internal/domain"
)

func (r Repo) InsertTag(ctx context.Context, id, name, color, createdAt string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tags(id,name,color,created_at) VALUES (?,?,?,?)`,
		id, name, nullable(color), createdAt)
	return err
}

func (r Repo) GetTag(ctx context.Context, id string) (domain.Tag, error) {
	var t domain.Tag
	var color sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,color,created_at FROM tags WHERE id=?`, id).
		Scan(&t.ID, &t.Name, &color, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if color.Valid {
		t.Color = color.String
	}
	return t, err
}

func (r Repo) ListTags(ctx context.Context) ([]domain.Tag, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,color,created_at FROM tags ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tag
	for rows.Next() {
		var t domain.Tag
		var color sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &color, &t.CreatedAt); err != nil {
			return nil, err
		}
		if color.Valid {
			t.Color = color.String
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) TagIDsForTask(ctx context.Context, taskID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT tag_id FROM task_tags WHERE task_id=? ORDER BY tag_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

func tagIDsForTask(ctx context.Context, tx *sql.Tx, taskID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT tag_id FROM task_tags WHERE task_id=? ORDER BY tag_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

func collectIDs(rows *sql.Rows) ([]string, error) {
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

// AddTaskTags attaches tags, ignoring ones already present.
func (r Repo) AddTaskTags(ctx context.Context, tx *sql.Tx, taskID string, tagIDs []string) error {
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_tags(task_id,tag_id) VALUES (?,?)`, taskID, tagID); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceTaskTags overwrites a task's tag set.
func (r Repo) ReplaceTaskTags(ctx context.Context, tx *sql.Tx, taskID string, tagIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id=?`, taskID); err != nil {
		return err
	}
	return r.AddTaskTags(ctx, tx, taskID, tagIDs)
}
