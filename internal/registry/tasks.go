package registry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

func (s *Store) ListTasks(ctx context.Context) ([]Task, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, task_name, task_prompt
FROM tasks
ORDER BY task_name ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Task, 0, 8)
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.TaskName, &t.TaskPrompt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if id <= 0 {
		return nil, errors.New("invalid task id")
	}

	var t Task
	err := s.db.QueryRowContext(ctx, `
SELECT id, task_name, task_prompt FROM tasks WHERE id = ?
`, id).Scan(&t.ID, &t.TaskName, &t.TaskPrompt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) GetTaskByName(ctx context.Context, name string) (*Task, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("missing task_name")
	}

	var t Task
	err := s.db.QueryRowContext(ctx, `
SELECT id, task_name, task_prompt FROM tasks WHERE task_name = ?
`, name).Scan(&t.ID, &t.TaskName, &t.TaskPrompt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) UpsertTask(ctx context.Context, t Task) (*Task, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	t.TaskName = strings.TrimSpace(t.TaskName)
	if t.TaskName == "" {
		return nil, errors.New("missing task_name")
	}

	if t.ID > 0 {
		res, err := s.db.ExecContext(ctx, `
UPDATE tasks SET task_name = ?, task_prompt = ? WHERE id = ?
`, t.TaskName, t.TaskPrompt, t.ID)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return &t, nil
		}
	}

	var existingID int64
	err := s.db.QueryRowContext(ctx, `
SELECT id FROM tasks WHERE task_name = ?
`, t.TaskName).Scan(&existingID)
	switch {
	case err == nil:
		t.ID = existingID
		_, err = s.db.ExecContext(ctx, `UPDATE tasks SET task_prompt = ? WHERE id = ?`, t.TaskPrompt, existingID)
		if err != nil {
			return nil, err
		}
		return &t, nil
	case errors.Is(err, sql.ErrNoRows):
		res, err := s.db.ExecContext(ctx, `INSERT INTO tasks(task_name, task_prompt) VALUES(?, ?)`, t.TaskName, t.TaskPrompt)
		if err != nil {
			return nil, err
		}
		t.ID, _ = res.LastInsertId()
		return &t, nil
	default:
		return nil, err
	}
}

func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if id <= 0 {
		return errors.New("invalid task id")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteTaskByName(ctx context.Context, name string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("missing task_name")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE task_name = ?`, name)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
