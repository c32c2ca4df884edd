package registry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

func (s *Store) ListModels(ctx context.Context) ([]Model, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, provider_id, model_name, display_name, extra_info, supports_reasoning
FROM models
ORDER BY provider_id ASC, model_name ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Model, 0, 8)
	for rows.Next() {
		var m Model
		var reasoning int
		if err := rows.Scan(&m.ID, &m.ProviderID, &m.ModelName, &m.DisplayName, &m.ExtraInfo, &reasoning); err != nil {
			return nil, err
		}
		m.SupportsReasoning = reasoning != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) GetModel(ctx context.Context, id int64) (*Model, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if id <= 0 {
		return nil, errors.New("invalid model id")
	}

	var m Model
	var reasoning int
	err := s.db.QueryRowContext(ctx, `
SELECT id, provider_id, model_name, display_name, extra_info, supports_reasoning
FROM models
WHERE id = ?
`, id).Scan(&m.ID, &m.ProviderID, &m.ModelName, &m.DisplayName, &m.ExtraInfo, &reasoning)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	m.SupportsReasoning = reasoning != 0
	return &m, nil
}

// UpsertModel updates the row matched by id (when supplied) or by
// (provider_id, model_name), and inserts otherwise.
//
// The provider_id is not verified against model_providers; a write against a
// missing provider succeeds and leaves a dangling reference.
func (s *Store) UpsertModel(ctx context.Context, m Model) (*Model, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	m.ModelName = strings.TrimSpace(m.ModelName)
	m.DisplayName = strings.TrimSpace(m.DisplayName)
	m.ExtraInfo = strings.TrimSpace(m.ExtraInfo)
	if m.ModelName == "" {
		return nil, errors.New("missing model_name")
	}
	if m.ProviderID <= 0 {
		return nil, errors.New("missing provider_id")
	}
	if m.DisplayName == "" {
		m.DisplayName = m.ModelName
	}
	reasoning := 0
	if m.SupportsReasoning {
		reasoning = 1
	}

	if m.ID > 0 {
		res, err := s.db.ExecContext(ctx, `
UPDATE models
SET provider_id = ?, model_name = ?, display_name = ?, extra_info = ?, supports_reasoning = ?
WHERE id = ?
`, m.ProviderID, m.ModelName, m.DisplayName, m.ExtraInfo, reasoning, m.ID)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return &m, nil
		}
	}

	var existingID int64
	err := s.db.QueryRowContext(ctx, `
SELECT id FROM models WHERE provider_id = ? AND model_name = ?
`, m.ProviderID, m.ModelName).Scan(&existingID)
	switch {
	case err == nil:
		m.ID = existingID
		_, err = s.db.ExecContext(ctx, `
UPDATE models
SET display_name = ?, extra_info = ?, supports_reasoning = ?
WHERE id = ?
`, m.DisplayName, m.ExtraInfo, reasoning, existingID)
		if err != nil {
			return nil, err
		}
		return &m, nil
	case errors.Is(err, sql.ErrNoRows):
		res, err := s.db.ExecContext(ctx, `
INSERT INTO models(provider_id, model_name, display_name, extra_info, supports_reasoning)
VALUES(?, ?, ?, ?, ?)
`, m.ProviderID, m.ModelName, m.DisplayName, m.ExtraInfo, reasoning)
		if err != nil {
			return nil, err
		}
		m.ID, _ = res.LastInsertId()
		return &m, nil
	default:
		return nil, err
	}
}

// DeleteModel removes the model row only. Agent roles referencing it keep
// their model_id; reads blank the reasoning level for them instead.
func (s *Store) DeleteModel(ctx context.Context, id int64) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if id <= 0 {
		return errors.New("invalid model id")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
