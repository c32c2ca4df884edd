package registry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

func (s *Store) ListProviders(ctx context.Context) ([]Provider, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, provider_name, display_name, extra_info
FROM model_providers
ORDER BY provider_name ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Provider, 0, 8)
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.ProviderName, &p.DisplayName, &p.ExtraInfo); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetProvider(ctx context.Context, id int64) (*Provider, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if id <= 0 {
		return nil, errors.New("invalid provider id")
	}

	var p Provider
	err := s.db.QueryRowContext(ctx, `
SELECT id, provider_name, display_name, extra_info
FROM model_providers
WHERE id = ?
`, id).Scan(&p.ID, &p.ProviderName, &p.DisplayName, &p.ExtraInfo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// UpsertProvider updates the row matched by id (when supplied) or by
// provider_name, and inserts otherwise. The stored row is returned.
func (s *Store) UpsertProvider(ctx context.Context, p Provider) (*Provider, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p.ProviderName = strings.TrimSpace(p.ProviderName)
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.ExtraInfo = strings.TrimSpace(p.ExtraInfo)
	if p.ProviderName == "" {
		return nil, errors.New("missing provider_name")
	}
	if p.DisplayName == "" {
		p.DisplayName = p.ProviderName
	}

	if p.ID > 0 {
		res, err := s.db.ExecContext(ctx, `
UPDATE model_providers
SET provider_name = ?, display_name = ?, extra_info = ?
WHERE id = ?
`, p.ProviderName, p.DisplayName, p.ExtraInfo, p.ID)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return &p, nil
		}
	}

	var existingID int64
	err := s.db.QueryRowContext(ctx, `
SELECT id FROM model_providers WHERE provider_name = ?
`, p.ProviderName).Scan(&existingID)
	switch {
	case err == nil:
		p.ID = existingID
		_, err = s.db.ExecContext(ctx, `
UPDATE model_providers
SET display_name = ?, extra_info = ?
WHERE id = ?
`, p.DisplayName, p.ExtraInfo, existingID)
		if err != nil {
			return nil, err
		}
		return &p, nil
	case errors.Is(err, sql.ErrNoRows):
		res, err := s.db.ExecContext(ctx, `
INSERT INTO model_providers(provider_name, display_name, extra_info)
VALUES(?, ?, ?)
`, p.ProviderName, p.DisplayName, p.ExtraInfo)
		if err != nil {
			return nil, err
		}
		p.ID, _ = res.LastInsertId()
		return &p, nil
	default:
		return nil, err
	}
}

// DeleteProvider removes the provider row only. Models referencing it keep
// their provider_id and become dangling.
func (s *Store) DeleteProvider(ctx context.Context, id int64) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if id <= 0 {
		return errors.New("invalid provider id")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM model_providers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
