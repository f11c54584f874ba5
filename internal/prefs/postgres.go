package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists saved views in the saved_views table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Seed inserts the default views, skipping names that already exist.
func (s *PostgresStore) Seed(ctx context.Context) error {
	for _, v := range Defaults() {
		spec, err := json.Marshal(v.Spec)
		if err != nil {
			return fmt.Errorf("marshal default view %s: %w", v.Name, err)
		}
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO saved_views (name, spec)
			VALUES ($1, $2)
			ON CONFLICT (name) DO NOTHING
		`, v.Name, spec); err != nil {
			return fmt.Errorf("seed view %s: %w", v.Name, err)
		}
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]SavedView, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, spec, updated_at
		FROM saved_views
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list saved views: %w", err)
	}
	defer rows.Close()

	var out []SavedView
	for rows.Next() {
		var (
			v    SavedView
			spec []byte
		)
		if err := rows.Scan(&v.Name, &spec, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan saved view: %w", err)
		}
		if err := json.Unmarshal(spec, &v.Spec); err != nil {
			return nil, fmt.Errorf("decode saved view %s: %w", v.Name, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saved views: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, name string) (SavedView, error) {
	var (
		v    SavedView
		spec []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT name, spec, updated_at
		FROM saved_views
		WHERE name = $1
	`, name).Scan(&v.Name, &spec, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SavedView{}, ErrNotFound
	}
	if err != nil {
		return SavedView{}, fmt.Errorf("get saved view %s: %w", name, err)
	}
	if err := json.Unmarshal(spec, &v.Spec); err != nil {
		return SavedView{}, fmt.Errorf("decode saved view %s: %w", name, err)
	}
	return v, nil
}

func (s *PostgresStore) Put(ctx context.Context, view SavedView) error {
	spec, err := json.Marshal(view.Spec)
	if err != nil {
		return fmt.Errorf("marshal saved view %s: %w", view.Name, err)
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO saved_views (name, spec, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET spec = EXCLUDED.spec, updated_at = NOW()
	`, view.Name, spec); err != nil {
		return fmt.Errorf("store saved view %s: %w", view.Name, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM saved_views WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete saved view %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
