// Package postgres persists controls in PostgreSQL. Writes participate in
// the caller's transaction when one is carried in the context, which is what
// ties each mutation to its audit capture.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"attest/internal/control/models"
	"attest/pkg/platform/sentinel"
	txcontext "attest/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) querier(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Create(ctx context.Context, control *models.Control) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO controls (
			id, code, name, description, status, owner, framework_id,
			review_date, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		control.ID, control.Code, control.Name, control.Description,
		control.Status, control.OwnerID, control.FrameworkID,
		control.ReviewDate, control.CreatedAt, control.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert control: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, control *models.Control) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE controls
		SET code = $2, name = $3, description = $4, status = $5, owner = $6,
		    framework_id = $7, review_date = $8, updated_at = $9
		WHERE id = $1
	`,
		control.ID, control.Code, control.Name, control.Description,
		control.Status, control.OwnerID, control.FrameworkID,
		control.ReviewDate, control.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update control: %w", err)
	}
	return requireRow(res)
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.querier(ctx).ExecContext(ctx,
		`DELETE FROM controls WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete control: %w", err)
	}
	return requireRow(res)
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*models.Control, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		SELECT id, code, name, description, status, owner, framework_id,
		       review_date, created_at, updated_at
		FROM controls
		WHERE id = $1
	`, id)

	var c models.Control
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Description, &c.Status,
		&c.OwnerID, &c.FrameworkID, &c.ReviewDate, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find control: %w", err)
	}
	return &c, nil
}

func (s *Store) List(ctx context.Context, limit, offset int) ([]models.Control, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM controls`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count controls: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, description, status, owner, framework_id,
		       review_date, created_at, updated_at
		FROM controls
		ORDER BY code
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query controls: %w", err)
	}
	defer rows.Close()

	var controls []models.Control
	for rows.Next() {
		var c models.Control
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Description, &c.Status,
			&c.OwnerID, &c.FrameworkID, &c.ReviewDate, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan control: %w", err)
		}
		controls = append(controls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate controls: %w", err)
	}
	return controls, total, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
