// Package postgres persists the audit trail in PostgreSQL.
//
// Writes participate in the caller's transaction when one is carried in the
// context (pkg/platform/tx), which is how capture shares its fate with the
// business mutation. Alongside the header and change rows, Append writes an
// outbox row in the same transaction; the relay publishes it after commit.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"attest/internal/trail/models"
	"attest/internal/trail/outbox"
	"attest/pkg/platform/sentinel"
	txcontext "attest/pkg/platform/tx"
)

// Store implements the audit trail Store contract on PostgreSQL.
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

// Append writes one header, its change rows, and the matching outbox row.
// All inserts run on the ambient transaction so the whole unit commits or
// rolls back with the business mutation.
func (s *Store) Append(ctx context.Context, log *models.AuditLog, changes []models.AuditLogChange) error {
	q := s.querier(ctx)

	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, entity_type, entity_id, reference_number, user_name,
			client_ip, user_agent, operation, attribute_count, checksum, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		log.ID, log.EntityType, log.EntityID, log.ReferenceNumber, log.UserName,
		log.ClientIP, log.UserAgent, string(log.Operation), log.AttributeCount,
		log.Checksum, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}

	for _, ch := range changes {
		_, err := q.ExecContext(ctx, `
			INSERT INTO audit_log_changes (
				id, log_id, position, attribute_name, module_name, old_value, new_value
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			ch.ID, ch.LogID, ch.Position, ch.AttributeName, ch.ModuleName,
			ch.OldValue, ch.NewValue,
		)
		if err != nil {
			return fmt.Errorf("insert audit change: %w", err)
		}
	}

	payload, err := outbox.EncodeEvent(*log, changes)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO audit_outbox (id, log_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`,
		uuid.New(), log.ID, payload, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// LastChecksum reads the newest checksum for one entity. The plain SELECT
// takes no lock under read committed; chain integrity against concurrent
// captures relies on the collaborator's transaction holding the write lock
// on the business row being mutated.
func (s *Store) LastChecksum(ctx context.Context, entityType, entityID string) (string, error) {
	var checksum string
	err := s.querier(ctx).QueryRowContext(ctx, `
		SELECT checksum FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, entityType, entityID).Scan(&checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load last checksum: %w", err)
	}
	return checksum, nil
}

func (s *Store) ListLogs(ctx context.Context, filter models.ListFilter) ([]models.AuditLog, int, error) {
	where := ""
	args := []any{}
	if filter.Search != "" {
		where = `
		WHERE entity_type ILIKE $1
		   OR reference_number ILIKE $1
		   OR user_name ILIKE $1`
		args = append(args, "%"+escapeLike(filter.Search)+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, entity_type, entity_id, reference_number, user_name,
		       client_ip, user_agent, operation, attribute_count, checksum, created_at
		FROM audit_logs
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	logs, err := scanLogs(rows)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func (s *Store) FindLog(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_type, entity_id, reference_number, user_name,
		       client_ip, user_agent, operation, attribute_count, checksum, created_at
		FROM audit_logs
		WHERE id = $1
	`, id)

	log, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find audit log: %w", err)
	}
	return log, nil
}

// changeSortColumns whitelists the sortable columns; anything else falls
// back to canonical position order.
var changeSortColumns = map[models.SortField]string{
	models.SortByAttributeName: "attribute_name",
	models.SortByModuleName:    "module_name",
	models.SortByOldValue:      "old_value",
	models.SortByNewValue:      "new_value",
}

func (s *Store) ListChanges(ctx context.Context, logID uuid.UUID, filter models.ChangeFilter) ([]models.AuditLogChange, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log_changes WHERE log_id = $1`, logID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit changes: %w", err)
	}

	orderBy := "position ASC"
	if filter.Sorted() {
		if col, ok := changeSortColumns[filter.SortField]; ok {
			dir := "ASC"
			if filter.Direction == models.SortDesc {
				dir = "DESC"
			}
			orderBy = fmt.Sprintf("LOWER(%s) %s, position ASC", col, dir)
		}
	}

	query := fmt.Sprintf(`
		SELECT id, log_id, position, attribute_name, module_name, old_value, new_value
		FROM audit_log_changes
		WHERE log_id = $1
		ORDER BY %s
		LIMIT $2 OFFSET $3
	`, orderBy)

	rows, err := s.db.QueryContext(ctx, query, logID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit changes: %w", err)
	}
	defer rows.Close()

	var changes []models.AuditLogChange
	for rows.Next() {
		var ch models.AuditLogChange
		if err := rows.Scan(&ch.ID, &ch.LogID, &ch.Position, &ch.AttributeName,
			&ch.ModuleName, &ch.OldValue, &ch.NewValue); err != nil {
			return nil, 0, fmt.Errorf("scan audit change: %w", err)
		}
		changes = append(changes, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit changes: %w", err)
	}
	return changes, total, nil
}

func (s *Store) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, reference_number, user_name,
		       client_ip, user_agent, operation, attribute_count, checksum, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC, id ASC
		LIMIT $3 OFFSET $4
	`, entityType, entityID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query entity history: %w", err)
	}
	defer rows.Close()

	return scanLogs(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(row rowScanner) (*models.AuditLog, error) {
	var log models.AuditLog
	var operation string
	err := row.Scan(&log.ID, &log.EntityType, &log.EntityID, &log.ReferenceNumber,
		&log.UserName, &log.ClientIP, &log.UserAgent, &operation,
		&log.AttributeCount, &log.Checksum, &log.CreatedAt)
	if err != nil {
		return nil, err
	}
	log.Operation = models.Operation(operation)
	return &log, nil
}

func scanLogs(rows *sql.Rows) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, *log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	return logs, nil
}

// escapeLike neutralizes LIKE metacharacters in user-supplied search text.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}
