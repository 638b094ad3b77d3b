// Package memory provides the in-memory audit log store used by tests and
// by deployments without PostgreSQL configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"attest/internal/trail/models"
	"attest/pkg/platform/sentinel"
)

type entityKey struct {
	entityType string
	entityID   string
}

// Store keeps headers and change rows in memory. Append-only: nothing here
// updates or removes a record once written.
type Store struct {
	mu      sync.RWMutex
	logs    []models.AuditLog
	changes map[uuid.UUID][]models.AuditLogChange
	chain   map[entityKey]string
}

func New() *Store {
	return &Store{
		changes: make(map[uuid.UUID][]models.AuditLogChange),
		chain:   make(map[entityKey]string),
	}
}

func (s *Store) Append(_ context.Context, log *models.AuditLog, changes []models.AuditLogChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = append(s.logs, *log)
	s.changes[log.ID] = append([]models.AuditLogChange{}, changes...)
	s.chain[entityKey{log.EntityType, log.EntityID}] = log.Checksum
	return nil
}

func (s *Store) LastChecksum(_ context.Context, entityType, entityID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chain[entityKey{entityType, entityID}], nil
}

func (s *Store) ListLogs(_ context.Context, filter models.ListFilter) ([]models.AuditLog, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]models.AuditLog, 0, len(s.logs))
	needle := strings.ToLower(filter.Search)
	for _, log := range s.logs {
		if needle == "" || matchesSearch(log, needle) {
			matched = append(matched, log)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	return page(matched, filter.Limit, filter.Offset), total, nil
}

func (s *Store) FindLog(_ context.Context, id uuid.UUID) (*models.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.logs {
		if s.logs[i].ID == id {
			log := s.logs[i]
			return &log, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *Store) ListChanges(_ context.Context, logID uuid.UUID, filter models.ChangeFilter) ([]models.AuditLogChange, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.changes[logID]
	if !ok {
		return nil, 0, nil
	}

	ordered := append([]models.AuditLogChange{}, rows...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})
	if filter.Sorted() {
		sortChanges(ordered, filter.SortField, filter.Direction)
	}

	total := len(ordered)
	return page(ordered, filter.Limit, filter.Offset), total, nil
}

func (s *Store) ListByEntity(_ context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]models.AuditLog, 0)
	for _, log := range s.logs {
		if log.EntityType == entityType && log.EntityID == entityID {
			matched = append(matched, log)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return page(matched, limit, offset), nil
}

func matchesSearch(log models.AuditLog, needle string) bool {
	return strings.Contains(strings.ToLower(log.EntityType), needle) ||
		strings.Contains(strings.ToLower(log.ReferenceNumber), needle) ||
		strings.Contains(strings.ToLower(log.UserName), needle)
}

func sortChanges(rows []models.AuditLogChange, field models.SortField, dir models.SortDirection) {
	key := func(c models.AuditLogChange) string {
		switch field {
		case models.SortByAttributeName:
			return c.AttributeName
		case models.SortByModuleName:
			return c.ModuleName
		case models.SortByOldValue:
			return c.OldValue
		default:
			return c.NewValue
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := strings.ToLower(key(rows[i])), strings.ToLower(key(rows[j]))
		if dir == models.SortDesc {
			return a > b
		}
		return a < b
	})
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return append([]T{}, items[offset:end]...)
}
