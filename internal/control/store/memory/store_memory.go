// Package memory provides the in-memory control store used by tests and by
// deployments without PostgreSQL configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"attest/internal/control/models"
	"attest/pkg/platform/sentinel"
)

type Store struct {
	mu       sync.RWMutex
	controls map[uuid.UUID]models.Control
	byCode   map[string]uuid.UUID
}

func New() *Store {
	return &Store{
		controls: make(map[uuid.UUID]models.Control),
		byCode:   make(map[string]uuid.UUID),
	}
}

func (s *Store) Create(_ context.Context, control *models.Control) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byCode[control.Code]; taken {
		return sentinel.ErrConflict
	}
	s.controls[control.ID] = *control
	s.byCode[control.Code] = control.ID
	return nil
}

func (s *Store) Update(_ context.Context, control *models.Control) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.controls[control.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if control.Code != existing.Code {
		if _, taken := s.byCode[control.Code]; taken {
			return sentinel.ErrConflict
		}
		delete(s.byCode, existing.Code)
		s.byCode[control.Code] = control.ID
	}
	s.controls[control.ID] = *control
	return nil
}

func (s *Store) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	control, ok := s.controls[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byCode, control.Code)
	delete(s.controls, id)
	return nil
}

func (s *Store) FindByID(_ context.Context, id uuid.UUID) (*models.Control, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	control, ok := s.controls[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &control, nil
}

func (s *Store) List(_ context.Context, limit, offset int) ([]models.Control, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]models.Control, 0, len(s.controls))
	for _, c := range s.controls {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Code < all[j].Code })

	total := len(all)
	if offset >= total {
		return []models.Control{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}
