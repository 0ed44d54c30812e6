package store

import (
	"context"
	"strconv"
	"sync"

	"landchain/internal/registry/models"
	"landchain/pkg/platform/sentinel"
)

// MemoryRequestStore is an in-memory RequestStore with the same conditional
// update semantics as the postgres implementation. Used by unit tests and the
// no-database dev mode.
type MemoryRequestStore struct {
	mu       sync.RWMutex
	requests map[string]*models.Request
}

func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{requests: make(map[string]*models.Request)}
}

func (s *MemoryRequestStore) Create(ctx context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return sentinel.ErrConflict
	}
	req.Version = 1
	s.requests[req.ID] = req.Clone()
	return nil
}

func (s *MemoryRequestStore) FindByID(ctx context.Context, id string) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return req.Clone(), nil
}

func (s *MemoryRequestStore) Update(ctx context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.requests[req.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != req.Version {
		return sentinel.ErrConflict
	}
	req.Version++
	s.requests[req.ID] = req.Clone()
	return nil
}

// MemoryParcelStore is the in-memory ParcelStore counterpart.
type MemoryParcelStore struct {
	mu      sync.RWMutex
	byID    map[string]*models.Parcel
	byToken map[uint64]string
}

func NewMemoryParcelStore() *MemoryParcelStore {
	return &MemoryParcelStore{
		byID:    make(map[string]*models.Parcel),
		byToken: make(map[uint64]string),
	}
}

func (s *MemoryParcelStore) Create(ctx context.Context, parcel *models.Parcel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[parcel.ID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byToken[parcel.TokenID]; exists {
		return sentinel.ErrConflict
	}
	parcel.Version = 1
	s.byID[parcel.ID] = parcel.Clone()
	s.byToken[parcel.TokenID] = parcel.ID
	return nil
}

func (s *MemoryParcelStore) FindByIDOrTokenID(ctx context.Context, idOrTokenID string) (*models.Parcel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.byID[idOrTokenID]; ok {
		return p.Clone(), nil
	}
	if tokenID, err := strconv.ParseUint(idOrTokenID, 10, 64); err == nil {
		if id, ok := s.byToken[tokenID]; ok {
			return s.byID[id].Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryParcelStore) Update(ctx context.Context, parcel *models.Parcel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[parcel.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != parcel.Version {
		return sentinel.ErrConflict
	}
	parcel.Version++
	s.byID[parcel.ID] = parcel.Clone()
	return nil
}

func (s *MemoryParcelStore) Count(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.byID)), nil
}
