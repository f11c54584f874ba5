// Package prefs persists saved filter views. Views are small and keyed by
// name; the postgres backend stores the filter as JSONB, the memory backend
// serves deployments without a database.
package prefs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"elcedro/backend/internal/domain"
)

var ErrNotFound = errors.New("saved view not found")

// SavedView is one named filter configuration.
type SavedView struct {
	Name      string            `json:"name"`
	Spec      domain.FilterSpec `json:"spec"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Store is the saved-view persistence contract.
type Store interface {
	List(ctx context.Context) ([]SavedView, error)
	Get(ctx context.Context, name string) (SavedView, error)
	Put(ctx context.Context, view SavedView) error
	Delete(ctx context.Context, name string) error
}

// Defaults returns the views seeded into a fresh store.
func Defaults() []SavedView {
	now := time.Now()
	return []SavedView{
		{
			Name:      "vista-general",
			Spec:      domain.FilterSpec{Branch: domain.BranchAll, Family: domain.AllValues, Brand: domain.AllValues, WithTax: true}.Normalize(),
			UpdatedAt: now,
		},
		{
			Name:      "general-por-familia",
			Spec:      domain.FilterSpec{Branch: domain.BranchGeneral, Family: domain.AllValues, Brand: domain.AllValues, WithTax: true}.Normalize(),
			UpdatedAt: now,
		},
	}
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	views map[string]SavedView
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{views: make(map[string]SavedView)}
	for _, v := range Defaults() {
		s.views[v.Name] = v
	}
	return s
}

func (s *MemoryStore) List(context.Context) ([]SavedView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SavedView, 0, len(s.views))
	for _, v := range s.views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, name string) (SavedView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[name]
	if !ok {
		return SavedView{}, ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Put(_ context.Context, view SavedView) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	view.UpdatedAt = time.Now()
	s.views[view.Name] = view
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.views[name]; !ok {
		return ErrNotFound
	}
	delete(s.views, name)
	return nil
}
