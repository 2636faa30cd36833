package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/avdeyev/socialguard/internal/models"
)

// MemoryLinkStore is an in-memory LinkStore used by service and handler
// tests. It mirrors the Postgres semantics: keyed by nickname, not-found on
// missing rows, last write wins.
type MemoryLinkStore struct {
	mu    sync.RWMutex
	links map[string]*models.AccountLink
}

func NewMemoryLinkStore() *MemoryLinkStore {
	return &MemoryLinkStore{links: make(map[string]*models.AccountLink)}
}

func (s *MemoryLinkStore) GetByName(ctx context.Context, nickname string) (*models.AccountLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[nickname]
	if !ok {
		return nil, models.ErrNotFound
	}
	clone := *link
	return &clone, nil
}

func (s *MemoryLinkStore) GetByChannel(ctx context.Context, kind string, userID int64) (*models.AccountLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, link := range s.links {
		if id := link.ChannelID(kind); id != nil && *id == userID {
			clone := *link
			return &clone, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryLinkStore) Create(ctx context.Context, link *models.AccountLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[link.Nickname]; ok {
		return models.ErrConflict
	}

	now := time.Now()
	link.CreatedAt = now
	link.UpdatedAt = now
	clone := *link
	s.links[link.Nickname] = &clone
	return nil
}

func (s *MemoryLinkStore) Update(ctx context.Context, link *models.AccountLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[link.Nickname]; !ok {
		return models.ErrNotFound
	}

	link.UpdatedAt = time.Now()
	clone := *link
	s.links[link.Nickname] = &clone
	return nil
}

func (s *MemoryLinkStore) Delete(ctx context.Context, nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[nickname]; !ok {
		return models.ErrNotFound
	}
	delete(s.links, nickname)
	return nil
}

func (s *MemoryLinkStore) SetChannelID(ctx context.Context, nickname, kind string, userID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[nickname]
	if !ok {
		return models.ErrNotFound
	}
	link.SetChannelID(kind, userID)
	link.UpdatedAt = time.Now()
	return nil
}

var _ LinkStore = (*MemoryLinkStore)(nil)
