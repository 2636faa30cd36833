package identity

import (
	"context"
	"sync"

	"github.com/avdeyev/socialguard/internal/models"
)

type memoryAccount struct {
	password string
	premium  bool
}

// MemoryStore is an in-memory identity store for tests.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]memoryAccount
	premiums map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]memoryAccount),
		premiums: make(map[string]bool),
	}
}

// Seed adds an account directly, bypassing hashing.
func (s *MemoryStore) Seed(nickname, password string, premium bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[nickname] = memoryAccount{password: password, premium: premium}
}

// SeedPremium marks a nickname as premium without creating an account,
// like an unregistered paid nickname.
func (s *MemoryStore) SeedPremium(nickname string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.premiums[nickname] = true
}

// Password returns the stored plaintext, for assertions.
func (s *MemoryStore) Password(nickname string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[nickname]
	return acc.password, ok
}

func (s *MemoryStore) Exists(ctx context.Context, nickname string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[nickname]
	return ok, nil
}

func (s *MemoryStore) VerifyPassword(ctx context.Context, nickname, password string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[nickname]
	return ok && acc.password == password, nil
}

func (s *MemoryStore) CreateAccount(ctx context.Context, nickname, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[nickname]; ok {
		return models.ErrConflict
	}
	s.accounts[nickname] = memoryAccount{password: password}
	return nil
}

func (s *MemoryStore) SetPassword(ctx context.Context, nickname, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[nickname]
	if !ok {
		return models.ErrNotFound
	}
	acc.password = password
	s.accounts[nickname] = acc
	return nil
}

func (s *MemoryStore) IsPremium(ctx context.Context, nickname string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[nickname].premium || s.premiums[nickname], nil
}

var _ Store = (*MemoryStore)(nil)
