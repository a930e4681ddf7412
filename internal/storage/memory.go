package storage

import (
	"context"
	"sync"
	"time"

	"github.com/xaenox/wa-bot/internal/models"
)

type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[models.UserID]*models.Session
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[models.UserID]*models.Session),
	}
}

func (s *MemoryStorage) GetSession(ctx context.Context, userID models.UserID) (models.SessionID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if session, exists := s.sessions[userID]; exists {
		return session.SessionID, nil
	}
	return "", nil
}

func (s *MemoryStorage) SaveSession(ctx context.Context, userID models.UserID, sessionID models.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[userID] = &models.Session{
		UserID:    userID,
		SessionID: sessionID,
		CreatedAt: time.Now(),
	}
	return nil
}

// Len returns the number of users with a stored session
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
