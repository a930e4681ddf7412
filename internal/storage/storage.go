package storage

import (
	"context"

	"github.com/xaenox/wa-bot/internal/models"
)

// SessionStorage keeps the user -> assistant session mapping.
// GetSession returns an empty id when the user has no session.
type SessionStorage interface {
	GetSession(ctx context.Context, userID models.UserID) (models.SessionID, error)
	SaveSession(ctx context.Context, userID models.UserID, sessionID models.SessionID) error
	Close() error
}

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)
