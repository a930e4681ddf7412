// Package session maps chat users to their active assistant session.
package session

import (
	"context"
	"fmt"

	"github.com/xaenox/wa-bot/internal/assistant"
	"github.com/xaenox/wa-bot/internal/models"
	"github.com/xaenox/wa-bot/internal/storage"
	"go.uber.org/zap"
)

// Registry holds at most one session per user. Entries are overwritten when a new
// session is minted and never deleted.
type Registry struct {
	store     storage.SessionStorage
	assistant assistant.Client
	logger    *zap.Logger
}

func NewRegistry(store storage.SessionStorage, client assistant.Client, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:     store,
		assistant: client,
		logger:    logger,
	}
}

// GetOrNone looks up the stored session without side effects.
func (r *Registry) GetOrNone(ctx context.Context, userID models.UserID) (models.SessionID, bool, error) {
	sessionID, err := r.store.GetSession(ctx, userID)
	if err != nil {
		return "", false, fmt.Errorf("failed to load session: %w", err)
	}
	return sessionID, sessionID != "", nil
}

// CreateAndStore mints a session with the assistant and stores it for userID,
// replacing any previous one. Creation failures are returned as is.
func (r *Registry) CreateAndStore(ctx context.Context, userID models.UserID) (models.SessionID, error) {
	sessionID, err := r.assistant.CreateSession(ctx)
	if err != nil {
		return "", err
	}

	if err := r.store.SaveSession(ctx, userID, sessionID); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	r.logger.Debug("Session created",
		zap.Int64("user_id", userID),
		zap.String("session_id", sessionID))
	return sessionID, nil
}
