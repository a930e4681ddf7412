// Package assistant talks to the conversational AI service that answers chat messages.
package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/xaenox/wa-bot/internal/models"
)

var (
	// ErrServiceUnavailable is returned when the service cannot be reached or refuses to
	// create a session.
	ErrServiceUnavailable = errors.New("assistant: service unavailable")
	// ErrSessionInvalid is returned by SendMessage when the service rejects the call,
	// typically because the session expired. Callers recover by minting a new session.
	ErrSessionInvalid = errors.New("assistant: session invalid or expired")
)

const (
	ProviderWatson = "watson"
	ProviderOpenAI = "openai"
)

// Client is the contract of the external assistant service.
type Client interface {
	CreateSession(ctx context.Context) (models.SessionID, error)
	SendMessage(ctx context.Context, sessionID models.SessionID, text string) (*models.AssistantReply, error)
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("assistant: api error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("assistant: api error (status %d): %s", e.StatusCode, e.Message)
}
