package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/wa-bot/internal/assistant"
	"github.com/xaenox/wa-bot/internal/models"
	"github.com/xaenox/wa-bot/internal/storage"
	"go.uber.org/zap/zaptest"
)

type countingAssistant struct {
	created int
	err     error
}

func (a *countingAssistant) CreateSession(ctx context.Context) (models.SessionID, error) {
	if a.err != nil {
		return "", a.err
	}
	a.created++
	return fmt.Sprintf("session-%d", a.created), nil
}

func (a *countingAssistant) SendMessage(ctx context.Context, sessionID models.SessionID, text string) (*models.AssistantReply, error) {
	return nil, errors.New("not used")
}

type failingStore struct{ storage.SessionStorage }

func (failingStore) GetSession(ctx context.Context, userID models.UserID) (models.SessionID, error) {
	return "", errors.New("store down")
}

func (failingStore) SaveSession(ctx context.Context, userID models.UserID, sessionID models.SessionID) error {
	return errors.New("store down")
}

func TestRegistry_GetOrNoneMissing(t *testing.T) {
	ai := &countingAssistant{}
	r := NewRegistry(storage.NewMemoryStorage(), ai, zaptest.NewLogger(t))

	id, ok, err := r.GetOrNone(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.Zero(t, ai.created)
}

func TestRegistry_CreateAndStoreOverwrites(t *testing.T) {
	ctx := context.Background()
	ai := &countingAssistant{}
	r := NewRegistry(storage.NewMemoryStorage(), ai, zaptest.NewLogger(t))

	first, err := r.CreateAndStore(ctx, 1)
	require.NoError(t, err)
	second, err := r.CreateAndStore(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	id, ok, err := r.GetOrNone(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, second, id)
}

func TestRegistry_CreateFailureKeepsPreviousSession(t *testing.T) {
	ctx := context.Background()
	ai := &countingAssistant{}
	store := storage.NewMemoryStorage()
	r := NewRegistry(store, ai, zaptest.NewLogger(t))

	first, err := r.CreateAndStore(ctx, 1)
	require.NoError(t, err)

	ai.err = fmt.Errorf("%w: boom", assistant.ErrServiceUnavailable)
	_, err = r.CreateAndStore(ctx, 1)
	assert.ErrorIs(t, err, assistant.ErrServiceUnavailable)

	id, _, _ := r.GetOrNone(ctx, 1)
	assert.Equal(t, first, id)
}

func TestRegistry_StoreErrors(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(failingStore{}, &countingAssistant{}, nil)

	_, _, err := r.GetOrNone(ctx, 1)
	assert.Error(t, err)

	_, err = r.CreateAndStore(ctx, 1)
	assert.Error(t, err)
}
