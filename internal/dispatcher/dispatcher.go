// Package dispatcher relays a user's chat message to the assistant and renders the reply.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/wa-bot/internal/assistant"
	"github.com/xaenox/wa-bot/internal/metrics"
	"github.com/xaenox/wa-bot/internal/models"
	"github.com/xaenox/wa-bot/internal/session"
	"go.uber.org/zap"
)

const (
	UnavailableText    = "Watson Assistant is unavailable now :("
	MalformedText      = "Ошибка обработки текста"
	StartHintText      = "Помощь: /help"
	UnknownCommandText = "Sorry, I didn't understand that command."
	HelpText           = `Команды бота:
Помощь: /help
Начало диалога: /start

После отправки команды /start создается сессия с Watson Assistant.
Сессия существует 5 минут. Если она истекла, новая сессия будет создана автоматически при следующем сообщении.
Чтобы начать разговор заново, введите команду /start`
)

type Dispatcher struct {
	registry  *session.Registry
	assistant assistant.Client
	metrics   *metrics.BotMetrics
	logger    *zap.Logger
}

func New(registry *session.Registry, client assistant.Client, m *metrics.BotMetrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry:  registry,
		assistant: client,
		metrics:   m,
		logger:    logger,
	}
}

// HandleMessage forwards text on the user's session, creating the session first if
// the user has none. A rejected session is replaced and the message retried once.
func (d *Dispatcher) HandleMessage(ctx context.Context, userID models.UserID, text string) (models.OutgoingMessage, error) {
	sessionID, ok, err := d.registry.GetOrNone(ctx, userID)
	if err != nil {
		return models.OutgoingMessage{}, err
	}
	if !ok {
		if sessionID, err = d.createSession(ctx, userID); err != nil {
			return models.OutgoingMessage{}, fmt.Errorf("failed to create session: %w", err)
		}
	}

	reply, err := d.send(ctx, sessionID, text)
	if errors.Is(err, assistant.ErrSessionInvalid) {
		d.logger.Debug("Session rejected, creating a new one",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.String("session_id", sessionID))
		d.metrics.ObserveSessionRenewal()

		if sessionID, err = d.createSession(ctx, userID); err != nil {
			return models.OutgoingMessage{}, fmt.Errorf("failed to renew session: %w", err)
		}
		reply, err = d.send(ctx, sessionID, text)
	}
	if err != nil {
		return models.OutgoingMessage{}, fmt.Errorf("failed to send message: %w", err)
	}

	return d.render(userID, reply), nil
}

// HandleStart always begins a fresh session and returns the assistant's greeting
// followed by the help hint.
func (d *Dispatcher) HandleStart(ctx context.Context, userID models.UserID) ([]models.OutgoingMessage, error) {
	sessionID, err := d.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	reply, err := d.send(ctx, sessionID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get greeting: %w", err)
	}

	return []models.OutgoingMessage{
		d.render(userID, reply),
		{Text: StartHintText},
	}, nil
}

func (d *Dispatcher) HandleHelp() models.OutgoingMessage {
	return models.OutgoingMessage{Text: HelpText}
}

func (d *Dispatcher) HandleUnknown() models.OutgoingMessage {
	return models.OutgoingMessage{Text: UnknownCommandText}
}

func (d *Dispatcher) createSession(ctx context.Context, userID models.UserID) (models.SessionID, error) {
	start := time.Now()
	sessionID, err := d.registry.CreateAndStore(ctx, userID)
	d.metrics.ObserveAssistantCall("create_session", err, time.Since(start).Seconds())
	return sessionID, err
}

func (d *Dispatcher) send(ctx context.Context, sessionID models.SessionID, text string) (*models.AssistantReply, error) {
	start := time.Now()
	reply, err := d.assistant.SendMessage(ctx, sessionID, text)
	d.metrics.ObserveAssistantCall("send_message", err, time.Since(start).Seconds())
	return reply, err
}

func (d *Dispatcher) render(userID models.UserID, reply *models.AssistantReply) models.OutgoingMessage {
	var raw []byte
	if reply != nil {
		raw = reply.Raw
	}

	outcome := Interpret(reply)
	switch o := outcome.(type) {
	case Degraded:
		d.logger.Debug("Falling back on assistant reply",
			zap.String("reason", string(o.Reason)),
			zap.Error(o.Cause),
			zap.Int64("user_id", userID),
			zap.ByteString("raw_reply", raw))
		d.metrics.ObserveReply(string(o.Reason))
	case Rendered:
		if len(o.Skipped) > 0 {
			d.logger.Debug("Skipped reply parts without chat rendering",
				zap.Any("response_types", o.Skipped),
				zap.Int64("user_id", userID))
		}
		d.logger.Debug("Assistant reply", zap.Int64("user_id", userID), zap.ByteString("raw_reply", raw))
		d.metrics.ObserveReply("rendered")
	}

	return Render(outcome)
}
