package bot

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/xaenox/wa-bot/internal/dispatcher"
	"github.com/xaenox/wa-bot/internal/metrics"
	"github.com/xaenox/wa-bot/internal/models"
	"go.uber.org/zap"
)

const (
	defaultWorkers   = 4
	workerQueueDepth = 16

	unavailableText = dispatcher.UnavailableText
)

// Dispatcher produces the replies for incoming messages and commands.
type Dispatcher interface {
	HandleMessage(ctx context.Context, userID models.UserID, text string) (models.OutgoingMessage, error)
	HandleStart(ctx context.Context, userID models.UserID) ([]models.OutgoingMessage, error)
	HandleHelp() models.OutgoingMessage
	HandleUnknown() models.OutgoingMessage
}

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Config struct {
	Token string
	// Workers is the number of concurrent handlers. Messages of one user always
	// go to the same worker.
	Workers int
	Debug   bool
}

type request struct {
	message *tgbotapi.Message
	logger  *zap.Logger
}

type handlerFunc func(ctx context.Context, req *request)

type Bot struct {
	api        botAPI
	dispatcher Dispatcher
	metrics    *metrics.BotMetrics
	logger     *zap.Logger
	workers    int

	commands  map[string]handlerFunc
	onUnknown handlerFunc
	onText    handlerFunc
}

func New(cfg Config, d Dispatcher, m *metrics.BotMetrics, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = cfg.Debug

	logger.Info("Authorized on Telegram", zap.String("username", api.Self.UserName))
	return newBot(api, cfg.Workers, d, m, logger), nil
}

func newBot(api botAPI, workers int, d Dispatcher, m *metrics.BotMetrics, logger *zap.Logger) *Bot {
	if workers <= 0 {
		workers = defaultWorkers
	}
	b := &Bot{
		api:        api,
		dispatcher: d,
		metrics:    m,
		logger:     logger,
		workers:    workers,
	}
	b.commands = map[string]handlerFunc{
		"start": b.withTyping(b.handleStart),
		"help":  b.withTyping(b.handleHelp),
	}
	b.onUnknown = b.withTyping(b.handleUnknown)
	b.onText = b.withTyping(b.handleText)
	return b
}

// Start polls Telegram until ctx is cancelled, then waits for queued messages.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	return b.serve(ctx, updates)
}

func (b *Bot) serve(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	// In-flight replies finish after shutdown starts.
	handlerCtx := context.WithoutCancel(ctx)

	queues := make([]chan *tgbotapi.Message, b.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan *tgbotapi.Message, workerQueueDepth)
		wg.Add(1)
		go func(queue <-chan *tgbotapi.Message) {
			defer wg.Done()
			for message := range queue {
				b.handleMessage(handlerCtx, message)
			}
		}(queues[i])
	}
	defer func() {
		for _, queue := range queues {
			close(queue)
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			queue := queues[shard(update.Message.From.ID, len(queues))]
			select {
			case queue <- update.Message:
			case <-ctx.Done():
				b.api.StopReceivingUpdates()
				return nil
			}
		}
	}
}

func shard(userID int64, n int) int {
	return int(uint64(userID) % uint64(n))
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	req := &request{
		message: message,
		logger: b.logger.With(
			zap.String("request_id", uuid.NewString()),
			zap.Int64("user_id", message.From.ID),
			zap.Int64("chat_id", message.Chat.ID)),
	}

	// Handle commands
	if message.IsCommand() {
		b.metrics.ObserveUpdate("command")
		if handler, ok := b.commands[message.Command()]; ok {
			handler(ctx, req)
			return
		}
		b.onUnknown(ctx, req)
		return
	}

	if message.Text == "" {
		b.metrics.ObserveUpdate("ignored")
		return
	}

	b.metrics.ObserveUpdate("message")
	b.onText(ctx, req)
}

// withTyping shows the typing indicator before the wrapped handler runs.
func (b *Bot) withTyping(next handlerFunc) handlerFunc {
	return func(ctx context.Context, req *request) {
		action := tgbotapi.NewChatAction(req.message.Chat.ID, tgbotapi.ChatTyping)
		if _, err := b.api.Request(action); err != nil {
			req.logger.Warn("Failed to send chat action", zap.Error(err))
		}
		next(ctx, req)
	}
}

func (b *Bot) handleText(ctx context.Context, req *request) {
	out, err := b.dispatcher.HandleMessage(ctx, req.message.From.ID, req.message.Text)
	if err != nil {
		req.logger.Error("Failed to relay message", zap.Error(err))
		b.sendErrorMessage(req, unavailableText)
		return
	}
	b.send(req, out)
}

func (b *Bot) handleStart(ctx context.Context, req *request) {
	replies, err := b.dispatcher.HandleStart(ctx, req.message.From.ID)
	if err != nil {
		req.logger.Error("Failed to start session", zap.Error(err))
		b.sendErrorMessage(req, unavailableText)
		return
	}
	for _, out := range replies {
		b.send(req, out)
	}
}

func (b *Bot) handleHelp(ctx context.Context, req *request) {
	b.send(req, b.dispatcher.HandleHelp())
}

func (b *Bot) handleUnknown(ctx context.Context, req *request) {
	b.send(req, b.dispatcher.HandleUnknown())
}

func (b *Bot) send(req *request, out models.OutgoingMessage) {
	msg := tgbotapi.NewMessage(req.message.Chat.ID, out.Text)
	switch {
	case out.HasQuickReplies():
		msg.ReplyMarkup = replyKeyboard(out.QuickReplies)
	case out.RemoveKeyboard:
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	}

	if _, err := b.api.Send(msg); err != nil {
		req.logger.Error("Failed to send message", zap.Error(err))
	}
}

func (b *Bot) sendErrorMessage(req *request, text string) {
	msg := tgbotapi.NewMessage(req.message.Chat.ID, "⚠️ "+text)
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	if _, err := b.api.Send(msg); err != nil {
		req.logger.Error("Failed to send error message", zap.Error(err))
	}
}

func replyKeyboard(rows [][]string) tgbotapi.ReplyKeyboardMarkup {
	keyboard := make([][]tgbotapi.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		keyboard = append(keyboard, tgbotapi.NewKeyboardButtonRow(buttons...))
	}
	return tgbotapi.NewReplyKeyboard(keyboard...)
}
