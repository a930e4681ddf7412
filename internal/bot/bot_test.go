package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/wa-bot/internal/models"
	"go.uber.org/zap/zaptest"
)

type fakeAPI struct {
	mu      sync.Mutex
	events  []tgbotapi.Chattable
	stopped bool
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, e := range f.events {
		if msg, ok := e.(tgbotapi.MessageConfig); ok {
			out = append(out, msg)
		}
	}
	return out
}

type fakeDispatcher struct {
	mu       sync.Mutex
	received map[int64][]string
	reply    models.OutgoingMessage
	err      error
}

func (d *fakeDispatcher) HandleMessage(ctx context.Context, userID models.UserID, text string) (models.OutgoingMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.received == nil {
		d.received = make(map[int64][]string)
	}
	d.received[userID] = append(d.received[userID], text)
	return d.reply, d.err
}

func (d *fakeDispatcher) HandleStart(ctx context.Context, userID models.UserID) ([]models.OutgoingMessage, error) {
	if d.err != nil {
		return nil, d.err
	}
	return []models.OutgoingMessage{{Text: "Welcome\n", RemoveKeyboard: true}, {Text: "Помощь: /help"}}, nil
}

func (d *fakeDispatcher) HandleHelp() models.OutgoingMessage {
	return models.OutgoingMessage{Text: "help text"}
}

func (d *fakeDispatcher) HandleUnknown() models.OutgoingMessage {
	return models.OutgoingMessage{Text: "Sorry, I didn't understand that command."}
}

func textMessage(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID * 10},
		Text:      text,
	}
}

func commandMessage(userID int64, command string) *tgbotapi.Message {
	msg := textMessage(userID, "/"+command)
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command) + 1}}
	return msg
}

func newTestBot(t *testing.T, d *fakeDispatcher) (*Bot, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	return newBot(api, 2, d, nil, zaptest.NewLogger(t)), api
}

func TestHandleMessage_TypingThenQuickReplies(t *testing.T) {
	d := &fakeDispatcher{reply: models.OutgoingMessage{Text: "Pick one", QuickReplies: [][]string{{"A"}, {"B"}}}}
	b, api := newTestBot(t, d)

	b.handleMessage(context.Background(), textMessage(1, "hi"))

	require.Len(t, api.events, 2)
	action, ok := api.events[0].(tgbotapi.ChatActionConfig)
	require.True(t, ok)
	assert.Equal(t, tgbotapi.ChatTyping, action.Action)
	assert.Equal(t, int64(10), action.ChatID)

	msg := api.events[1].(tgbotapi.MessageConfig)
	assert.Equal(t, "Pick one", msg.Text)
	keyboard, ok := msg.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, keyboard.Keyboard, 2)
	assert.Equal(t, "A", keyboard.Keyboard[0][0].Text)
	assert.Equal(t, "B", keyboard.Keyboard[1][0].Text)
	assert.Equal(t, []string{"hi"}, d.received[1])
}

func TestHandleMessage_RemovesKeyboard(t *testing.T) {
	d := &fakeDispatcher{reply: models.OutgoingMessage{Text: "Hello\n", RemoveKeyboard: true}}
	b, api := newTestBot(t, d)

	b.handleMessage(context.Background(), textMessage(1, "hi"))

	msgs := api.messages()
	require.Len(t, msgs, 1)
	remove, ok := msgs[0].ReplyMarkup.(tgbotapi.ReplyKeyboardRemove)
	require.True(t, ok)
	assert.True(t, remove.RemoveKeyboard)
}

func TestHandleMessage_DispatchErrorSendsFallback(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("assistant down")}
	b, api := newTestBot(t, d)

	b.handleMessage(context.Background(), textMessage(1, "hi"))

	msgs := api.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "⚠️ "+unavailableText, msgs[0].Text)
}

func TestHandleMessage_Commands(t *testing.T) {
	tests := []struct {
		command string
		want    []string
	}{
		{"start", []string{"Welcome\n", "Помощь: /help"}},
		{"help", []string{"help text"}},
		{"weather", []string{"Sorry, I didn't understand that command."}},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			d := &fakeDispatcher{}
			b, api := newTestBot(t, d)

			b.handleMessage(context.Background(), commandMessage(3, tt.command))

			_, typing := api.events[0].(tgbotapi.ChatActionConfig)
			assert.True(t, typing)
			var got []string
			for _, msg := range api.messages() {
				got = append(got, msg.Text)
			}
			assert.Equal(t, tt.want, got)
			assert.Empty(t, d.received)
		})
	}
}

func TestHandleMessage_StartHintHasNoMarkup(t *testing.T) {
	b, api := newTestBot(t, &fakeDispatcher{})

	b.handleMessage(context.Background(), commandMessage(3, "start"))

	msgs := api.messages()
	require.Len(t, msgs, 2)
	assert.IsType(t, tgbotapi.ReplyKeyboardRemove{}, msgs[0].ReplyMarkup)
	assert.Nil(t, msgs[1].ReplyMarkup)
}

func TestHandleMessage_IgnoresNonText(t *testing.T) {
	d := &fakeDispatcher{}
	b, api := newTestBot(t, d)

	b.handleMessage(context.Background(), textMessage(1, ""))

	assert.Empty(t, api.events)
	assert.Empty(t, d.received)
}

func TestServe_PreservesPerUserOrder(t *testing.T) {
	d := &fakeDispatcher{reply: models.OutgoingMessage{Text: "ok", RemoveKeyboard: true}}
	b, _ := newTestBot(t, d)

	updates := make(chan tgbotapi.Update, 100)
	for i := 0; i < 10; i++ {
		for user := int64(1); user <= 3; user++ {
			updates <- tgbotapi.Update{Message: textMessage(user, fmt.Sprintf("msg-%d", i))}
		}
	}
	updates <- tgbotapi.Update{}
	close(updates)

	require.NoError(t, b.serve(context.Background(), updates))

	for user := int64(1); user <= 3; user++ {
		got := d.received[user]
		require.Len(t, got, 10)
		for i, text := range got {
			assert.Equal(t, fmt.Sprintf("msg-%d", i), text)
		}
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	b, api := newTestBot(t, &fakeDispatcher{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, b.serve(ctx, make(chan tgbotapi.Update)))
	assert.True(t, api.stopped)
}

func TestShard(t *testing.T) {
	assert.Equal(t, shard(42, 4), shard(42, 4))
	for id := int64(0); id < 100; id++ {
		s := shard(id, 3)
		assert.True(t, s >= 0 && s < 3)
	}
}
