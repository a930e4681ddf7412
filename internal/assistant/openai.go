package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"github.com/xaenox/wa-bot/internal/models"
	"go.uber.org/zap"
)

const (
	defaultOpenAISessionTTL = 5 * time.Minute
	defaultSystemPrompt     = "You are a helpful assistant in a Telegram chat. Answer briefly."
	greetingPrompt          = "Greet the user in one or two sentences and say how you can help."
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
	// SessionTTL is the idle time after which a session is rejected as expired.
	SessionTTL time.Duration
	Logger     *zap.Logger
}

type chatSession struct {
	messages []openai.ChatCompletionMessage
	lastUsed time.Time
}

// OpenAIClient serves the assistant contract from chat completions, keeping the
// conversation history of every session in memory.
type OpenAIClient struct {
	client       chatClient
	model        string
	maxTokens    int
	temperature  float64
	systemPrompt string
	sessionTTL   time.Duration
	logger       *zap.Logger
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]*chatSession
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return newOpenAIClient(openai.NewClientWithConfig(clientConfig), cfg), nil
}

func newOpenAIClient(client chatClient, cfg OpenAIConfig) *OpenAIClient {
	model := cfg.Model
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultOpenAISessionTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIClient{
		client:       client,
		model:        model,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		systemPrompt: prompt,
		sessionTTL:   ttl,
		logger:       logger,
		now:          time.Now,
		sessions:     make(map[string]*chatSession),
	}
}

func (c *OpenAIClient) CreateSession(ctx context.Context) (models.SessionID, error) {
	id := uuid.NewString()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpiredLocked()
	c.sessions[id] = &chatSession{
		messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt},
		},
		lastUsed: c.now(),
	}
	return id, nil
}

func (c *OpenAIClient) SendMessage(ctx context.Context, sessionID models.SessionID, text string) (*models.AssistantReply, error) {
	content := text
	if content == "" {
		content = greetingPrompt
	}
	userMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: content}

	c.mu.Lock()
	session, ok := c.sessions[sessionID]
	if ok && c.now().Sub(session.lastUsed) > c.sessionTTL {
		delete(c.sessions, sessionID)
		ok = false
	}
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: unknown session %s", ErrSessionInvalid, sessionID)
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(session.messages)+1)
	messages = append(messages, session.messages...)
	messages = append(messages, userMsg)
	c.mu.Unlock()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: float32(c.temperature),
	})
	if err != nil {
		c.logger.Error("Failed to get GPT response", zap.Error(err), zap.String("session_id", sessionID))
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}

	raw, _ := json.Marshal(resp)
	reply := &models.AssistantReply{Raw: raw}
	if len(resp.Choices) == 0 {
		return reply, nil
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	reply.Parts = []models.ResponsePart{{Kind: models.TextPart, Text: &answer}}

	c.mu.Lock()
	if session, ok := c.sessions[sessionID]; ok {
		session.messages = append(session.messages, userMsg, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: answer,
		})
		session.lastUsed = c.now()
	}
	c.mu.Unlock()

	return reply, nil
}

func (c *OpenAIClient) evictExpiredLocked() {
	now := c.now()
	for id, session := range c.sessions {
		if now.Sub(session.lastUsed) > c.sessionTTL {
			delete(c.sessions, id)
		}
	}
}
