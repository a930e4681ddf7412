package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xaenox/wa-bot/internal/models"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const DefaultWatsonVersion = "2019-02-28"

// WatsonConfig controls the Watson Assistant v2 client.
type WatsonConfig struct {
	URL         string
	AssistantID string
	APIKey      string
	Version     string
	IAMURL      string
	Timeout     time.Duration
	// TokenSource overrides the IAM exchange built from APIKey.
	TokenSource oauth2.TokenSource
	// Transport is the base round tripper; http.DefaultTransport when nil.
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// WatsonClient calls the Watson Assistant v2 REST API.
type WatsonClient struct {
	baseURL     string
	assistantID string
	version     string
	httpClient  *http.Client
	logger      *zap.Logger
}

type watsonSessionResponse struct {
	SessionID string `json:"session_id"`
}

type watsonMessageRequest struct {
	Input *watsonMessageInput `json:"input,omitempty"`
}

type watsonMessageInput struct {
	MessageType string `json:"message_type"`
	Text        string `json:"text"`
}

type watsonMessageResponse struct {
	Output struct {
		Generic []models.ResponsePart `json:"generic"`
	} `json:"output"`
}

type watsonErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func NewWatsonClient(ctx context.Context, cfg WatsonConfig) (*WatsonClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("watson: service url is required")
	}
	if strings.TrimSpace(cfg.AssistantID) == "" {
		return nil, errors.New("watson: assistant id is required")
	}
	ts := cfg.TokenSource
	if ts == nil {
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("watson: api key is required")
		}
		ts = NewIAMTokenSource(ctx, cfg.IAMURL, cfg.APIKey, nil)
	}
	version := cfg.Version
	if version == "" {
		version = DefaultWatsonVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WatsonClient{
		baseURL:     baseURL,
		assistantID: cfg.AssistantID,
		version:     version,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &oauth2.Transport{Source: ts, Base: base},
		},
		logger: logger,
	}, nil
}

func (c *WatsonClient) CreateSession(ctx context.Context) (models.SessionID, error) {
	path := fmt.Sprintf("/v2/assistants/%s/sessions", url.PathEscape(c.assistantID))
	data, err := c.invoke(ctx, path, nil)
	if err != nil {
		return "", fmt.Errorf("%w: create session: %w", ErrServiceUnavailable, err)
	}

	var resp watsonSessionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("%w: decode session: %w", ErrServiceUnavailable, err)
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("%w: empty session id", ErrServiceUnavailable)
	}

	c.logger.Debug("Watson session created", zap.String("session_id", resp.SessionID))
	return resp.SessionID, nil
}

// SendMessage posts text to the session. An empty text requests the greeting.
func (c *WatsonClient) SendMessage(ctx context.Context, sessionID models.SessionID, text string) (*models.AssistantReply, error) {
	var body watsonMessageRequest
	if text != "" {
		body.Input = &watsonMessageInput{MessageType: "text", Text: text}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("watson: marshal message: %w", err)
	}

	path := fmt.Sprintf("/v2/assistants/%s/sessions/%s/message",
		url.PathEscape(c.assistantID), url.PathEscape(sessionID))
	data, err := c.invoke(ctx, path, payload)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: %w", ErrSessionInvalid, err)
		}
		return nil, fmt.Errorf("%w: send message: %w", ErrServiceUnavailable, err)
	}

	var resp watsonMessageResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode message: %w", ErrServiceUnavailable, err)
	}

	return &models.AssistantReply{
		Parts: resp.Output.Generic,
		Raw:   json.RawMessage(data),
	}, nil
}

func (c *WatsonClient) invoke(ctx context.Context, path string, body []byte) ([]byte, error) {
	q := url.Values{}
	q.Set("version", c.version)
	fullURL := c.baseURL + path + "?" + q.Encode()

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("watson: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("watson: http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("watson: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return data, nil
}

func decodeAPIError(status int, data []byte) *APIError {
	var payload watsonErrorResponse
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return &APIError{StatusCode: status, Message: payload.Error}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(data))}
}
