package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	DefaultIAMURL = "https://iam.cloud.ibm.com/identity/token"
	iamGrantType  = "urn:ibm:params:oauth:grant-type:apikey"
)

type iamTokenSource struct {
	ctx        context.Context
	iamURL     string
	apiKey     string
	httpClient *http.Client
}

type iamTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// NewIAMTokenSource exchanges an IBM Cloud API key for bearer tokens.
// Tokens are cached and refreshed shortly before they expire.
func NewIAMTokenSource(ctx context.Context, iamURL, apiKey string, httpClient *http.Client) oauth2.TokenSource {
	if iamURL == "" {
		iamURL = DefaultIAMURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return oauth2.ReuseTokenSource(nil, &iamTokenSource{
		ctx:        ctx,
		iamURL:     iamURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	})
}

func (s *iamTokenSource) Token() (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("grant_type", iamGrantType)
	form.Set("apikey", s.apiKey)

	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.iamURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("iam: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("iam: request token: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("iam: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("iam: token request rejected (status %d): %s",
			resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var tok iamTokenResponse
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("iam: decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("iam: empty access token")
	}

	return &oauth2.Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Expiry:      time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}, nil
}
