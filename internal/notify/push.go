package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yukikurage/circuit/internal/models"
)

// TokenLookup returns the device tokens registered by a set of users.
type TokenLookup interface {
	ListPushTokens(ctx context.Context, userIDs []uint64) ([]models.PushToken, error)
}

// PushChannel posts messages to an HTTP push gateway that fans out to devices.
type PushChannel struct {
	endpoint   string
	apiKey     string
	tokens     TokenLookup
	httpClient *http.Client
}

func NewPushChannel(endpoint, apiKey string, tokens TokenLookup, timeout time.Duration) *PushChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PushChannel{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *PushChannel) Name() string { return "push" }

type pushRequest struct {
	Tokens []string          `json:"tokens"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

func (p *PushChannel) Deliver(ctx context.Context, msg Message) error {
	tokens, err := p.tokens.ListPushTokens(ctx, msg.RecipientIDs())
	if err != nil {
		return fmt.Errorf("load push tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	req := pushRequest{
		Tokens: make([]string, len(tokens)),
		Title:  msg.Title,
		Body:   msg.Body,
		Data:   map[string]string{"kind": string(msg.Kind)},
	}
	for i, t := range tokens {
		req.Tokens[i] = t.Token
	}
	for k, v := range msg.Refs {
		req.Data[k] = v
	}

	return p.doJSON(ctx, http.MethodPost, "/send", req, nil)
}

func (p *PushChannel) doJSON(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.endpoint+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("push gateway %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
