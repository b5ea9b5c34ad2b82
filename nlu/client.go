// Package nlu is a client for the intent-classification service. It speaks
// the api.ai v1 query protocol: free text plus a session id in, a classified
// intent with extracted parameters and a canned fulfillment utterance out.
package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://api.api.ai/v1"
	defaultQueryPath = "/query"
	protocolVersion  = "20150910"
	defaultLang      = "en"
)

type Client struct {
	http        *http.Client
	baseURL     string
	queryPath   string
	accessToken string
	lang        string
}

type Option func(*Client)

// WithEndpoint points the client at an alternate service host, used for the
// development deployment which serves the query API under /api/query.
func WithEndpoint(baseURL, queryPath string) Option {
	return func(c *Client) {
		baseURL = strings.TrimSpace(strings.TrimRight(baseURL, "/"))
		if baseURL != "" {
			c.baseURL = baseURL
		}
		queryPath = strings.TrimSpace(queryPath)
		if queryPath != "" {
			c.queryPath = queryPath
		}
	}
}

func WithLang(lang string) Option {
	return func(c *Client) {
		lang = strings.TrimSpace(lang)
		if lang != "" {
			c.lang = lang
		}
	}
}

func New(httpClient *http.Client, accessToken string, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{
		http:        httpClient,
		baseURL:     defaultBaseURL,
		queryPath:   defaultQueryPath,
		accessToken: strings.TrimSpace(accessToken),
		lang:        defaultLang,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query sends one classification request. A nil Result inside a successful
// Response is valid; the caller decides what to do with it.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*Response, error) {
	if c == nil || c.http == nil {
		return nil, fmt.Errorf("nlu client is not initialized")
	}
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if c.accessToken == "" {
		return nil, fmt.Errorf("nlu access token is required")
	}

	raw, err := json.Marshal(queryPayload{
		Query:     text,
		SessionID: sessionID,
		Lang:      c.lang,
		Contexts:  req.Contexts,
	})
	if err != nil {
		return nil, err
	}
	url := c.baseURL + c.queryPath + "?v=" + protocolVersion
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("nlu query http %d", resp.StatusCode)
	}
	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("nlu query response is invalid: %w", err)
	}
	return &out, nil
}
