package slackcmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type slackAPI struct {
	http     *http.Client
	baseURL  string
	botToken string
}

func newSlackAPI(httpClient *http.Client, baseURL, botToken string) *slackAPI {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimSpace(strings.TrimRight(baseURL, "/"))
	if baseURL == "" {
		baseURL = "https://slack.com/api"
	}
	return &slackAPI{
		http:     httpClient,
		baseURL:  baseURL,
		botToken: strings.TrimSpace(botToken),
	}
}

type slackRTMSelf struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type slackRTMConnectResponse struct {
	OK    bool         `json:"ok"`
	Error string       `json:"error,omitempty"`
	URL   string       `json:"url,omitempty"`
	Self  slackRTMSelf `json:"self,omitempty"`
}

func (api *slackAPI) rtmConnect(ctx context.Context) (string, slackRTMSelf, error) {
	if api == nil {
		return "", slackRTMSelf{}, fmt.Errorf("slack api is not initialized")
	}
	body, status, _, err := api.postAuthJSON(ctx, "/rtm.connect", nil)
	if err != nil {
		return "", slackRTMSelf{}, err
	}
	if status < 200 || status >= 300 {
		return "", slackRTMSelf{}, fmt.Errorf("slack rtm.connect http %d", status)
	}
	var out slackRTMConnectResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", slackRTMSelf{}, err
	}
	if !out.OK {
		code := strings.TrimSpace(out.Error)
		if code == "" {
			code = "unknown_error"
		}
		return "", slackRTMSelf{}, fmt.Errorf("slack rtm.connect failed: %s", code)
	}
	url := strings.TrimSpace(out.URL)
	if url == "" {
		return "", slackRTMSelf{}, fmt.Errorf("slack rtm.connect returned empty url")
	}
	if strings.TrimSpace(out.Self.ID) == "" {
		return "", slackRTMSelf{}, fmt.Errorf("slack rtm.connect returned empty self id")
	}
	return url, out.Self, nil
}

// rtmConn wraps the RTM websocket. Writes are serialized: the typing
// indicator and the keepalive ping run on different goroutines.
type rtmConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
	seq  int
}

func (api *slackAPI) connectRTM(ctx context.Context) (*rtmConn, slackRTMSelf, error) {
	url, self, err := api.rtmConnect(ctx)
	if err != nil {
		return nil, slackRTMSelf{}, err
	}
	dialer := *websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, slackRTMSelf{}, err
	}
	return &rtmConn{conn: conn}, self, nil
}

func (c *rtmConn) writeJSON(v any) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("rtm connection is not initialized")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *rtmConn) nextSeq() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

type rtmTypingEvent struct {
	ID      int    `json:"id"`
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// typing signals the typing indicator on the channel. Failures are not
// surfaced: typing is best effort.
func (c *rtmConn) typing(channel string) error {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return fmt.Errorf("channel is required")
	}
	return c.writeJSON(rtmTypingEvent{ID: c.nextSeq(), Type: "typing", Channel: channel})
}

type rtmPingEvent struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
}

func (c *rtmConn) ping() error {
	return c.writeJSON(rtmPingEvent{ID: c.nextSeq(), Type: "ping"})
}

func (c *rtmConn) readRaw() ([]byte, error) {
	if c == nil || c.conn == nil {
		return nil, fmt.Errorf("rtm connection is not initialized")
	}
	_, raw, err := c.conn.ReadMessage()
	return raw, err
}

func (c *rtmConn) close() {
	if c == nil || c.conn == nil {
		return
	}
	_ = c.conn.Close()
}

type slackPostMessageRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

type slackPostMessageResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	TS    string `json:"ts,omitempty"`
}

func (api *slackAPI) postMessage(ctx context.Context, channelID, text string) error {
	channelID = strings.TrimSpace(channelID)
	text = strings.TrimSpace(text)
	if channelID == "" {
		return fmt.Errorf("channel_id is required")
	}
	if text == "" {
		return fmt.Errorf("text is required")
	}
	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, status, headers, err := api.postAuthJSON(ctx, "/chat.postMessage", slackPostMessageRequest{
			Channel: channelID,
			Text:    text,
		})
		if err != nil {
			lastErr = err
		} else {
			var out slackPostMessageResponse
			if parseErr := json.Unmarshal(body, &out); parseErr != nil {
				lastErr = parseErr
			} else if status < 200 || status >= 300 {
				lastErr = fmt.Errorf("slack chat.postMessage http %d", status)
			} else if out.OK {
				return nil
			} else {
				code := strings.TrimSpace(out.Error)
				if code == "" {
					code = "unknown_error"
				}
				lastErr = fmt.Errorf("slack chat.postMessage failed: %s", code)
			}
		}

		if attempt >= maxAttempts {
			break
		}
		wait, retryable := slackRetryDelay(status, headers, attempt)
		if !retryable {
			break
		}
		if err := sleepWithContext(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

func slackRetryDelay(status int, headers http.Header, attempt int) (time.Duration, bool) {
	switch {
	case status == http.StatusTooManyRequests:
		retryAfter := strings.TrimSpace(headers.Get("Retry-After"))
		if retryAfter == "" {
			return 1 * time.Second, true
		}
		secs, err := strconv.Atoi(retryAfter)
		if err != nil || secs <= 0 {
			return 1 * time.Second, true
		}
		return time.Duration(secs) * time.Second, true
	case status >= 500 && status <= 599:
		switch attempt {
		case 1:
			return 300 * time.Millisecond, true
		case 2:
			return 1 * time.Second, true
		default:
			return 2 * time.Second, true
		}
	default:
		return 0, false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (api *slackAPI) postAuthJSON(ctx context.Context, path string, payload any) ([]byte, int, http.Header, error) {
	if api == nil || api.http == nil {
		return nil, 0, nil, fmt.Errorf("slack api is not initialized")
	}
	if api.botToken == "" {
		return nil, 0, nil, fmt.Errorf("slack token is required")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, 0, nil, fmt.Errorf("slack api path is required")
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, api.baseURL+path, body)
	if err != nil {
		return nil, 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+api.botToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := api.http.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp.StatusCode, resp.Header, readErr
	}
	return raw, resp.StatusCode, resp.Header, nil
}
