// Package invite resolves a Slack usergroup to its members and invites each
// member into a channel. Per-member invite calls run concurrently and the
// batch settles only when every call has finished.
package invite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const defaultBaseURL = "https://slack.com/api"

type Gateway struct {
	http    *http.Client
	baseURL string
	token   string
	log     *slog.Logger
}

func NewGateway(httpClient *http.Client, baseURL, token string, logger *slog.Logger) *Gateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimSpace(strings.TrimRight(baseURL, "/"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		http:    httpClient,
		baseURL: baseURL,
		token:   strings.TrimSpace(token),
		log:     logger,
	}
}

type usergroupUsersListRequest struct {
	Token     string `json:"token"`
	Usergroup string `json:"usergroup"`
}

type usergroupUsersListResponse struct {
	OK    bool     `json:"ok"`
	Error string   `json:"error,omitempty"`
	Users []string `json:"users,omitempty"`
}

// GroupMembers resolves a usergroup id to its member user ids.
func (g *Gateway) GroupMembers(ctx context.Context, usergroup string) ([]string, error) {
	if g == nil || g.http == nil {
		return nil, fmt.Errorf("invite gateway is not initialized")
	}
	usergroup = strings.TrimSpace(usergroup)
	if usergroup == "" {
		return nil, fmt.Errorf("usergroup is required")
	}
	var out usergroupUsersListResponse
	if err := g.postJSON(ctx, "/usergroups.users.list", usergroupUsersListRequest{
		Token:     g.token,
		Usergroup: usergroup,
	}, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		code := strings.TrimSpace(out.Error)
		if code == "" {
			code = "unknown_error"
		}
		return nil, fmt.Errorf("slack usergroups.users.list failed: %s", code)
	}
	users := make([]string, 0, len(out.Users))
	for _, u := range out.Users {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

type channelInviteRequest struct {
	Token   string `json:"token"`
	Channel string `json:"channel"`
	User    string `json:"user"`
}

type channelInviteResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (g *Gateway) inviteUser(ctx context.Context, channelID, userID string) error {
	var out channelInviteResponse
	if err := g.postJSON(ctx, "/channels.invite", channelInviteRequest{
		Token:   g.token,
		Channel: channelID,
		User:    userID,
	}, &out); err != nil {
		return err
	}
	if !out.OK {
		code := strings.TrimSpace(out.Error)
		if code == "" {
			code = "unknown_error"
		}
		return fmt.Errorf("slack channels.invite failed: %s", code)
	}
	return nil
}

// InviteAll invites every user into the channel. Calls are issued
// concurrently; one user's failure never blocks or cancels the others.
// Failures are logged per user and reported as a single aggregate error.
func (g *Gateway) InviteAll(ctx context.Context, channelID string, users []string) error {
	if g == nil || g.http == nil {
		return fmt.Errorf("invite gateway is not initialized")
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return fmt.Errorf("channel_id is required")
	}
	if len(users) == 0 {
		return nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, userID := range users {
		userID := strings.TrimSpace(userID)
		if userID == "" {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.inviteUser(ctx, channelID, userID); err != nil {
				g.log.Warn("invite_user_error", "channel_id", channelID, "user_id", userID, "error", err.Error())
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if failed > 0 {
		return fmt.Errorf("%d of %d invites failed", failed, len(users))
	}
	return nil
}

// InviteGroup runs the full two-step sequence: resolve the usergroup's
// members, then invite each into the channel.
func (g *Gateway) InviteGroup(ctx context.Context, channelID, usergroup string) error {
	users, err := g.GroupMembers(ctx, usergroup)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		g.log.Info("invite_group_empty", "usergroup", usergroup)
		return nil
	}
	return g.InviteAll(ctx, channelID, users)
}

func (g *Gateway) postJSON(ctx context.Context, path string, payload, out any) error {
	if ctx == nil {
		return fmt.Errorf("context is required")
	}
	if g.token == "" {
		return fmt.Errorf("slack token is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack %s http %d", strings.TrimPrefix(path, "/"), resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}
