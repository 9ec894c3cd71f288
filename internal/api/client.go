// ABOUTME: REST client for the skillforge marketplace API
// ABOUTME: Covers conversations, message history, sends and notifications

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/skillforge/skillforge-client/internal/model"
)

// Client talks to the marketplace REST API with a bearer credential.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a REST client. Pass nil logger for the default.
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "api"),
	}
}

// HistoryPage is one page of a conversation's message history.
type HistoryPage struct {
	Messages   []model.Message `json:"messages"`
	HasMore    bool            `json:"hasMore"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

// SendRequest is the body for posting a message. TempID is echoed back by
// the server so the client can reconcile the optimistic entry.
type SendRequest struct {
	Text   string `json:"text"`
	TempID string `json:"tempId"`
}

// ListConversations fetches all conversation summaries for the session user.
func (c *Client) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	var out struct {
		Conversations []model.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// GetHistory fetches one page of a conversation's messages, oldest first.
// An empty cursor requests the most recent page.
func (c *Client) GetHistory(ctx context.Context, conversationID, cursor string, limit int) (*HistoryPage, error) {
	path := fmt.Sprintf("/api/conversations/%s/messages", url.PathEscape(conversationID))
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page HistoryPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// PostMessage sends a message and returns the confirmed server record.
func (c *Client) PostMessage(ctx context.Context, conversationID string, req SendRequest) (*model.Message, error) {
	path := fmt.Sprintf("/api/conversations/%s/messages", url.PathEscape(conversationID))
	var msg model.Message
	if err := c.do(ctx, http.MethodPost, path, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListNotifications fetches the current notification list, newest first.
func (c *Client) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	var out struct {
		Notifications []model.Notification `json:"notifications"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/notifications", nil, &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

// MarkNotificationRead marks a single notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	path := fmt.Sprintf("/api/notifications/%s/read", url.PathEscape(id))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// MarkAllNotificationsRead marks every notification as read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/notifications/read-all", nil, nil)
}

// do performs one request, mapping failures onto the error taxonomy:
// network errors and 5xx become TransientError, 401/403 become AuthError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Op: op, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case resp.StatusCode >= 500:
		return &TransientError{Op: op, Err: fmt.Errorf("server returned %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: server returned %d: %s", op, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransientError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
