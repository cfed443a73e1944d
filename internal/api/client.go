package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bosar/console/internal/wire"
	"github.com/bosar/console/pkg/logger"
)

// defaultHTTPTimeout is the per-request timeout used by the API client.
const defaultHTTPTimeout = 10 * time.Second

// Error is the backend's failure response shape.
type Error struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Err        string `json:"error,omitempty"`
}

func (e *Error) Error() string {
	if e.Err != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.StatusCode)
}

// Conversation is a support conversation record.
type Conversation struct {
	ID            string        `json:"id"`
	CustomerID    string        `json:"customerId"`
	Status        wire.Status   `json:"status"`
	UserID        string        `json:"userId,omitempty"`
	User          *wire.UserRef `json:"user,omitempty"`
	CreatedAt     string        `json:"createdAt"`
	UpdatedAt     string        `json:"updatedAt"`
	LastMessageAt string        `json:"lastMessageAt,omitempty"`
}

// Pagination describes the window of a paginated message response.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// MessagesPage is the response of the conversation history endpoint.
type MessagesPage struct {
	Messages   []wire.Message `json:"messages"`
	Pagination Pagination     `json:"pagination"`
}

// MessagesQuery narrows a history fetch. Zero values are omitted.
type MessagesQuery struct {
	Limit  int
	Offset int
	// After and Before are message ids bounding the page.
	After  string
	Before string
}

// CreateMessageRequest is the chat-message creation body.
type CreateMessageRequest struct {
	ConversationID string    `json:"conversationId"`
	Message        string    `json:"message"`
	Role           wire.Role `json:"role"`
	UserID         string    `json:"userId,omitempty"`
}

// LoginResponse is the auth endpoint's success body.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
		Role  string `json:"role"`
	} `json:"user"`
}

// Client is the bosar REST API client. It covers the endpoints the chat
// console needs: auth, conversation lookup, message history, message
// creation and human takeover.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates an API client for the given base URL. The URL must not
// have a trailing slash; request paths are joined as baseURL + "/...".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetToken sets the bearer token attached to subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	return c.token
}

// Login authenticates with email and password and stores the returned token
// on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var resp LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", body, &resp); err != nil {
		return nil, err
	}
	c.token = resp.AccessToken
	return &resp, nil
}

// Conversations lists all conversations visible to the agent.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Conversation fetches a single conversation by id.
func (c *Client) Conversation(ctx context.Context, id string) (*Conversation, error) {
	var out Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/conversations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Messages fetches a page of a conversation's message history.
func (c *Client) Messages(ctx context.Context, conversationID string, q MessagesQuery) (*MessagesPage, error) {
	path := "/chat-messages/conversation/" + url.PathEscape(conversationID)

	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.After != "" {
		params.Set("after", q.After)
	}
	if q.Before != "" {
		params.Set("before", q.Before)
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var out MessagesPage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateMessage creates a chat message through the REST path. Used as the
// send fallback when the realtime transport is down.
func (c *Client) CreateMessage(ctx context.Context, req CreateMessageRequest) (*wire.Message, error) {
	var out wire.Message
	if err := c.doJSON(ctx, http.MethodPost, "/chat-messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TriggerHumanTakeover flips a conversation from bot handling to the current
// agent.
func (c *Client) TriggerHumanTakeover(ctx context.Context, conversationID, reason string) error {
	path := "/conversations/" + url.PathEscape(conversationID) + "/human-takeover"
	body := map[string]string{"reason": reason}
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

// doJSON performs a JSON request against the backend. Non-2xx responses are
// decoded into *Error when they carry the backend's error shape.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("api: base URL not set")
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	logger.Tracef("api: %s %s", method, path)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
			apiErr.StatusCode = resp.StatusCode
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
