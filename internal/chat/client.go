// Package chat implements the Google Chat REST client used for message
// ingestion and for posting ticket confirmations back into conversations.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/chatdesk/chatdesk/internal/apierror"
	"github.com/chatdesk/chatdesk/internal/config"
)

// Client talks to the Google Chat REST API for a single space.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	spaceID    string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a chat client from configuration. Outbound calls are
// rate limited to respect the platform's per-bot quotas.
func NewClient(cfg config.ChatConfig, logger *slog.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("chat API token is required")
	}
	if cfg.SpaceID == "" {
		return nil, fmt.Errorf("chat space ID is required")
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		spaceID:    normalizeSpaceID(cfg.SpaceID),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:     logger.With("component", "chat_client"),
	}, nil
}

// SpaceID returns the normalized space this client is bound to.
func (c *Client) SpaceID() string {
	return c.spaceID
}

// messagePayload mirrors the wire shape of a Chat API message resource.
type messagePayload struct {
	Name   string `json:"name"`
	Sender struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	} `json:"sender"`
	Text   string `json:"text"`
	Thread struct {
		Name string `json:"name"`
	} `json:"thread"`
	CreateTime time.Time `json:"createTime"`
}

type listResponse struct {
	Messages []messagePayload `json:"messages"`
}

// ListMessages fetches messages created after the given timestamp. One
// bounded batch per call; callers must tolerate re-delivery across calls.
func (c *Client) ListMessages(ctx context.Context, since time.Time) ([]Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", c.baseURL, c.spaceID)
	params := url.Values{}
	if !since.IsZero() {
		params.Set("filter", fmt.Sprintf("createTime > %q", since.UTC().Format(time.RFC3339)))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build list request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	c.logger.DebugContext(ctx, "Listing space messages", "since", since)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierror.Wrap("chat list messages", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierror.Wrap("chat list messages", err)
	}
	if apiErr := apierror.FromStatus("chat list messages", resp.StatusCode, string(body)); apiErr != nil {
		c.logger.ErrorContext(ctx, "Failed to list messages", "status", resp.StatusCode, "error", apiErr)
		return nil, apiErr
	}

	var parsed listResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode message list: %w", err)
	}

	messages := make([]Message, 0, len(parsed.Messages))
	for _, m := range parsed.Messages {
		messages = append(messages, Message{
			MessageID: lastPathSegment(m.Name),
			ThreadID:  lastPathSegment(m.Thread.Name),
			UserID:    lastPathSegment(m.Sender.Name),
			UserName:  senderName(m.Sender.DisplayName),
			Text:      m.Text,
			SpaceID:   c.spaceID,
			CreatedAt: m.CreateTime,
		})
	}

	c.logger.DebugContext(ctx, "Listed space messages", "count", len(messages))
	return messages, nil
}

// postPayload is the outgoing message body. The quoted metadata is only
// set for quote replies.
type postPayload struct {
	Text                  string `json:"text"`
	QuotedMessageMetadata *struct {
		Name string `json:"name"`
	} `json:"quotedMessageMetadata,omitempty"`
}

// Post delivers a single message using the addressing in req. It makes
// exactly one attempt: the notification dispatcher owns fallback between
// addressing modes, and retrying here could deliver a duplicate.
func (c *Client) Post(ctx context.Context, req PostRequest) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	spaceID := normalizeSpaceID(req.SpaceID)
	if spaceID == "" {
		spaceID = c.spaceID
	}

	endpoint := fmt.Sprintf("%s/%s/messages", c.baseURL, spaceID)
	if req.ThreadID != "" {
		endpoint = fmt.Sprintf("%s/%s/threads/%s/messages", c.baseURL, spaceID, req.ThreadID)
	}

	payload := postPayload{Text: req.Text}
	if req.QuotedMessageID != "" {
		payload.QuotedMessageMetadata = &struct {
			Name string `json:"name"`
		}{Name: fmt.Sprintf("%s/messages/%s", spaceID, req.QuotedMessageID)}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode post payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build post request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return apierror.Wrap("chat post message", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierror.Wrap("chat post message", err)
	}
	if apiErr := apierror.FromStatus("chat post message", resp.StatusCode, string(respBody)); apiErr != nil {
		c.logger.WarnContext(ctx, "Failed to post message",
			"space_id", spaceID, "thread_id", req.ThreadID,
			"quoted_message_id", req.QuotedMessageID,
			"status", resp.StatusCode, "error", apiErr)
		return apiErr
	}

	c.logger.DebugContext(ctx, "Posted message",
		"space_id", spaceID, "thread_id", req.ThreadID, "quoted_message_id", req.QuotedMessageID)
	return nil
}

func normalizeSpaceID(spaceID string) string {
	if spaceID == "" {
		return ""
	}
	if strings.HasPrefix(spaceID, "spaces/") {
		return spaceID
	}
	return "spaces/" + spaceID
}

func lastPathSegment(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, "/")
	return parts[len(parts)-1]
}

func senderName(displayName string) string {
	if displayName == "" {
		return "Unknown"
	}
	return displayName
}
