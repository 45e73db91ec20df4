// Package ticketing implements the ServiceNow REST client used to create,
// find, and track incidents. Transient failures (network, 5xx) are retried
// with exponential backoff; 4xx responses surface immediately.
package ticketing

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

// Client talks to a single ServiceNow instance.
type Client struct {
	httpClient *http.Client
	baseURL    string
	instance   string
	username   string
	password   string
	maxRetries int
	baseDelay  time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a ticketing client from configuration.
func NewClient(cfg config.TicketingConfig, logger *slog.Logger) (*Client, error) {
	if cfg.InstanceURL == "" {
		return nil, fmt.Errorf("ticketing instance URL is required")
	}

	instance := strings.TrimSuffix(cfg.InstanceURL, "/")
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    instance + "/api/now",
		instance:   instance,
		username:   cfg.Username,
		password:   cfg.Password,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:     logger.With("component", "ticketing_client"),
	}, nil
}

// TicketLink builds the instance URL for viewing a ticket.
func (c *Client) TicketLink(sysID string) string {
	return fmt.Sprintf("%s/nav_to.do?uri=incident.do?sys_id=%s", c.instance, sysID)
}

type recordResult struct {
	Result Ticket `json:"result"`
}

type listResult struct {
	Result []Ticket `json:"result"`
}

// CreateIncident opens a new incident. payload.CorrelationID is stored in
// the incident's correlation field so retried creates for the same message
// are deduplicated by the backend, not just locally.
func (c *Client) CreateIncident(ctx context.Context, payload CreatePayload) (*Ticket, error) {
	if payload.CorrelationID == "" {
		return nil, fmt.Errorf("create payload must carry a correlation ID")
	}

	body := map[string]string{
		"short_description": payload.Title,
		"description":       payload.Description,
		"priority":          payload.Priority,
		"category":          payload.Category,
		"subcategory":       payload.Subcategory,
		"urgency":           payload.Urgency,
		"impact":            payload.Impact,
		"assignment_group":  payload.AssignmentGroup,
		"correlation_id":    payload.CorrelationID,
		"work_notes":        fmt.Sprintf("Auto-created from chat message by ChatDesk (requester: %s)", payload.CallerName),
	}

	var parsed recordResult
	err := c.doWithRetries(ctx, "create incident", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, c.baseURL+"/table/incident", body, &parsed)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create incident for message %s: %w", payload.CorrelationID, err)
	}

	c.logger.InfoContext(ctx, "Created incident",
		"number", parsed.Result.Number, "correlation_id", payload.CorrelationID)
	return &parsed.Result, nil
}

// FindByCorrelation looks up an incident by its correlation field.
// Returns nil, nil when no incident exists for the message ID.
func (c *Client) FindByCorrelation(ctx context.Context, messageID string) (*Ticket, error) {
	if messageID == "" {
		return nil, fmt.Errorf("message ID cannot be empty")
	}

	params := url.Values{}
	params.Set("sysparm_query", "correlation_id="+messageID)
	params.Set("sysparm_limit", "1")
	endpoint := c.baseURL + "/table/incident?" + params.Encode()

	var parsed listResult
	err := c.doWithRetries(ctx, "find incident by correlation", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, endpoint, nil, &parsed)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find incident for message %s: %w", messageID, err)
	}

	if len(parsed.Result) == 0 {
		return nil, nil
	}
	return &parsed.Result[0], nil
}

// ListRecent returns incidents created within the lookback window, newest
// first, capped at limit.
func (c *Client) ListRecent(ctx context.Context, window time.Duration, limit int) ([]Ticket, error) {
	since := time.Now().UTC().Add(-window)

	params := url.Values{}
	params.Set("sysparm_query", fmt.Sprintf("sys_created_on>%s^ORDERBYDESCsys_created_on", since.Format("2006-01-02 15:04:05")))
	params.Set("sysparm_limit", fmt.Sprintf("%d", limit))
	endpoint := c.baseURL + "/table/incident?" + params.Encode()

	var parsed listResult
	err := c.doWithRetries(ctx, "list recent incidents", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, endpoint, nil, &parsed)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list recent incidents: %w", err)
	}

	return parsed.Result, nil
}

// GetIncident fetches a single incident by sys_id. Returns nil, nil when
// the incident does not exist.
func (c *Client) GetIncident(ctx context.Context, sysID string) (*Ticket, error) {
	if sysID == "" {
		return nil, fmt.Errorf("sys_id cannot be empty")
	}

	var parsed recordResult
	err := c.doWithRetries(ctx, "get incident", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, c.baseURL+"/table/incident/"+sysID, nil, &parsed)
	})
	if err != nil {
		if apierror.IsPermission(err) && strings.Contains(err.Error(), "404") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get incident %s: %w", sysID, err)
	}

	return &parsed.Result, nil
}

// doWithRetries runs op, retrying transient failures with exponential
// backoff up to maxRetries. Permission errors are never retried.
func (c *Client) doWithRetries(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	delay := c.baseDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}

		if !apierror.IsTransient(err) {
			c.logger.ErrorContext(ctx, "Ticketing API call failed with non-retriable error",
				"operation", op, "error", err)
			return err
		}

		if attempt == c.maxRetries {
			break
		}

		c.logger.WarnContext(ctx, "Ticketing API call failed, retrying",
			"operation", op, "attempt", attempt+1, "max_retries", c.maxRetries,
			"delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	c.logger.ErrorContext(ctx, "Ticketing API call failed after max retries",
		"operation", op, "max_retries", c.maxRetries, "error", err)
	return fmt.Errorf("%s failed after %d retries: %w", op, c.maxRetries, err)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierror.Wrap("ticketing request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierror.Wrap("ticketing response read", err)
	}
	if apiErr := apierror.FromStatus("ticketing request", resp.StatusCode, string(respBody)); apiErr != nil {
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
