// Package gemini implements integration with Google's Gemini AI API.
// It provides the intent classification, summarization, categorization,
// and duplicate-similarity capabilities used by the pipeline.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/chatdesk/chatdesk/internal/chat"
	"github.com/chatdesk/chatdesk/internal/config"
	"github.com/chatdesk/chatdesk/internal/ticketing"
)

// Client defines the interface for AI operations used by the pipeline.
type Client interface {
	// ClassifyIntent decides whether a message is a genuine support request.
	ClassifyIntent(ctx context.Context, msg chat.Message) (*IntentResult, error)

	// Summarize converts a support request into a structured ticket summary.
	Summarize(ctx context.Context, msg chat.Message) (*TicketSummary, error)

	// Categorize assigns category, priority, urgency, and an assignment
	// group to a summarized ticket.
	Categorize(ctx context.Context, summary *TicketSummary) (*TicketCategory, error)

	// JudgeSimilarity compares a message against recent tickets and
	// returns a soft duplicate signal.
	JudgeSimilarity(ctx context.Context, msg chat.Message, recent []ticketing.Ticket) (*SimilarityResult, error)
}

type sdkClient struct {
	genaiClient      *genai.Client
	log              *slog.Logger
	contentConfig    *genai.GenerateContentConfig
	defaultModelName string
	maxRetries       int
	retryDelay       time.Duration
}

// NewClient creates a new Gemini AI client with the provided configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	baseCfg := &genai.GenerateContentConfig{
		Temperature: &cfg.Temperature,
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "model", cfg.ModelName)
	return &sdkClient{
		genaiClient:      gi,
		log:              logger,
		contentConfig:    baseCfg,
		defaultModelName: cfg.ModelName,
		maxRetries:       cfg.MaxRetries,
		retryDelay:       time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, nil
}

var intentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"is_support_request": {Type: genai.TypeBoolean, Description: "Whether the message is a legitimate support request."},
		"confidence":         {Type: genai.TypeNumber, Description: "Confidence in the classification, 0.0-1.0."},
		"reasoning":          {Type: genai.TypeString, Description: "Brief explanation of the decision."},
	},
	Required: []string{"is_support_request", "confidence", "reasoning"},
}

var summarySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":             {Type: genai.TypeString, Description: "Brief, professional title, max 80 characters."},
		"description":       {Type: genai.TypeString, Description: "Detailed description of the issue."},
		"problem_statement": {Type: genai.TypeString, Description: "Clear problem statement."},
		"user_impact":       {Type: genai.TypeString, Description: "Impact on user or workflow."},
		"urgency_level":     {Type: genai.TypeString, Description: "High, Medium, or Low."},
	},
	Required: []string{"title", "description", "problem_statement", "user_impact", "urgency_level"},
}

var categorySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"category":         {Type: genai.TypeString, Description: "One of: hardware, software, network, access, email, printing, security, other."},
		"subcategory":      {Type: genai.TypeString, Description: "Specific subcategory."},
		"priority":         {Type: genai.TypeString, Description: "Priority number 1-5 as a string."},
		"urgency":          {Type: genai.TypeString, Description: "Urgency on a 1-4 scale as a string."},
		"assignment_group": {Type: genai.TypeString, Description: "Team to assign the ticket to."},
	},
	Required: []string{"category", "subcategory", "priority", "urgency", "assignment_group"},
}

var similaritySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"is_duplicate":          {Type: genai.TypeBoolean, Description: "Whether the new request duplicates an existing ticket."},
		"confidence":            {Type: genai.TypeNumber, Description: "Confidence in the judgement, 0.0-1.0."},
		"reasoning":             {Type: genai.TypeString, Description: "Detailed explanation of why this is or is not a duplicate."},
		"similar_ticket_number": {Type: genai.TypeString, Description: "Number of the most similar existing ticket, empty if none."},
	},
	Required: []string{"is_duplicate", "confidence", "reasoning", "similar_ticket_number"},
}

func (c *sdkClient) ClassifyIntent(ctx context.Context, msg chat.Message) (*IntentResult, error) {
	c.log.DebugContext(ctx, "Classifying intent", "message_id", msg.MessageID)

	prompt := fmt.Sprintf("User: %s\nMessage: %s", msg.UserName, msg.Text)

	var result IntentResult
	if err := c.generateJSON(ctx, IntentSystemInstruction, prompt, intentSchema, &result); err != nil {
		return nil, fmt.Errorf("intent classification failed: %w", err)
	}

	c.log.DebugContext(ctx, "Intent classified",
		"message_id", msg.MessageID, "is_request", result.IsRequest, "confidence", result.Confidence)
	return &result, nil
}

func (c *sdkClient) Summarize(ctx context.Context, msg chat.Message) (*TicketSummary, error) {
	c.log.DebugContext(ctx, "Summarizing message", "message_id", msg.MessageID)

	prompt := fmt.Sprintf("User: %s\nOriginal Message: %s", msg.UserName, msg.Text)

	var result TicketSummary
	if err := c.generateJSON(ctx, SummarySystemInstruction, prompt, summarySchema, &result); err != nil {
		return nil, fmt.Errorf("summarization failed: %w", err)
	}

	if result.Title == "" {
		result.Title = "Support Request"
	}
	return &result, nil
}

func (c *sdkClient) Categorize(ctx context.Context, summary *TicketSummary) (*TicketCategory, error) {
	if summary == nil {
		return nil, fmt.Errorf("summary is required for categorization")
	}

	prompt := fmt.Sprintf("Title: %s\nDescription: %s\nProblem: %s",
		summary.Title, summary.Description, summary.ProblemStatement)

	var result TicketCategory
	if err := c.generateJSON(ctx, CategorySystemInstruction, prompt, categorySchema, &result); err != nil {
		return nil, fmt.Errorf("categorization failed: %w", err)
	}

	return &result, nil
}

func (c *sdkClient) JudgeSimilarity(ctx context.Context, msg chat.Message, recent []ticketing.Ticket) (*SimilarityResult, error) {
	c.log.DebugContext(ctx, "Judging similarity",
		"message_id", msg.MessageID, "recent_tickets", len(recent))

	var sb strings.Builder
	sb.WriteString("NEW REQUEST:\n")
	sb.WriteString(msg.Text)
	sb.WriteString("\n\nEXISTING TICKETS:\n")
	sb.WriteString(formatTicketsForPrompt(recent))

	var result SimilarityResult
	if err := c.generateJSON(ctx, SimilaritySystemInstruction, sb.String(), similaritySchema, &result); err != nil {
		return nil, fmt.Errorf("similarity judgement failed: %w", err)
	}

	c.log.DebugContext(ctx, "Similarity judged",
		"message_id", msg.MessageID, "is_duplicate", result.IsDuplicate, "confidence", result.Confidence)
	return &result, nil
}

func formatTicketsForPrompt(tickets []ticketing.Ticket) string {
	if len(tickets) == 0 {
		return "No recent tickets found"
	}

	var sb strings.Builder
	for _, t := range tickets {
		desc := t.Description
		if len(desc) > 200 {
			desc = desc[:200] + "..."
		}
		fmt.Fprintf(&sb, "\nTicket: %s\nTitle: %s\nDescription: %s\nCreated: %s\nStatus: %s\n",
			t.Number, t.ShortDescription, desc, t.CreatedOn, t.State)
	}
	return sb.String()
}

// generateJSON sends a single-turn request with a JSON response schema and
// unmarshals the result into out.
func (c *sdkClient) generateJSON(ctx context.Context, instruction, prompt string, schema *genai.Schema, out any) error {
	copyCfg := *c.contentConfig
	copyCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: instruction}}}
	copyCfg.ResponseMIMEType = "application/json"
	copyCfg.ResponseSchema = schema

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := c.generateContentWithRetries(ctx, c.defaultModelName, contents, &copyCfg)
	if err != nil {
		return err
	}

	jsonText, err := c.extractTextFromResponse(ctx, resp)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(jsonText), out); err != nil {
		c.log.ErrorContext(ctx, "Failed to parse JSON from Gemini response",
			"error", err, "response_text", jsonText)
		return fmt.Errorf("invalid JSON received: %w", err)
	}
	return nil
}

func (c *sdkClient) generateContentWithRetries(ctx context.Context, modelName string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, modelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry",
			"attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var genAiAPIError *genai.APIError
		if errors.As(err, &genAiAPIError) && (genAiAPIError.Code == 500 || genAiAPIError.Code == 503) {
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying Gemini API call due to retriable APIError",
					"delay", c.retryDelay, "code", genAiAPIError.Code)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(c.retryDelay):
				}
				continue
			}
			c.log.ErrorContext(ctx, "Gemini API call failed after max retries with APIError",
				"error", err, "code", genAiAPIError.Code)
			return nil, fmt.Errorf("gemini API call failed after %d retries (APIError code %d): %w", c.maxRetries, genAiAPIError.Code, err)
		}

		c.log.ErrorContext(ctx, "Gemini API call failed with non-retriable error", "error", err)
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return nil, err
}

func (c *sdkClient) extractTextFromResponse(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "reason", reasonMsg)
		return "", fmt.Errorf("request blocked by safety filter: %s", reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "finish_reason", finishReason)
		return "", fmt.Errorf("gemini returned no content, finish reason: %s", finishReason)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty text")
	}
	return text, nil
}
