// Package pipeline orchestrates the message-to-ticket workflow: fetch a
// batch of chat messages, classify each one, create tickets for genuine
// new requests, and announce every ticket created in the run. Duplicates
// and failed messages produce no outbound notification.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chatdesk/chatdesk/internal/chat"
	"github.com/chatdesk/chatdesk/internal/config"
	"github.com/chatdesk/chatdesk/internal/correlation"
	"github.com/chatdesk/chatdesk/internal/database"
	"github.com/chatdesk/chatdesk/internal/dedup"
	"github.com/chatdesk/chatdesk/internal/gemini"
	"github.com/chatdesk/chatdesk/internal/notify"
	"github.com/chatdesk/chatdesk/internal/ticketing"
)

// MessageSource provides the inbound message batch for a run.
type MessageSource interface {
	ListMessages(ctx context.Context, since time.Time) ([]chat.Message, error)
}

// Deduper classifies messages before any ticket is created.
type Deduper interface {
	Classify(ctx context.Context, msg chat.Message) (*dedup.Result, error)
}

// Dispatcher delivers a notification into the originating conversation.
type Dispatcher interface {
	Dispatch(ctx context.Context, target notify.Target, text string) notify.Outcome
}

// Pipeline runs the full workflow for one scheduled invocation.
type Pipeline struct {
	source       MessageSource
	deduper      Deduper
	ai           gemini.Client
	materializer *Materializer
	tickets      TicketService
	dispatcher   Dispatcher
	corr         *correlation.Store
	store        database.Store
	cfg          config.WorkflowConfig
	botMention   string
	logger       *slog.Logger
}

// NewPipeline wires the workflow from its collaborators.
func NewPipeline(
	source MessageSource,
	deduper Deduper,
	ai gemini.Client,
	materializer *Materializer,
	tickets TicketService,
	dispatcher Dispatcher,
	corr *correlation.Store,
	store database.Store,
	cfg config.WorkflowConfig,
	botMention string,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		source:       source,
		deduper:      deduper,
		ai:           ai,
		materializer: materializer,
		tickets:      tickets,
		dispatcher:   dispatcher,
		corr:         corr,
		store:        store,
		cfg:          cfg,
		botMention:   botMention,
		logger:       logger.With("component", "pipeline"),
	}
}

// processOutcome is the per-message result of the classify-and-materialize
// phase, before notifications.
type processOutcome struct {
	msg     chat.Message
	ticket  *ticketing.Ticket
	wasNew  bool
	dup     *dedup.Result
	skipped string
	stage   string
	err     error
}

// Run executes one pipeline invocation. Messages are processed with
// bounded concurrency and isolated failures; confirmations for newly
// created tickets are delivered sequentially in batch order after all
// classification and creation has finished. The returned report is
// non-nil whenever the batch fetch succeeded.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{RunID: uuid.New(), StartedAt: time.Now().UTC()}
	logger := p.logger.With("run_id", report.RunID.String())

	since := time.Now().UTC().Add(-p.cfg.Lookback)
	messages, err := p.source.ListMessages(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message batch: %w", err)
	}
	report.Fetched = len(messages)

	// A batch may carry the same message twice under at-least-once
	// delivery; only the first occurrence is processed so one run never
	// announces a message more than once.
	seen := make(map[string]bool, len(messages))
	candidates := make([]chat.Message, 0, len(messages))
	for _, msg := range messages {
		if seen[msg.MessageID] {
			continue
		}
		seen[msg.MessageID] = true
		if !p.mentionsBot(msg) {
			report.Unmatched++
			continue
		}
		candidates = append(candidates, msg)
	}

	logger.InfoContext(ctx, "Processing message batch",
		"fetched", report.Fetched, "candidates", len(candidates))

	outcomes := make([]*processOutcome, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrency)
	for i, msg := range candidates {
		g.Go(func() error {
			outcomes[i] = p.processOne(gctx, msg)
			return nil
		})
	}
	// Workers report per-message failures through their outcome slot, so
	// Wait never returns an error here.
	_ = g.Wait()

	for _, outcome := range outcomes {
		p.collect(ctx, report, outcome, logger)
	}

	report.FinishedAt = time.Now().UTC()
	logger.InfoContext(ctx, "Pipeline run finished",
		"created", len(report.Created),
		"duplicates", len(report.Duplicates),
		"skipped", report.Skipped,
		"failures", len(report.Failures),
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

// processOne runs the classify-and-materialize phase for one message
// inside its per-message critical section.
func (p *Pipeline) processOne(ctx context.Context, msg chat.Message) *processOutcome {
	v, _ := p.corr.Do(msg.MessageID, func() (any, error) {
		return p.classifyAndMaterialize(ctx, msg), nil
	})
	return v.(*processOutcome)
}

func (p *Pipeline) classifyAndMaterialize(ctx context.Context, msg chat.Message) *processOutcome {
	outcome := &processOutcome{msg: msg}

	dupResult, err := p.deduper.Classify(ctx, msg)
	if err != nil {
		outcome.stage, outcome.err = "classify", err
		return outcome
	}
	if dupResult.Kind != dedup.Unique {
		outcome.dup = dupResult
		return outcome
	}

	// Intent fails closed: an unclassifiable message is left for the next
	// run rather than turned into a possibly bogus ticket.
	intent, err := p.ai.ClassifyIntent(ctx, msg)
	if err != nil {
		outcome.stage, outcome.err = "intent", err
		return outcome
	}
	if !intent.IsRequest {
		outcome.skipped = intent.Reasoning
		return outcome
	}

	payload := p.buildPayload(ctx, msg)

	ticket, wasNew, err := p.materializer.Materialize(ctx, msg, payload)
	if err != nil {
		outcome.stage, outcome.err = "materialize", err
		return outcome
	}

	outcome.ticket = ticket
	outcome.wasNew = wasNew
	return outcome
}

// buildPayload summarizes and categorizes the request. Both steps degrade
// to usable defaults: a ticket with a rough title still serves the user,
// while failing the message here would delay the ticket entirely.
func (p *Pipeline) buildPayload(ctx context.Context, msg chat.Message) ticketing.CreatePayload {
	summary, err := p.ai.Summarize(ctx, msg)
	if err != nil {
		p.logger.WarnContext(ctx, "Summarization failed, using raw message",
			"message_id", msg.MessageID, "error", err)
		summary = &gemini.TicketSummary{
			Title:       defaultTitle(msg.Text),
			Description: msg.Text,
		}
	}

	category, err := p.ai.Categorize(ctx, summary)
	if err != nil {
		p.logger.WarnContext(ctx, "Categorization failed, using defaults",
			"message_id", msg.MessageID, "error", err)
		category = &gemini.TicketCategory{
			Category:        "inquiry",
			Subcategory:     "general",
			Priority:        "3",
			Urgency:         "3",
			AssignmentGroup: "Service Desk",
		}
	}

	description := summary.Description
	if summary.ProblemStatement != "" {
		description = fmt.Sprintf("%s\n\nProblem: %s\nImpact: %s",
			summary.Description, summary.ProblemStatement, summary.UserImpact)
	}

	return ticketing.CreatePayload{
		Title:           summary.Title,
		Description:     description,
		Priority:        category.Priority,
		Category:        category.Category,
		Subcategory:     category.Subcategory,
		Urgency:         category.Urgency,
		Impact:          category.Urgency,
		AssignmentGroup: category.AssignmentGroup,
		CallerName:      msg.UserName,
	}
}

// collect folds one outcome into the report and, for newly created
// tickets, runs the notification and tracking stage.
func (p *Pipeline) collect(ctx context.Context, report *Report, outcome *processOutcome, logger *slog.Logger) {
	switch {
	case outcome.err != nil:
		logger.ErrorContext(ctx, "Message processing failed",
			"message_id", outcome.msg.MessageID, "stage", outcome.stage, "error", outcome.err)
		report.Failures = append(report.Failures, Failure{
			MessageID: outcome.msg.MessageID,
			Stage:     outcome.stage,
			Err:       outcome.err,
		})

	case outcome.dup != nil:
		report.Duplicates = append(report.Duplicates, DuplicateMessage{
			Message:      outcome.msg,
			Kind:         outcome.dup.Kind.String(),
			Reason:       outcome.dup.Reason,
			TicketNumber: outcome.dup.TicketNumber,
		})

	case outcome.skipped != "":
		logger.DebugContext(ctx, "Message is not a support request",
			"message_id", outcome.msg.MessageID, "reason", outcome.skipped)
		report.Skipped++

	case outcome.ticket != nil && !outcome.wasNew:
		// Materialization resolved to an existing ticket, so the message
		// is a duplicate for notification purposes.
		report.Duplicates = append(report.Duplicates, DuplicateMessage{
			Message:      outcome.msg,
			Kind:         "duplicate_correlated",
			Reason:       "ticket already existed at creation time",
			TicketNumber: outcome.ticket.Number,
		})

	case outcome.ticket != nil:
		delivery := p.announce(ctx, outcome.msg, outcome.ticket)
		report.Created = append(report.Created, CreatedTicket{
			Message:      outcome.msg,
			Ticket:       outcome.ticket,
			Notification: delivery,
		})
	}
}

// announce delivers the creation confirmation and registers the ticket
// for status tracking. Neither step can undo the creation; their failures
// are recorded, not propagated.
func (p *Pipeline) announce(ctx context.Context, msg chat.Message, ticket *ticketing.Ticket) notify.Outcome {
	link := p.tickets.TicketLink(ticket.SysID)
	text := notify.ConfirmationText(ticket, link, msg)

	delivery := p.dispatcher.Dispatch(ctx, notify.Target{
		SpaceID:   msg.SpaceID,
		ThreadID:  msg.ThreadID,
		MessageID: msg.MessageID,
	}, text)

	if err := p.store.SaveTrackedTicket(ctx, &database.TrackedTicket{
		TicketID:     ticket.SysID,
		TicketNumber: ticket.Number,
		MessageID:    msg.MessageID,
		SpaceID:      msg.SpaceID,
		ThreadID:     msg.ThreadID,
		State:        ticket.State,
	}); err != nil {
		p.logger.WarnContext(ctx, "Failed to register ticket for tracking",
			"ticket_number", ticket.Number, "error", err)
	}

	return delivery
}

func (p *Pipeline) mentionsBot(msg chat.Message) bool {
	if p.botMention == "" {
		return true
	}
	return strings.Contains(strings.ToLower(msg.Text), strings.ToLower(p.botMention))
}

func defaultTitle(text string) string {
	const maxTitle = 80
	title := strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if len(title) > maxTitle {
		title = title[:maxTitle-3] + "..."
	}
	if title == "" {
		return "Support Request"
	}
	return title
}
