package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// BreachScanner classifies an owner's open tickets against that owner's
// active SLA policies. One invocation covers one owner; invocations for
// different owners share no state and may run in parallel.
type BreachScanner struct {
	policies   repository.PolicyRepository
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// ScannerDependencies bundles collaborators for the scanner.
type ScannerDependencies struct {
	PolicyRepo repository.PolicyRepository
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewBreachScanner constructs the scanner.
func NewBreachScanner(deps ScannerDependencies) *BreachScanner {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BreachScanner{
		policies:   deps.PolicyRepo,
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the scan clock. Intended for tests.
func (s *BreachScanner) WithClock(now func() time.Time) *BreachScanner {
	s.now = now
	return s
}

// ScanReport aggregates one scan's outcome: detected breaches, how many
// tickets were examined, and per-ticket failures that did not stop the scan.
type ScanReport struct {
	Breaches     []domain.BreachResult `json:"breaches"`
	CheckedCount int                   `json:"checked_count"`
	Errors       []string              `json:"errors"`
}

// CheckBreaches runs one scan for ownerID. Failures loading the policy or
// ticket population abort the scan; a failure on an individual ticket is
// recorded against its ticket number and the scan moves on. Tickets already
// flagged are excluded upstream, which makes the scan idempotent.
func (s *BreachScanner) CheckBreaches(ctx context.Context, ownerID string) (*ScanReport, error) {
	active, err := s.policies.FindActive(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load active policies: %w", err)
	}
	// Unambiguous by the one-active-per-priority invariant.
	byPriority := make(map[domain.TicketPriority]domain.SlaPolicy, len(active))
	for _, policy := range active {
		byPriority[policy.Priority] = policy
	}

	tickets, err := s.tickets.FindOpenUnbreached(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load open tickets: %w", err)
	}

	// One clock reading for the whole scan.
	now := s.now()

	report := &ScanReport{
		Breaches: []domain.BreachResult{},
		Errors:   []string{},
	}
	for i := range tickets {
		ticket := &tickets[i]
		report.CheckedCount++

		policy, ok := byPriority[ticket.Priority]
		if !ok {
			// No policy for this priority: unmonitored, not an error.
			continue
		}

		breach, err := s.classify(ctx, ticket, policy, now)
		if err != nil {
			report.Errors = append(report.Errors,
				fmt.Sprintf("ticket %s: %v", ticket.TicketNumber, err))
			continue
		}
		if breach == nil {
			continue
		}
		report.Breaches = append(report.Breaches, *breach)
		s.publish(ctx, events.Event{
			Type:    events.EventBreachDetected,
			OwnerID: ownerID,
			Payload: events.BreachDetectedPayload{
				Breach:          *breach,
				EscalationEmail: policy.EscalationEmail,
			},
		})
	}

	s.metrics.RecordScan(len(report.Breaches), len(report.Errors))
	s.publish(ctx, events.Event{
		Type:    events.EventScanCompleted,
		OwnerID: ownerID,
		Payload: events.ScanCompletedPayload{
			CheckedCount: report.CheckedCount,
			BreachCount:  len(report.Breaches),
			ErrorCount:   len(report.Errors),
		},
	})
	s.logger.Info("breach scan completed",
		zap.String("owner_id", ownerID),
		zap.Int("checked", report.CheckedCount),
		zap.Int("breaches", len(report.Breaches)),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}

// classify evaluates one ticket against its policy and, on a breach, persists
// the flag before reporting it. The first-response check runs first and
// suppresses the resolution check: a ticket is reported for at most one
// breach type per scan.
func (s *BreachScanner) classify(ctx context.Context, ticket *domain.Ticket, policy domain.SlaPolicy, now time.Time) (*domain.BreachResult, error) {
	// Truncated, never rounded: a ticket is not breached until the full
	// threshold minute has elapsed.
	elapsed := int(now.Sub(ticket.CreatedAt).Minutes())

	var breachType domain.BreachType
	var expected int
	switch {
	case ticket.FirstResponseAt == nil && elapsed > policy.FirstResponseMinutes:
		breachType = domain.BreachFirstResponse
		expected = policy.FirstResponseMinutes
	case ticket.ResolvedAt == nil && elapsed > policy.ResolutionMinutes:
		breachType = domain.BreachResolution
		expected = policy.ResolutionMinutes
	default:
		return nil, nil
	}

	if err := s.tickets.MarkBreached(ctx, ticket.ID); err != nil {
		return nil, err
	}

	return &domain.BreachResult{
		TicketID:        ticket.ID,
		TicketNumber:    ticket.TicketNumber,
		PolicyName:      policy.Name,
		BreachType:      breachType,
		ExpectedMinutes: expected,
		ActualMinutes:   elapsed,
		BreachedAt:      now,
	}, nil
}

func (s *BreachScanner) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
