package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/repository"
)

var scanTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type scannerFixture struct {
	scanner  *BreachScanner
	policies *PolicyService
	tickets  *repository.MemoryTicketRepository
}

func newScannerFixture(t *testing.T) *scannerFixture {
	t.Helper()
	policyRepo := repository.NewMemoryPolicyRepository()
	ticketRepo := repository.NewMemoryTicketRepository()
	scanner := NewBreachScanner(ScannerDependencies{
		PolicyRepo: policyRepo,
		TicketRepo: ticketRepo,
		Logger:     zap.NewNop(),
	}).WithClock(func() time.Time { return scanTime })

	return &scannerFixture{
		scanner:  scanner,
		policies: NewPolicyService(policyRepo),
		tickets:  ticketRepo,
	}
}

func (f *scannerFixture) addPolicy(t *testing.T, ownerID string, priority domain.TicketPriority, firstResponse, resolution int) {
	t.Helper()
	_, err := f.policies.Create(context.Background(), ownerID, PolicyCreateInput{
		Name:                 string(priority) + " SLA",
		Priority:             priority,
		FirstResponseMinutes: firstResponse,
		ResolutionMinutes:    resolution,
	})
	if err != nil {
		t.Fatalf("create policy: %v", err)
	}
}

func openTicket(id, ownerID string, priority domain.TicketPriority, age time.Duration) domain.Ticket {
	return domain.Ticket{
		ID:           id,
		TicketNumber: "TCK-" + strings.ToUpper(id),
		OwnerID:      ownerID,
		Priority:     priority,
		Status:       domain.TicketStatusOpen,
		CreatedAt:    scanTime.Add(-age),
	}
}

func TestBreachScanner_FirstResponseBreach(t *testing.T) {
	f := newScannerFixture(t)
	f.addPolicy(t, "owner-1", domain.TicketPriorityHigh, 30, 240)
	f.tickets.Put(openTicket("t1", "owner-1", domain.TicketPriorityHigh, 45*time.Minute))

	report, err := f.scanner.CheckBreaches(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("CheckBreaches() error = %v", err)
	}
	if report.CheckedCount != 1 || len(report.Errors) != 0 {
		t.Fatalf("report = checked %d errors %v, want 1 checked, no errors", report.CheckedCount, report.Errors)
	}
	if len(report.Breaches) != 1 {
		t.Fatalf("breaches = %d, want 1", len(report.Breaches))
	}

	breach := report.Breaches[0]
	if breach.BreachType != domain.BreachFirstResponse {
		t.Errorf("BreachType = %s, want first_response", breach.BreachType)
	}
	if breach.ExpectedMinutes != 30 || breach.ActualMinutes != 45 {
		t.Errorf("minutes = expected %d actual %d, want 30/45", breach.ExpectedMinutes, breach.ActualMinutes)
	}
	if breach.TicketNumber != "TCK-T1" || breach.PolicyName != "HIGH SLA" {
		t.Errorf("breach identity = %s / %s", breach.TicketNumber, breach.PolicyName)
	}
	if !breach.BreachedAt.Equal(scanTime) {
		t.Errorf("BreachedAt = %v, want scan timestamp", breach.BreachedAt)
	}

	stored, _ := f.tickets.Get("t1")
	if !stored.SlaBreached {
		t.Error("ticket should be flagged sla_breached")
	}
}

func TestBreachScanner_SecondScanIsIdempotent(t *testing.T) {
	f := newScannerFixture(t)
	f.addPolicy(t, "owner-1", domain.TicketPriorityHigh, 30, 240)
	f.tickets.Put(openTicket("t1", "owner-1", domain.TicketPriorityHigh, 45*time.Minute))

	if _, err := f.scanner.CheckBreaches(context.Background(), "owner-1"); err != nil {
		t.Fatalf("first scan: %v", err)
	}

	report, err := f.scanner.CheckBreaches(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if len(report.Breaches) != 0 || report.CheckedCount != 0 {
		t.Errorf("second scan = %d breaches, %d checked; flagged ticket must be excluded",
			len(report.Breaches), report.CheckedCount)
	}
}

func TestBreachScanner_ThresholdIsStrict(t *testing.T) {
	f := newScannerFixture(t)
	f.addPolicy(t, "owner-1", domain.TicketPriorityHigh, 30, 240)

	tests := []struct {
		name     string
		age      time.Duration
		breached bool
	}{
		{"exactly at threshold", 30 * time.Minute, false},
		{"past threshold but same truncated minute", 30*time.Minute + 59*time.Second, false},
		{"one minute past threshold", 31 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.tickets.Put(openTicket("t1", "owner-1", domain.TicketPriorityHigh, tt.age))

			report, err := f.scanner.CheckBreaches(context.Background(), "owner-1")
			if err != nil {
				t.Fatalf("CheckBreaches() error = %v", err)
			}
			if got := len(report.Breaches) == 1; got != tt.breached {
				t.Errorf("breached = %v, want %v", got, tt.breached)
			}
		})
	}
}

func TestBreachScanner_FirstResponseTakesPrecedence(t *testing.T) {
	f := newScannerFixture(t)
	f.addPolicy(t, "owner-1", domain.TicketPriorityHigh, 30, 240)
	// Overdue on both dimensions: no first response, no resolution, 300 min old.
	f.tickets.Put(openTicket("t1", "owner-1", domain.TicketPriorityHigh, 300*time.Minute))

	report, err := f.scanner.CheckBreaches(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("CheckBreaches() error = %v", err)
	}
	if len(report.Breaches) != 1 {
		t.Fatalf("breaches = %d, want exactly 1", len(report.Breaches))
	}
	if report.Breaches[0].BreachType != domain.BreachFirstResponse {
		t.Errorf("BreachType = %s, want first_response", report.Breaches[0].BreachType)
	}
}

func TestBreachScanner_ResolutionBreachAfterTimelyResponse(t *testing.T) {
	f := newScannerFixture(t)
	f.addPolicy(t, "owner-1", domain.TicketPriorityHigh, 30, 240)

	ticket := openTicket("t1", "owner-1", domain.TicketPriorityHigh, 300*time.Minute)
	responded := ticket.CreatedAt.Add(10 * time.Minute)
	ticket.FirstResponseAt = &responded
	f.tickets.Put(ticket)

	report, err := f.scanner.CheckBreaches(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("CheckBreaches() error = %v", err)
	}
	if len(report.Breaches) != 1 {
		t.Fatalf("breaches = %d, want 1", len(report.Breaches))
	}
	breach := report.Breaches[0]
	if breach.BreachType != domain.BreachResolution {
		t.Errorf("BreachType = %s, want resolution", breach.BreachType)
	}
	// The resolution clock runs from ticket creation, not first response.
	if breach.ExpectedMinutes != 240 || breach.ActualMinutes != 300 {
		t.Errorf("minutes = expected %d actual %d, want 240/300", breach.ExpectedMinutes, breach.ActualMinutes)
	}
}

func TestBreachScanner_WithinTargetsUntouched(t *testing.T) {
	f := newScannerFixture(t)
	f.addPolicy(t, "owner-1", domain.TicketPriorityHigh, 30, 240)

	ticket := openTicket("t1", "owner-1", domain.TicketPriorityHigh, 120*time.Minute)
	responded := ticket.CreatedAt.Add(5 * time.Minute)
	ticket.FirstResponseAt = &responded
	f.tickets.Put(ticket)

	report, err := f.scanner.CheckBreaches(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("CheckBreaches() error = %v", err)
	}
	if len(report.Breaches) != 0 || report.CheckedCount != 1 {
		t.Errorf("report = %d breaches %d checked, want 0/1", len(report.Breaches), report.CheckedCount)
	}
	stored, _ := f.tickets.Get("t1")
	if stored.SlaBreached {
		t.Error("in-target ticket must stay unflagged")
	}
}

func TestBreachScanner_UnmonitoredPrioritySkipped(t *testing.T) {
	f := newScannerFixture(t)
	f.addPolicy(t, "owner-1", domain.TicketPriorityHigh, 30, 240)
	// No LOW policy configured; ancient LOW ticket is examined but never breached.
	f.tickets.Put(openTicket("t1", "owner-1", domain.TicketPriorityLow, 48*time.Hour))
	f.tickets.Put(openTicket("t2", "owner-1", domain.TicketPriorityHigh, 45*time.Minute))

	report, err := f.scanner.CheckBreaches(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("CheckBreaches() error = %v", err)
	}
	if report.CheckedCount != 2 {
		t.Errorf("CheckedCount = %d, want 2", report.CheckedCount)
	}
	if len(report.Breaches) != 1 || report.Breaches[0].TicketID != "t2" {
		t.Errorf("breaches = %+v, want only t2", report.Breaches)
	}
	if len(report.Errors) != 0 {
		t.Errorf("errors = %v, unmonitored priority is not an error", report.Errors)
	}
}

func TestBreachScanner_PerTicketFailureDoesNotAbort(t *testing.T) {
	f := newScannerFixture(t)
	f.addPolicy(t, "owner-1", domain.TicketPriorityHigh, 30, 240)
	f.tickets.Put(openTicket("bad", "owner-1", domain.TicketPriorityHigh, 45*time.Minute))
	f.tickets.Put(openTicket("good", "owner-1", domain.TicketPriorityHigh, 45*time.Minute))
	f.tickets.FailMarkFor["bad"] = true

	report, err := f.scanner.CheckBreaches(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("CheckBreaches() error = %v", err)
	}
	if report.CheckedCount != 2 {
		t.Errorf("CheckedCount = %d, want 2", report.CheckedCount)
	}
	if len(report.Breaches) != 1 || report.Breaches[0].TicketID != "good" {
		t.Errorf("breaches = %+v, want only the good ticket", report.Breaches)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("errors = %v, want 1 entry", report.Errors)
	}
	// Errors are keyed by the human-readable ticket number.
	if !strings.Contains(report.Errors[0], "TCK-BAD") {
		t.Errorf("error entry = %q, want ticket number TCK-BAD", report.Errors[0])
	}

	// The failed ticket stays unflagged and is retried by the next scan.
	stored, _ := f.tickets.Get("bad")
	if stored.SlaBreached {
		t.Error("failed mark must leave ticket unflagged")
	}
	f.tickets.FailMarkFor["bad"] = false
	report, err = f.scanner.CheckBreaches(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("retry scan: %v", err)
	}
	if len(report.Breaches) != 1 || report.Breaches[0].TicketID != "bad" {
		t.Errorf("retry breaches = %+v, want the previously failed ticket", report.Breaches)
	}
}

func TestBreachScanner_OwnersAreIsolated(t *testing.T) {
	f := newScannerFixture(t)
	f.addPolicy(t, "owner-1", domain.TicketPriorityHigh, 30, 240)
	f.tickets.Put(openTicket("t1", "owner-1", domain.TicketPriorityHigh, 45*time.Minute))
	f.tickets.Put(openTicket("t2", "owner-2", domain.TicketPriorityHigh, 45*time.Minute))

	report, err := f.scanner.CheckBreaches(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("CheckBreaches() error = %v", err)
	}
	if report.CheckedCount != 1 || len(report.Breaches) != 1 || report.Breaches[0].TicketID != "t1" {
		t.Errorf("report = %+v, owner-2 tickets must not be scanned", report)
	}
}

func TestBreachScanner_ClosedTicketsExcluded(t *testing.T) {
	f := newScannerFixture(t)
	f.addPolicy(t, "owner-1", domain.TicketPriorityHigh, 30, 240)

	resolved := openTicket("t1", "owner-1", domain.TicketPriorityHigh, 300*time.Minute)
	resolved.Status = domain.TicketStatusResolved
	f.tickets.Put(resolved)
	closed := openTicket("t2", "owner-1", domain.TicketPriorityHigh, 300*time.Minute)
	closed.Status = domain.TicketStatusClosed
	f.tickets.Put(closed)

	report, err := f.scanner.CheckBreaches(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("CheckBreaches() error = %v", err)
	}
	if report.CheckedCount != 0 || len(report.Breaches) != 0 {
		t.Errorf("report = %+v, terminal tickets must be excluded", report)
	}
}

func TestBreachScanner_PublishesBreachEvents(t *testing.T) {
	policyRepo := repository.NewMemoryPolicyRepository()
	ticketRepo := repository.NewMemoryTicketRepository()
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())

	var published []events.Event
	dispatcher.Subscribe(events.EventBreachDetected, func(ctx context.Context, event events.Event) error {
		published = append(published, event)
		return nil
	})

	scanner := NewBreachScanner(ScannerDependencies{
		PolicyRepo: policyRepo,
		TicketRepo: ticketRepo,
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
	}).WithClock(func() time.Time { return scanTime })

	policies := NewPolicyService(policyRepo)
	email := "oncall@example.com"
	if _, err := policies.Create(context.Background(), "owner-1", PolicyCreateInput{
		Name:                 "HIGH SLA",
		Priority:             domain.TicketPriorityHigh,
		FirstResponseMinutes: 30,
		ResolutionMinutes:    240,
		EscalationEmail:      &email,
	}); err != nil {
		t.Fatalf("create policy: %v", err)
	}
	ticketRepo.Put(openTicket("t1", "owner-1", domain.TicketPriorityHigh, 45*time.Minute))

	if _, err := scanner.CheckBreaches(context.Background(), "owner-1"); err != nil {
		t.Fatalf("CheckBreaches() error = %v", err)
	}

	if len(published) != 1 {
		t.Fatalf("published events = %d, want 1", len(published))
	}
	payload, ok := published[0].Payload.(events.BreachDetectedPayload)
	if !ok {
		t.Fatalf("payload type = %T", published[0].Payload)
	}
	if payload.EscalationEmail == nil || *payload.EscalationEmail != email {
		t.Errorf("escalation email = %v, want %s", payload.EscalationEmail, email)
	}
}

type failingPolicyRepo struct {
	repository.PolicyRepository
}

func (f *failingPolicyRepo) FindActive(ctx context.Context, ownerID string) ([]domain.SlaPolicy, error) {
	return nil, errors.New("policy store down")
}

type failingTicketRepo struct {
	*repository.MemoryTicketRepository
}

func (f *failingTicketRepo) FindOpenUnbreached(ctx context.Context, ownerID string) ([]domain.Ticket, error) {
	return nil, errors.New("ticket store down")
}

func TestBreachScanner_FatalLoadErrors(t *testing.T) {
	report, err := NewBreachScanner(ScannerDependencies{
		PolicyRepo: &failingPolicyRepo{repository.NewMemoryPolicyRepository()},
		TicketRepo: repository.NewMemoryTicketRepository(),
		Logger:     zap.NewNop(),
	}).CheckBreaches(context.Background(), "owner-1")
	if err == nil || report != nil {
		t.Errorf("policy load failure: report = %v, err = %v; want nil report and error", report, err)
	}

	report, err = NewBreachScanner(ScannerDependencies{
		PolicyRepo: repository.NewMemoryPolicyRepository(),
		TicketRepo: &failingTicketRepo{repository.NewMemoryTicketRepository()},
		Logger:     zap.NewNop(),
	}).CheckBreaches(context.Background(), "owner-1")
	if err == nil || report != nil {
		t.Errorf("ticket load failure: report = %v, err = %v; want nil report and error", report, err)
	}
}
