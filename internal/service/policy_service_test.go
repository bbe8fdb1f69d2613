package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

func newPolicyService() (*PolicyService, repository.PolicyRepository) {
	repo := repository.NewMemoryPolicyRepository()
	return NewPolicyService(repo), repo
}

func mustCreate(t *testing.T, svc *PolicyService, ownerID string, input PolicyCreateInput) *domain.SlaPolicy {
	t.Helper()
	policy, err := svc.Create(context.Background(), ownerID, input)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return policy
}

func highPolicyInput() PolicyCreateInput {
	return PolicyCreateInput{
		Name:                 "High priority SLA",
		Priority:             domain.TicketPriorityHigh,
		FirstResponseMinutes: 30,
		ResolutionMinutes:    240,
	}
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %T: %v", err, err)
	}
	return domainErr.Code
}

func TestPolicyService_CreateValidation(t *testing.T) {
	svc, _ := newPolicyService()
	ctx := context.Background()

	tests := []struct {
		name          string
		firstResponse int
		resolution    int
	}{
		{"zero first response", 0, 60},
		{"negative first response", -5, 60},
		{"zero resolution", 30, 0},
		{"first response equals resolution", 60, 60},
		{"first response after resolution", 60, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, "owner-1", PolicyCreateInput{
				Name:                 "bad policy",
				Priority:             domain.TicketPriorityLow,
				FirstResponseMinutes: tt.firstResponse,
				ResolutionMinutes:    tt.resolution,
			})
			if code := errorCode(t, err); code != "VALIDATION_FAILED" {
				t.Errorf("error code = %s, want VALIDATION_FAILED", code)
			}
		})
	}
}

func TestPolicyService_CreateDuplicateActive(t *testing.T) {
	svc, _ := newPolicyService()
	ctx := context.Background()

	created := mustCreate(t, svc, "owner-1", highPolicyInput())
	if !created.IsActive {
		t.Error("new policy should start active")
	}

	_, err := svc.Create(ctx, "owner-1", highPolicyInput())
	if code := errorCode(t, err); code != "CONFLICT" {
		t.Errorf("error code = %s, want CONFLICT", code)
	}

	// A different owner is free to cover the same priority.
	if _, err := svc.Create(ctx, "owner-2", highPolicyInput()); err != nil {
		t.Errorf("Create() for second owner error = %v", err)
	}

	// A different priority for the same owner is fine too.
	input := highPolicyInput()
	input.Priority = domain.TicketPriorityUrgent
	if _, err := svc.Create(ctx, "owner-1", input); err != nil {
		t.Errorf("Create() for second priority error = %v", err)
	}
}

func TestPolicyService_CreateConcurrent(t *testing.T) {
	svc, _ := newPolicyService()
	ctx := context.Background()

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(ctx, "owner-1", highPolicyInput())
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Errorf("concurrent creates succeeded = %d, want exactly 1", succeeded)
	}
}

func TestPolicyService_UpdateMergedValidation(t *testing.T) {
	svc, _ := newPolicyService()
	ctx := context.Background()
	policy := mustCreate(t, svc, "owner-1", highPolicyInput())

	// Lowering only the resolution below the existing first response must be
	// rejected against the merged view.
	badResolution := 20
	_, err := svc.Update(ctx, policy.ID, "owner-1", PolicyUpdateInput{ResolutionMinutes: &badResolution})
	if code := errorCode(t, err); code != "VALIDATION_FAILED" {
		t.Errorf("error code = %s, want VALIDATION_FAILED", code)
	}

	// Raising it is fine, and untouched fields survive.
	goodResolution := 480
	updated, err := svc.Update(ctx, policy.ID, "owner-1", PolicyUpdateInput{ResolutionMinutes: &goodResolution})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.ResolutionMinutes != 480 {
		t.Errorf("ResolutionMinutes = %d, want 480", updated.ResolutionMinutes)
	}
	if updated.FirstResponseMinutes != 30 {
		t.Errorf("FirstResponseMinutes = %d, want 30 (unchanged)", updated.FirstResponseMinutes)
	}
	if updated.Name != "High priority SLA" {
		t.Errorf("Name = %q, want unchanged", updated.Name)
	}
}

func TestPolicyService_UpdatePriorityConflict(t *testing.T) {
	svc, _ := newPolicyService()
	ctx := context.Background()

	high := mustCreate(t, svc, "owner-1", highPolicyInput())
	urgentInput := highPolicyInput()
	urgentInput.Priority = domain.TicketPriorityUrgent
	mustCreate(t, svc, "owner-1", urgentInput)

	// Moving the HIGH policy onto URGENT collides with the active URGENT one.
	urgent := domain.TicketPriorityUrgent
	_, err := svc.Update(ctx, high.ID, "owner-1", PolicyUpdateInput{Priority: &urgent})
	if code := errorCode(t, err); code != "CONFLICT" {
		t.Errorf("error code = %s, want CONFLICT", code)
	}

	// Keeping the same priority must not trip the self-exclusion.
	name := "renamed"
	if _, err := svc.Update(ctx, high.ID, "owner-1", PolicyUpdateInput{Name: &name}); err != nil {
		t.Errorf("Update() same priority error = %v", err)
	}
}

func TestPolicyService_OwnershipReportedAsNotFound(t *testing.T) {
	svc, _ := newPolicyService()
	ctx := context.Background()
	policy := mustCreate(t, svc, "owner-1", highPolicyInput())

	name := "hijack"
	if _, err := svc.Update(ctx, policy.ID, "owner-2", PolicyUpdateInput{Name: &name}); errorCode(t, err) != "NOT_FOUND" {
		t.Error("foreign update should be NOT_FOUND")
	}
	if _, err := svc.Get(ctx, policy.ID, "owner-2"); errorCode(t, err) != "NOT_FOUND" {
		t.Error("foreign get should be NOT_FOUND")
	}
	if err := svc.Delete(ctx, policy.ID, "owner-2"); errorCode(t, err) != "NOT_FOUND" {
		t.Error("foreign delete should be NOT_FOUND")
	}
	if _, err := svc.ToggleActive(ctx, policy.ID, "owner-2"); errorCode(t, err) != "NOT_FOUND" {
		t.Error("foreign toggle should be NOT_FOUND")
	}
	if _, err := svc.Get(ctx, "missing-id", "owner-1"); errorCode(t, err) != "NOT_FOUND" {
		t.Error("missing get should be NOT_FOUND")
	}
}

func TestPolicyService_ToggleReactivationConflict(t *testing.T) {
	svc, _ := newPolicyService()
	ctx := context.Background()

	first := mustCreate(t, svc, "owner-1", highPolicyInput())

	deactivated, err := svc.ToggleActive(ctx, first.ID, "owner-1")
	if err != nil {
		t.Fatalf("ToggleActive() error = %v", err)
	}
	if deactivated.IsActive {
		t.Fatal("policy should be inactive after toggle")
	}

	// A replacement now covers HIGH.
	mustCreate(t, svc, "owner-1", highPolicyInput())

	// Reactivating the original would create a second active HIGH policy.
	_, err = svc.ToggleActive(ctx, first.ID, "owner-1")
	if code := errorCode(t, err); code != "CONFLICT" {
		t.Errorf("error code = %s, want CONFLICT", code)
	}

	// Deactivating an active policy never conflicts.
	stored, err := svc.Get(ctx, first.ID, "owner-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.IsActive {
		t.Error("failed reactivation must leave the policy inactive")
	}
}

func TestPolicyService_GetForPriority(t *testing.T) {
	svc, _ := newPolicyService()
	ctx := context.Background()
	mustCreate(t, svc, "owner-1", highPolicyInput())

	policy, err := svc.GetForPriority(ctx, "owner-1", domain.TicketPriorityHigh)
	if err != nil {
		t.Fatalf("GetForPriority() error = %v", err)
	}
	if policy == nil || policy.Priority != domain.TicketPriorityHigh {
		t.Fatalf("GetForPriority() = %+v, want HIGH policy", policy)
	}

	// Unmonitored priorities are not an error.
	policy, err = svc.GetForPriority(ctx, "owner-1", domain.TicketPriorityLow)
	if err != nil {
		t.Fatalf("GetForPriority() error = %v", err)
	}
	if policy != nil {
		t.Errorf("GetForPriority() = %+v, want nil for unmonitored priority", policy)
	}
}

func TestPolicyService_ListFiltersAndPagination(t *testing.T) {
	svc, _ := newPolicyService()
	ctx := context.Background()

	for _, priority := range domain.Priorities {
		input := highPolicyInput()
		input.Name = "policy " + string(priority)
		input.Priority = priority
		mustCreate(t, svc, "owner-1", input)
	}
	// Deactivate one so the is_active filter has something to exclude.
	urgent, err := svc.GetForPriority(ctx, "owner-1", domain.TicketPriorityUrgent)
	if err != nil || urgent == nil {
		t.Fatalf("GetForPriority() = %v, %v", urgent, err)
	}
	if _, err := svc.ToggleActive(ctx, urgent.ID, "owner-1"); err != nil {
		t.Fatalf("ToggleActive() error = %v", err)
	}

	page, err := svc.List(ctx, "owner-1", PolicyListFilter{Page: 1, Limit: 3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 4 || page.PageCount != 2 || len(page.Policies) != 3 {
		t.Errorf("page = total %d pageCount %d len %d, want 4/2/3", page.Total, page.PageCount, len(page.Policies))
	}

	page, err = svc.List(ctx, "owner-1", PolicyListFilter{Page: 2, Limit: 3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page.Policies) != 1 {
		t.Errorf("second page len = %d, want 1", len(page.Policies))
	}

	active := true
	page, err = svc.List(ctx, "owner-1", PolicyListFilter{IsActive: &active})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 3 {
		t.Errorf("active total = %d, want 3", page.Total)
	}

	search := "policy LOW"
	page, err = svc.List(ctx, "owner-1", PolicyListFilter{Search: &search})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 1 || page.Policies[0].Priority != domain.TicketPriorityLow {
		t.Errorf("search result = %+v, want single LOW policy", page.Policies)
	}

	// Other owners see nothing.
	page, err = svc.List(ctx, "owner-2", PolicyListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 0 || len(page.Policies) != 0 {
		t.Errorf("foreign owner list = %+v, want empty", page.Policies)
	}
}

func TestPolicyService_DeleteThenGone(t *testing.T) {
	svc, _ := newPolicyService()
	ctx := context.Background()
	policy := mustCreate(t, svc, "owner-1", highPolicyInput())

	if err := svc.Delete(ctx, policy.ID, "owner-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.Get(ctx, policy.ID, "owner-1"); errorCode(t, err) != "NOT_FOUND" {
		t.Error("deleted policy should be NOT_FOUND")
	}
	// After deletion the priority slot is free again.
	if _, err := svc.Create(ctx, "owner-1", highPolicyInput()); err != nil {
		t.Errorf("Create() after delete error = %v", err)
	}
}
