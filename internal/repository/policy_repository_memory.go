package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// memoryPolicyRepository is an in-memory PolicyRepository. It enforces the
// same one-active-per-priority guarantee as the Postgres unique index by
// holding its mutex across check and write.
type memoryPolicyRepository struct {
	mu       sync.Mutex
	policies map[string]domain.SlaPolicy
}

// NewMemoryPolicyRepository returns an in-memory implementation.
func NewMemoryPolicyRepository() PolicyRepository {
	return &memoryPolicyRepository{policies: make(map[string]domain.SlaPolicy)}
}

func (r *memoryPolicyRepository) Create(ctx context.Context, policy *domain.SlaPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if policy.IsActive && r.activeExistsLocked(policy.OwnerID, policy.Priority, "") {
		return ErrDuplicateActivePolicy
	}

	now := time.Now()
	policy.ID = uuid.NewString()
	policy.CreatedAt = now
	policy.UpdatedAt = now
	r.policies[policy.ID] = *policy
	return nil
}

func (r *memoryPolicyRepository) Update(ctx context.Context, policy *domain.SlaPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.policies[policy.ID]; !ok {
		return pgx.ErrNoRows
	}
	if policy.IsActive && r.activeExistsLocked(policy.OwnerID, policy.Priority, policy.ID) {
		return ErrDuplicateActivePolicy
	}

	policy.UpdatedAt = time.Now()
	r.policies[policy.ID] = *policy
	return nil
}

func (r *memoryPolicyRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.policies[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.policies, id)
	return nil
}

func (r *memoryPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SlaPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	policy, ok := r.policies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &policy, nil
}

func (r *memoryPolicyRepository) FindActive(ctx context.Context, ownerID string) ([]domain.SlaPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.SlaPolicy
	for _, policy := range r.policies {
		if policy.OwnerID == ownerID && policy.IsActive {
			result = append(result, policy)
		}
	}
	return result, nil
}

func (r *memoryPolicyRepository) ActiveExistsForPriority(ctx context.Context, ownerID string, priority domain.TicketPriority, excludeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeExistsLocked(ownerID, priority, excludeID), nil
}

func (r *memoryPolicyRepository) ListWithFilter(ctx context.Context, filter PolicyFilter) ([]domain.SlaPolicy, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []domain.SlaPolicy
	for _, policy := range r.policies {
		if policy.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Priority != nil && policy.Priority != *filter.Priority {
			continue
		}
		if filter.IsActive != nil && policy.IsActive != *filter.IsActive {
			continue
		}
		if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
			needle := strings.ToLower(strings.TrimSpace(*filter.Search))
			desc := ""
			if policy.Description != nil {
				desc = *policy.Description
			}
			if !strings.Contains(strings.ToLower(policy.Name), needle) &&
				!strings.Contains(strings.ToLower(desc), needle) {
				continue
			}
		}
		matched = append(matched, policy)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []domain.SlaPolicy{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *memoryPolicyRepository) ListOwnerIDsWithActive(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{})
	var ids []string
	for _, policy := range r.policies {
		if !policy.IsActive {
			continue
		}
		if _, ok := seen[policy.OwnerID]; ok {
			continue
		}
		seen[policy.OwnerID] = struct{}{}
		ids = append(ids, policy.OwnerID)
	}
	return ids, nil
}

func (r *memoryPolicyRepository) activeExistsLocked(ownerID string, priority domain.TicketPriority, excludeID string) bool {
	for _, policy := range r.policies {
		if policy.ID == excludeID {
			continue
		}
		if policy.OwnerID == ownerID && policy.Priority == priority && policy.IsActive {
			return true
		}
	}
	return false
}
