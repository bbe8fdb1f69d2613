package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// MemoryTicketRepository is an in-memory TicketRepository for tests and local
// runs. FailMarkFor simulates per-ticket write failures.
type MemoryTicketRepository struct {
	mu          sync.Mutex
	tickets     map[string]domain.Ticket
	FailMarkFor map[string]bool
}

// NewMemoryTicketRepository returns an empty in-memory implementation.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		tickets:     make(map[string]domain.Ticket),
		FailMarkFor: make(map[string]bool),
	}
}

// Put inserts or replaces a ticket.
func (r *MemoryTicketRepository) Put(ticket domain.Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[ticket.ID] = ticket
}

// Get returns a stored ticket by id.
func (r *MemoryTicketRepository) Get(id string) (domain.Ticket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	return ticket, ok
}

func (r *MemoryTicketRepository) FindOpenUnbreached(ctx context.Context, ownerID string) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.OwnerID != ownerID || ticket.SlaBreached {
			continue
		}
		if !isOpen(ticket.Status) {
			continue
		}
		result = append(result, ticket)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryTicketRepository) MarkBreached(ctx context.Context, ticketID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailMarkFor[ticketID] {
		return fmt.Errorf("simulated write failure for %s", ticketID)
	}
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.SlaBreached = true
	r.tickets[ticketID] = ticket
	return nil
}

func isOpen(status domain.TicketStatus) bool {
	for _, candidate := range domain.OpenStatuses {
		if candidate == status {
			return true
		}
	}
	return false
}
