package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// TicketRepository is the read/write contract the scanner holds against the
// ticketing subsystem: load the open, not-yet-breached population and flag
// individual tickets. Everything else about tickets is owned elsewhere.
type TicketRepository interface {
	FindOpenUnbreached(ctx context.Context, ownerID string) ([]domain.Ticket, error)
	MarkBreached(ctx context.Context, ticketID string) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) FindOpenUnbreached(ctx context.Context, ownerID string) ([]domain.Ticket, error) {
	const query = `
        SELECT id, ticket_number, owner_id, priority, status, sla_breached,
               first_response_at, resolved_at, created_at
        FROM tickets
        WHERE owner_id=$1 AND sla_breached = FALSE AND status = ANY($2)`

	statuses := make([]string, 0, len(domain.OpenStatuses))
	for _, status := range domain.OpenStatuses {
		statuses = append(statuses, string(status))
	}

	rows, err := r.pool.Query(ctx, query, ownerID, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) MarkBreached(ctx context.Context, ticketID string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE tickets SET sla_breached = TRUE, updated_at=NOW() WHERE id=$1`, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.TicketNumber,
			&ticket.OwnerID,
			&ticket.Priority,
			&ticket.Status,
			&ticket.SlaBreached,
			&ticket.FirstResponseAt,
			&ticket.ResolvedAt,
			&ticket.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
