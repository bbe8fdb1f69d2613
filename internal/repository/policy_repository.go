package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// ErrDuplicateActivePolicy is returned when a write would leave two active
// policies for the same (owner, priority). The Postgres implementation
// surfaces it from the partial unique index, so the check-and-write is atomic
// even under concurrent callers.
var ErrDuplicateActivePolicy = errors.New("active policy already exists for this priority")

// PolicyFilter captures list query parameters.
type PolicyFilter struct {
	OwnerID  string
	Search   *string
	Priority *domain.TicketPriority
	IsActive *bool
	Limit    int
	Offset   int
}

// PolicyRepository encapsulates SLA policy persistence.
type PolicyRepository interface {
	Create(ctx context.Context, policy *domain.SlaPolicy) error
	Update(ctx context.Context, policy *domain.SlaPolicy) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.SlaPolicy, error)
	FindActive(ctx context.Context, ownerID string) ([]domain.SlaPolicy, error)
	ActiveExistsForPriority(ctx context.Context, ownerID string, priority domain.TicketPriority, excludeID string) (bool, error)
	ListWithFilter(ctx context.Context, filter PolicyFilter) ([]domain.SlaPolicy, int, error)
	ListOwnerIDsWithActive(ctx context.Context) ([]string, error)
}

type policyRepository struct {
	pool *pgxpool.Pool
}

// NewPolicyRepository returns a Postgres-backed implementation.
func NewPolicyRepository(pool *pgxpool.Pool) PolicyRepository {
	return &policyRepository{pool: pool}
}

const policyColumns = `id, owner_id, name, description, priority, first_response_minutes,
               resolution_minutes, business_hours_only, escalation_email, is_active,
               created_at, updated_at`

func (r *policyRepository) Create(ctx context.Context, policy *domain.SlaPolicy) error {
	const query = `
        INSERT INTO sla_policies (owner_id, name, description, priority, first_response_minutes,
            resolution_minutes, business_hours_only, escalation_email, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		policy.OwnerID,
		policy.Name,
		policy.Description,
		policy.Priority,
		policy.FirstResponseMinutes,
		policy.ResolutionMinutes,
		policy.BusinessHoursOnly,
		policy.EscalationEmail,
		policy.IsActive,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
	return mapUniqueViolation(err)
}

func (r *policyRepository) Update(ctx context.Context, policy *domain.SlaPolicy) error {
	const query = `
        UPDATE sla_policies SET name=$1, description=$2, priority=$3, first_response_minutes=$4,
            resolution_minutes=$5, business_hours_only=$6, escalation_email=$7, is_active=$8,
            updated_at=NOW()
        WHERE id=$9`
	cmd, err := r.pool.Exec(ctx, query,
		policy.Name,
		policy.Description,
		policy.Priority,
		policy.FirstResponseMinutes,
		policy.ResolutionMinutes,
		policy.BusinessHoursOnly,
		policy.EscalationEmail,
		policy.IsActive,
		policy.ID,
	)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *policyRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM sla_policies WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *policyRepository) GetByID(ctx context.Context, id string) (*domain.SlaPolicy, error) {
	query := fmt.Sprintf(`SELECT %s FROM sla_policies WHERE id=$1`, policyColumns)
	var policy domain.SlaPolicy
	if err := r.pool.QueryRow(ctx, query, id).Scan(policyFields(&policy)...); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *policyRepository) FindActive(ctx context.Context, ownerID string) ([]domain.SlaPolicy, error) {
	query := fmt.Sprintf(`SELECT %s FROM sla_policies WHERE owner_id=$1 AND is_active = TRUE`, policyColumns)
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPolicies(rows)
}

func (r *policyRepository) ActiveExistsForPriority(ctx context.Context, ownerID string, priority domain.TicketPriority, excludeID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM sla_policies WHERE owner_id=$1 AND priority=$2 AND is_active = TRUE`
	args := []any{ownerID, priority}
	if excludeID != "" {
		args = append(args, excludeID)
		query += fmt.Sprintf(" AND id <> $%d", len(args))
	}
	query += ")"

	var exists bool
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *policyRepository) ListWithFilter(ctx context.Context, filter PolicyFilter) ([]domain.SlaPolicy, int, error) {
	clauses := []string{"owner_id=$1"}
	args := []any{filter.OwnerID}

	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		clauses = append(clauses, fmt.Sprintf("is_active=$%d", len(args)))
	}
	if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.Search)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(name) LIKE %s OR LOWER(COALESCE(description, '')) LIKE %s)", placeholder, placeholder))
	}

	where := strings.Join(clauses, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM sla_policies WHERE %s`, where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM sla_policies WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		policyColumns, where, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	policies, err := scanPolicies(rows)
	if err != nil {
		return nil, 0, err
	}
	return policies, total, nil
}

func (r *policyRepository) ListOwnerIDsWithActive(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT owner_id FROM sla_policies WHERE is_active = TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func policyFields(policy *domain.SlaPolicy) []any {
	return []any{
		&policy.ID,
		&policy.OwnerID,
		&policy.Name,
		&policy.Description,
		&policy.Priority,
		&policy.FirstResponseMinutes,
		&policy.ResolutionMinutes,
		&policy.BusinessHoursOnly,
		&policy.EscalationEmail,
		&policy.IsActive,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	}
}

func scanPolicies(rows pgx.Rows) ([]domain.SlaPolicy, error) {
	var result []domain.SlaPolicy
	for rows.Next() {
		var policy domain.SlaPolicy
		if err := rows.Scan(policyFields(&policy)...); err != nil {
			return nil, err
		}
		result = append(result, policy)
	}
	return result, rows.Err()
}

func mapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "one_active_per_priority") {
		return ErrDuplicateActivePolicy
	}
	return err
}
