package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// TicketFilter captures list parameters.
type TicketFilter struct {
	CreatedBy      *string
	AssignedTo     *string
	Statuses       []domain.TicketStatus
	Priorities     []domain.TicketPriority
	Categories     []domain.TicketCategory
	SearchTerm     *string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// TicketRepository encapsulates ticket persistence. Every write stores the
// ticket together with the audit entry describing it.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket, entry *domain.AuditEntry) error
	// Update persists ticket if the stored version is ticket.Version-1.
	Update(ctx context.Context, ticket *domain.Ticket, entry *domain.AuditEntry) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// ListSweepCandidates returns active, non-deleted tickets below the
	// escalation cap whose resolution deadline passed, or whose response
	// deadline passed without a first response.
	ListSweepCandidates(ctx context.Context, now time.Time, limit int) ([]domain.Ticket, error)
}

// SweepStatuses are the statuses the escalation sweep considers.
var SweepStatuses = []domain.TicketStatus{
	domain.TicketStatusOpen,
	domain.TicketStatusAssigned,
	domain.TicketStatusInProgress,
	domain.TicketStatusPending,
	domain.TicketStatusReopened,
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_number, title, description, category, priority, department, status,
        created_by, assigned_to, assigned_by, assigned_at, sla, escalation, resolution,
        comments, attachments, status_history, metadata, closed_at, cancelled_at, reopened_at,
        reopen_count, deleted, deleted_at, deleted_by, version, audit_head, created_at, updated_at`

// ticketDocuments holds the JSONB encodings of a ticket's nested blocks.
type ticketDocuments struct {
	sla         []byte
	escalation  []byte
	resolution  []byte
	comments    []byte
	attachments []byte
	history     []byte
	meta        []byte
}

func encodeDocuments(t *domain.Ticket) (ticketDocuments, error) {
	var docs ticketDocuments
	var err error
	encode := func(v any) []byte {
		if err != nil {
			return nil
		}
		var b []byte
		b, err = json.Marshal(v)
		return b
	}
	docs.sla = encode(t.SLA)
	docs.escalation = encode(t.Escalation)
	docs.resolution = encode(t.Resolution)
	docs.comments = encode(nonNil(t.Comments))
	docs.attachments = encode(nonNil(t.Attachments))
	docs.history = encode(nonNil(t.StatusHistory))
	meta := t.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	docs.meta = encode(meta)
	if err != nil {
		return ticketDocuments{}, fmt.Errorf("encode ticket %s: %w", t.ID, err)
	}
	return docs, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket, entry *domain.AuditEntry) error {
	docs, err := encodeDocuments(ticket)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO tickets (id, ticket_number, title, description, category, priority, department, status,
            created_by, assigned_to, assigned_by, assigned_at, response_deadline, resolution_deadline,
            first_response_at, escalation_level, sla, escalation, resolution, comments, attachments,
            status_history, metadata, closed_at, cancelled_at, reopened_at, reopen_count, deleted,
            deleted_at, deleted_by, version, audit_head, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,
            $24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34)`

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			ticket.ID,
			ticket.TicketNumber,
			ticket.Title,
			ticket.Description,
			ticket.Category,
			ticket.Priority,
			ticket.Department,
			ticket.Status,
			ticket.CreatedBy,
			ticket.AssignedTo,
			ticket.AssignedBy,
			ticket.AssignedAt,
			ticket.SLA.Response.Deadline,
			ticket.SLA.Resolution.Deadline,
			ticket.SLA.FirstResponseAt,
			ticket.Escalation.Level,
			docs.sla,
			docs.escalation,
			docs.resolution,
			docs.comments,
			docs.attachments,
			docs.history,
			docs.meta,
			ticket.ClosedAt,
			ticket.CancelledAt,
			ticket.ReopenedAt,
			ticket.ReopenCount,
			ticket.Deleted,
			ticket.DeletedAt,
			ticket.DeletedBy,
			ticket.Version,
			ticket.AuditHead,
			ticket.CreatedAt,
			ticket.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateTicketNumber, ticket.TicketNumber)
			}
			return err
		}
		return insertAudit(ctx, tx, entry)
	})
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, entry *domain.AuditEntry) error {
	docs, err := encodeDocuments(ticket)
	if err != nil {
		return err
	}
	const query = `
        UPDATE tickets SET title=$1, description=$2, category=$3, priority=$4, department=$5, status=$6,
            assigned_to=$7, assigned_by=$8, assigned_at=$9, response_deadline=$10, resolution_deadline=$11,
            first_response_at=$12, escalation_level=$13, sla=$14, escalation=$15, resolution=$16,
            comments=$17, attachments=$18, status_history=$19, metadata=$20, closed_at=$21,
            cancelled_at=$22, reopened_at=$23, reopen_count=$24, deleted=$25, deleted_at=$26,
            deleted_by=$27, version=$28, audit_head=$29, updated_at=$30
        WHERE id=$31 AND version=$32`

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, query,
			ticket.Title,
			ticket.Description,
			ticket.Category,
			ticket.Priority,
			ticket.Department,
			ticket.Status,
			ticket.AssignedTo,
			ticket.AssignedBy,
			ticket.AssignedAt,
			ticket.SLA.Response.Deadline,
			ticket.SLA.Resolution.Deadline,
			ticket.SLA.FirstResponseAt,
			ticket.Escalation.Level,
			docs.sla,
			docs.escalation,
			docs.resolution,
			docs.comments,
			docs.attachments,
			docs.history,
			docs.meta,
			ticket.ClosedAt,
			ticket.CancelledAt,
			ticket.ReopenedAt,
			ticket.ReopenCount,
			ticket.Deleted,
			ticket.DeletedAt,
			ticket.DeletedBy,
			ticket.Version,
			ticket.AuditHead,
			ticket.UpdatedAt,
			ticket.ID,
			ticket.Version-1,
		)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return pgx.ErrNoRows
			}
			return ErrVersionConflict
		}
		return insertAudit(ctx, tx, entry)
	})
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &tickets[0], nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if !filter.IncludeDeleted {
		clauses = append(clauses, "NOT deleted")
	}
	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, toStrings(filter.Statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(filter.Priorities) > 0 {
		args = append(args, toStrings(filter.Priorities))
		clauses = append(clauses, fmt.Sprintf("priority = ANY($%d)", len(args)))
	}
	if len(filter.Categories) > 0 {
		args = append(args, toStrings(filter.Categories))
		clauses = append(clauses, fmt.Sprintf("category = ANY($%d)", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListSweepCandidates(ctx context.Context, now time.Time, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE NOT deleted AND status = ANY($1) AND escalation_level < $2
          AND (resolution_deadline < $3 OR (first_response_at IS NULL AND response_deadline < $3))
        ORDER BY resolution_deadline ASC
        LIMIT $4`
	rows, err := r.pool.Query(ctx, query, toStrings(SweepStatuses), domain.MaxEscalationLevel, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var (
			ticket domain.Ticket
			docs   ticketDocuments
		)
		if err := rows.Scan(
			&ticket.ID,
			&ticket.TicketNumber,
			&ticket.Title,
			&ticket.Description,
			&ticket.Category,
			&ticket.Priority,
			&ticket.Department,
			&ticket.Status,
			&ticket.CreatedBy,
			&ticket.AssignedTo,
			&ticket.AssignedBy,
			&ticket.AssignedAt,
			&docs.sla,
			&docs.escalation,
			&docs.resolution,
			&docs.comments,
			&docs.attachments,
			&docs.history,
			&docs.meta,
			&ticket.ClosedAt,
			&ticket.CancelledAt,
			&ticket.ReopenedAt,
			&ticket.ReopenCount,
			&ticket.Deleted,
			&ticket.DeletedAt,
			&ticket.DeletedBy,
			&ticket.Version,
			&ticket.AuditHead,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := decodeDocuments(&ticket, docs); err != nil {
			return nil, err
		}
		normalizeTimes(&ticket)
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func decodeDocuments(t *domain.Ticket, docs ticketDocuments) error {
	targets := []struct {
		raw []byte
		dst any
	}{
		{docs.sla, &t.SLA},
		{docs.escalation, &t.Escalation},
		{docs.resolution, &t.Resolution},
		{docs.comments, &t.Comments},
		{docs.attachments, &t.Attachments},
		{docs.history, &t.StatusHistory},
		{docs.meta, &t.Metadata},
	}
	for _, target := range targets {
		if len(target.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(target.raw, target.dst); err != nil {
			return fmt.Errorf("decode ticket %s: %w", t.ID, err)
		}
	}
	return nil
}

// normalizeTimes converts top-level timestamps to UTC; pgx returns them in
// the session's local zone.
func normalizeTimes(t *domain.Ticket) {
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	for _, ts := range []*time.Time{t.AssignedAt, t.ClosedAt, t.CancelledAt, t.ReopenedAt, t.DeletedAt} {
		if ts != nil {
			*ts = ts.UTC()
		}
	}
}
