package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// AuditRepository reads audit entries. Entries are written only through
// TicketRepository, in the same transaction as the ticket.
type AuditRepository interface {
	ListByTicket(ctx context.Context, ticketID string) ([]domain.AuditEntry, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository builds repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func insertAudit(ctx context.Context, tx pgx.Tx, entry *domain.AuditEntry) error {
	if entry == nil {
		return nil
	}
	changes, err := json.Marshal(nonNil(entry.Changes))
	if err != nil {
		return fmt.Errorf("encode audit changes: %w", err)
	}
	const query = `
        INSERT INTO ticket_audit (id, ticket_id, sequence, action, performed_by, occurred_at, changes, note, prev_hash, hash)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err = tx.Exec(ctx, query,
		entry.ID,
		entry.TicketID,
		entry.Sequence,
		entry.Action,
		entry.PerformedBy,
		entry.Timestamp,
		changes,
		entry.Note,
		entry.PrevHash,
		entry.Hash,
	)
	return err
}

func (r *auditRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.AuditEntry, error) {
	const query = `
        SELECT id, ticket_id, sequence, action, performed_by, occurred_at, changes, note, prev_hash, hash
        FROM ticket_audit WHERE ticket_id=$1 ORDER BY sequence ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditEntry
	for rows.Next() {
		var (
			entry   domain.AuditEntry
			changes []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Sequence,
			&entry.Action,
			&entry.PerformedBy,
			&entry.Timestamp,
			&changes,
			&entry.Note,
			&entry.PrevHash,
			&entry.Hash,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(changes, &entry.Changes); err != nil {
			return nil, fmt.Errorf("decode audit entry %s: %w", entry.ID, err)
		}
		entry.Timestamp = entry.Timestamp.UTC()
		result = append(result, entry)
	}
	return result, rows.Err()
}
