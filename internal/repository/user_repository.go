package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// UserRepository is the Staff Directory's storage: users, their roles,
// availability and active-ticket load.
type UserRepository interface {
	Upsert(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// ListSupportStaff returns active technicians and admins.
	ListSupportStaff(ctx context.Context) ([]domain.User, error)
	// AdjustLoad atomically changes CurrentTickets by delta, never below
	// zero. A positive delta also stamps LastAssignedAt.
	AdjustLoad(ctx context.Context, id string, delta int, at time.Time) error
	SetAvailability(ctx context.Context, id string, availability domain.Availability) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, name, email, role, department, support_areas, availability, current_tickets,
        last_assigned_at, active, created_at, updated_at`

func (r *userRepository) Upsert(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (id, name, email, role, department, support_areas, availability, current_tickets, last_assigned_at, active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, email=EXCLUDED.email, role=EXCLUDED.role,
            department=EXCLUDED.department, support_areas=EXCLUDED.support_areas,
            availability=EXCLUDED.availability, active=EXCLUDED.active, updated_at=NOW()
        RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.Role,
		user.Department,
		toStrings(user.SupportAreas),
		user.Availability,
		user.CurrentTickets,
		user.LastAssignedAt,
		user.Active,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users, err := scanUsers(rows)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &users[0], nil
}

func (r *userRepository) ListSupportStaff(ctx context.Context) ([]domain.User, error) {
	query := `SELECT ` + userColumns + `
        FROM users WHERE active AND role = ANY($1) ORDER BY id`
	rows, err := r.pool.Query(ctx, query, []string{string(domain.RoleTechnician), string(domain.RoleAdmin)})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (r *userRepository) AdjustLoad(ctx context.Context, id string, delta int, at time.Time) error {
	const query = `
        UPDATE users SET current_tickets = GREATEST(current_tickets + $1, 0),
            last_assigned_at = CASE WHEN $1 > 0 THEN $2 ELSE last_assigned_at END,
            updated_at = NOW()
        WHERE id=$3`
	cmd, err := r.pool.Exec(ctx, query, delta, at, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) SetAvailability(ctx context.Context, id string, availability domain.Availability) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE users SET availability=$1, updated_at=NOW() WHERE id=$2`, availability, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanUsers(rows pgx.Rows) ([]domain.User, error) {
	var result []domain.User
	for rows.Next() {
		var (
			user  domain.User
			areas []string
		)
		if err := rows.Scan(
			&user.ID,
			&user.Name,
			&user.Email,
			&user.Role,
			&user.Department,
			&areas,
			&user.Availability,
			&user.CurrentTickets,
			&user.LastAssignedAt,
			&user.Active,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		for _, area := range areas {
			user.SupportAreas = append(user.SupportAreas, domain.TicketCategory(area))
		}
		result = append(result, user)
	}
	return result, rows.Err()
}
