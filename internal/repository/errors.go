package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrVersionConflict is returned when an update lost an optimistic race.
var ErrVersionConflict = errors.New("ticket was modified concurrently")

// ErrDuplicateTicketNumber is returned when a ticket number is already taken.
var ErrDuplicateTicketNumber = errors.New("ticket number already exists")

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
