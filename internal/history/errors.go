package history

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const uniqueViolation = "23505"

// convertError maps driver-specific unique violations to ErrDuplicateEntry
func convertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, pgErr.Detail)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, pqErr.Detail)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", ErrDuplicateEntry, liteErr)
	}

	return err
}
