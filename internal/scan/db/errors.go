package db

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

const pgUniqueViolationCode = "23505"

// uniqueViolationOn reports whether err is a unique-constraint violation
// involving the given relation or column. Postgres errors are matched by
// error code plus constraint name; the sqlite driver used in tests is
// matched on its message.
func uniqueViolationOn(err error, rel string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolationCode {
		return strings.Contains(pqErr.Constraint, rel) || strings.Contains(pqErr.Detail, rel)
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, rel)
}
