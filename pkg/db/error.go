package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// duplicateMarkers are the driver messages for a unique violation on
// postgres (23505), mysql (1062) and sqlite (2067).
var duplicateMarkers = []string{
	"duplicate key value violates unique constraint",
	"Error 1062",
	"UNIQUE constraint failed",
}

// IsUniqueViolation reports whether err is a unique-key violation. With
// hints, it also requires the message to name one of them, so callers can
// tell which index collided: postgres reports the index name, sqlite the
// table.column.
func IsUniqueViolation(err error, hints ...string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return false
		}
		return len(hints) == 0 || containsAny(pgErr.ConstraintName, hints) || containsAny(pgErr.Message, hints)
	}
	msg := err.Error()
	if !errors.Is(err, gorm.ErrDuplicatedKey) && !containsAny(msg, duplicateMarkers) {
		return false
	}
	return len(hints) == 0 || containsAny(msg, hints)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
