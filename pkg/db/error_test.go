package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	pg := errors.New(`ERROR: duplicate key value violates unique constraint "ux_payouts_number" (SQLSTATE 23505)`)
	lite := errors.New("UNIQUE constraint failed: payouts.payout_number")

	assert.True(t, IsUniqueViolation(pg))
	assert.True(t, IsUniqueViolation(pg, "ux_payouts_number", "payouts.payout_number"))
	assert.True(t, IsUniqueViolation(lite, "ux_payouts_number", "payouts.payout_number"))
	assert.False(t, IsUniqueViolation(lite, "ux_activation_codes_code"))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	assert.False(t, IsUniqueViolation(errors.New("connection reset")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestIsUniqueViolationPgError(t *testing.T) {
	dup := fmt.Errorf("create payout: %w", &pgconn.PgError{Code: "23505", ConstraintName: "ux_payouts_number"})
	assert.True(t, IsUniqueViolation(dup, "ux_payouts_number"))
	assert.False(t, IsUniqueViolation(dup, "ux_activation_codes_code"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503", ConstraintName: "ux_payouts_number"}))
}
