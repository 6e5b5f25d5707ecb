package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidSourceType    = errors.New("invalid_source_type")
	ErrInvalidSourceID      = errors.New("invalid_source_id")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrInvalidOccurredAt    = errors.New("invalid_occurred_at")
	ErrInvalidEntryLines    = errors.New("invalid_entry_lines")
	ErrInvalidAccount       = errors.New("invalid_account")
	ErrInvalidLineAmount    = errors.New("invalid_line_amount")
	ErrInvalidLineDirection = errors.New("invalid_line_direction")
	ErrUnbalancedEntry      = errors.New("unbalanced_entry")
)

// Posting is one side of an entry, addressed by account code.
type Posting struct {
	Account   LedgerAccountCode
	Direction LedgerEntryDirection
	Amount    int64
}

type EntryInput struct {
	SourceType LedgerSourceType
	SourceID   snowflake.ID
	Currency   string
	OccurredAt time.Time
	Postings   []Posting
}

// Service posts balanced entries. Posting the same (source_type, source_id)
// twice is a no-op and reports inserted=false.
type Service interface {
	CreateEntry(ctx context.Context, input EntryInput) (bool, error)
	CreateEntryTx(ctx context.Context, tx *gorm.DB, input EntryInput) (bool, error)
	Balance(ctx context.Context, account LedgerAccountCode, currency string) (int64, error)
}

// Transfer builds the common two-line entry moving amount from credit to debit.
func Transfer(debit, credit LedgerAccountCode, amount int64) []Posting {
	return []Posting{
		{Account: debit, Direction: LedgerEntryDirectionDebit, Amount: amount},
		{Account: credit, Direction: LedgerEntryDirectionCredit, Amount: amount},
	}
}

// ValidateBalanced requires debits and credits to net to zero.
func ValidateBalanced(postings []Posting) error {
	var debit, credit int64
	for _, p := range postings {
		switch p.Direction {
		case LedgerEntryDirectionDebit:
			debit += p.Amount
		case LedgerEntryDirectionCredit:
			credit += p.Amount
		default:
			return ErrInvalidLineDirection
		}
	}
	if debit != credit {
		return ErrUnbalancedEntry
	}
	return nil
}
