package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// LedgerEntryDirection represents debit or credit postings.
type LedgerEntryDirection string

const (
	LedgerEntryDirectionDebit  LedgerEntryDirection = "debit"
	LedgerEntryDirectionCredit LedgerEntryDirection = "credit"
)

type LedgerSourceType string

const (
	// Customer orders
	SourceTypeOrderPayment LedgerSourceType = "order_payment"

	// Partner code batches
	SourceTypeCodeBatchPayment LedgerSourceType = "code_batch_payment"

	// Partner earnings
	SourceTypeCommission LedgerSourceType = "commission"
	SourceTypePayout     LedgerSourceType = "payout"
)

type LedgerAccountCode string

const (
	// Assets
	AccountCodeCash LedgerAccountCode = "cash"

	// Revenue
	AccountCodeRevenueOrders LedgerAccountCode = "revenue_orders"
	AccountCodeRevenueCodes  LedgerAccountCode = "revenue_activation_codes"

	// Liabilities
	AccountCodeCommissionPayable LedgerAccountCode = "commission_payable"

	// Expenses
	AccountCodeCommissionExpense LedgerAccountCode = "commission_expense"
)

var accountNames = map[LedgerAccountCode]string{
	AccountCodeCash:              "Cash",
	AccountCodeRevenueOrders:     "Order revenue",
	AccountCodeRevenueCodes:      "Activation code revenue",
	AccountCodeCommissionPayable: "Commissions payable",
	AccountCodeCommissionExpense: "Commission expense",
}

// AccountName returns the display name for a chart-of-accounts code.
func AccountName(code LedgerAccountCode) string {
	if name, ok := accountNames[code]; ok {
		return name
	}
	return string(code)
}

// LedgerAccount defines a chart-of-accounts entry.
type LedgerAccount struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	Code      LedgerAccountCode `gorm:"type:text;not null;uniqueIndex:ux_ledger_accounts_code"`
	Name      string            `gorm:"type:text;not null"`
	CreatedAt time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (LedgerAccount) TableName() string { return "ledger_accounts" }

// LedgerEntry captures the immutable header for a financial event.
type LedgerEntry struct {
	ID         snowflake.ID     `gorm:"primaryKey"`
	SourceType LedgerSourceType `gorm:"type:text;not null"`
	SourceID   snowflake.ID     `gorm:"not null"`
	Currency   string           `gorm:"type:text;not null"`
	OccurredAt time.Time        `gorm:"not null"`
	CreatedAt  time.Time        `gorm:"not null"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// LedgerEntryLine is a double-entry posting line.
type LedgerEntryLine struct {
	ID            snowflake.ID         `gorm:"primaryKey"`
	LedgerEntryID snowflake.ID         `gorm:"not null;index"`
	AccountID     snowflake.ID         `gorm:"not null;index"`
	Direction     LedgerEntryDirection `gorm:"type:text;not null"`
	Currency      string               `gorm:"type:text;not null"`
	Amount        int64                `gorm:"not null"`
	CreatedAt     time.Time            `gorm:"not null"`
}

// TableName sets the database table name.
func (LedgerEntryLine) TableName() string { return "ledger_entry_lines" }
