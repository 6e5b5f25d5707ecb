package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/memoria/internal/audit/domain"
	ledgerdomain "github.com/smallbiznis/memoria/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/memoria/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateEntry(ctx context.Context, input ledgerdomain.EntryInput) (bool, error) {
	var inserted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inserted, err = s.CreateEntryTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// CreateEntryTx posts the entry on the caller's transaction so it commits or
// rolls back with the business change it records.
func (s *Service) CreateEntryTx(ctx context.Context, tx *gorm.DB, input ledgerdomain.EntryInput) (bool, error) {
	sourceType := ledgerdomain.LedgerSourceType(strings.TrimSpace(string(input.SourceType)))
	if sourceType == "" {
		return false, ledgerdomain.ErrInvalidSourceType
	}
	if input.SourceID == 0 {
		return false, ledgerdomain.ErrInvalidSourceID
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		return false, ledgerdomain.ErrInvalidCurrency
	}
	if input.OccurredAt.IsZero() {
		return false, ledgerdomain.ErrInvalidOccurredAt
	}
	if len(input.Postings) < 2 {
		return false, ledgerdomain.ErrInvalidEntryLines
	}

	normalized := make([]ledgerdomain.Posting, 0, len(input.Postings))
	for _, posting := range input.Postings {
		if strings.TrimSpace(string(posting.Account)) == "" {
			return false, ledgerdomain.ErrInvalidAccount
		}
		direction, err := normalizeDirection(posting.Direction)
		if err != nil {
			return false, err
		}
		if posting.Amount < 0 {
			return false, ledgerdomain.ErrInvalidLineAmount
		}
		normalized = append(normalized, ledgerdomain.Posting{
			Account:   posting.Account,
			Direction: direction,
			Amount:    posting.Amount,
		})
	}
	if err := ledgerdomain.ValidateBalanced(normalized); err != nil {
		return false, err
	}

	entryID := s.genID.Generate()
	now := time.Now().UTC()
	result := tx.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (
			id, source_type, source_id, currency, occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_type, source_id) DO NOTHING`,
		entryID,
		string(sourceType),
		input.SourceID,
		currency,
		input.OccurredAt.UTC(),
		now,
	)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	for _, posting := range normalized {
		accountID, err := s.ensureAccount(ctx, tx, posting.Account, now)
		if err != nil {
			return false, err
		}
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO ledger_entry_lines (
				id, ledger_entry_id, account_id, direction, currency, amount, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.genID.Generate(),
			entryID,
			accountID,
			string(posting.Direction),
			currency,
			posting.Amount,
			now,
		).Error; err != nil {
			return false, err
		}
	}

	if s.auditSvc != nil {
		entryIDStr := entryID.String()
		metadata := map[string]any{
			"source_type":     string(sourceType),
			"source_id":       input.SourceID.String(),
			"ledger_entry_id": entryIDStr,
		}
		if err := s.auditSvc.AuditLogTx(ctx, tx, "", nil, "ledger.entry_created", "ledger_entry", &entryIDStr, metadata); err != nil {
			s.log.Warn("failed to write ledger audit log", zap.Error(err))
		}
	}

	s.obsMetrics.RecordLedgerEntry(ctx, string(sourceType))
	return true, nil
}

// Balance returns debits minus credits for an account in one currency.
func (s *Service) Balance(ctx context.Context, account ledgerdomain.LedgerAccountCode, currency string) (int64, error) {
	var row struct {
		Debit  int64
		Credit int64
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT
			COALESCE(SUM(CASE WHEN l.direction = 'debit' THEN l.amount ELSE 0 END), 0) AS debit,
			COALESCE(SUM(CASE WHEN l.direction = 'credit' THEN l.amount ELSE 0 END), 0) AS credit
		FROM ledger_entry_lines l
		JOIN ledger_accounts a ON a.id = l.account_id
		WHERE a.code = ? AND l.currency = ?`,
		string(account),
		strings.ToUpper(strings.TrimSpace(currency)),
	).Scan(&row).Error
	if err != nil {
		return 0, err
	}
	return row.Debit - row.Credit, nil
}

func (s *Service) ensureAccount(ctx context.Context, tx *gorm.DB, code ledgerdomain.LedgerAccountCode, now time.Time) (snowflake.ID, error) {
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO ledger_accounts (id, code, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (code) DO NOTHING`,
		s.genID.Generate(),
		string(code),
		ledgerdomain.AccountName(code),
		now,
	).Error; err != nil {
		return 0, err
	}

	var account ledgerdomain.LedgerAccount
	if err := tx.WithContext(ctx).
		Where("code = ?", string(code)).
		First(&account).Error; err != nil {
		return 0, err
	}
	return account.ID, nil
}

func normalizeDirection(direction ledgerdomain.LedgerEntryDirection) (ledgerdomain.LedgerEntryDirection, error) {
	normalized := strings.ToLower(strings.TrimSpace(string(direction)))
	switch normalized {
	case string(ledgerdomain.LedgerEntryDirectionDebit):
		return ledgerdomain.LedgerEntryDirectionDebit, nil
	case string(ledgerdomain.LedgerEntryDirectionCredit):
		return ledgerdomain.LedgerEntryDirectionCredit, nil
	default:
		return "", ledgerdomain.ErrInvalidLineDirection
	}
}
