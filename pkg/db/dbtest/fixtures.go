package dbtest

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var fixtureTime = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

type PartnerRow struct {
	ID                snowflake.ID
	Email             string
	Status            string
	CommissionPercent string
	DiscountPercent   string
}

func InsertPartner(t testing.TB, db *gorm.DB, row PartnerRow) {
	t.Helper()
	if row.Status == "" {
		row.Status = "active"
	}
	if row.CommissionPercent == "" {
		row.CommissionPercent = "15"
	}
	if row.DiscountPercent == "" {
		row.DiscountPercent = "10"
	}
	if row.Email == "" {
		row.Email = row.ID.String() + "@partners.test"
	}
	mustExec(t, db,
		`INSERT INTO partners (id, name, email, status, commission_percent, discount_percent, free_shipping, notify_email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, "Partner "+row.ID.String(), row.Email, row.Status, row.CommissionPercent, row.DiscountPercent, false, true, fixtureTime, fixtureTime,
	)
}

type ReferralRow struct {
	ID                snowflake.ID
	Code              string
	PartnerID         snowflake.ID
	DiscountPercent   string
	CommissionPercent string
}

func InsertReferral(t testing.TB, db *gorm.DB, row ReferralRow) {
	t.Helper()
	if row.DiscountPercent == "" {
		row.DiscountPercent = "10"
	}
	if row.CommissionPercent == "" {
		row.CommissionPercent = "15"
	}
	mustExec(t, db,
		`INSERT INTO referral_codes (id, code, partner_id, discount_percent, commission_percent, free_shipping, is_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.Code, row.PartnerID, row.DiscountPercent, row.CommissionPercent, false, false, fixtureTime,
	)
}

type OrderRow struct {
	ID              snowflake.ID
	OrderNumber     string
	CustomerID      snowflake.ID
	ReferralCodeID  *snowflake.ID
	ProductType     string
	HostingDuration string
	SubtotalAmount  int64
	DiscountAmount  int64
	TotalAmount     int64
	Currency        string
	Status          string
}

func InsertOrder(t testing.TB, db *gorm.DB, row OrderRow) {
	t.Helper()
	if row.Status == "" {
		row.Status = "pending"
	}
	if row.Currency == "" {
		row.Currency = "EUR"
	}
	if row.ProductType == "" {
		row.ProductType = "nfc_plate"
	}
	if row.HostingDuration == "" {
		row.HostingDuration = "lifetime"
	}
	if row.SubtotalAmount == 0 {
		row.SubtotalAmount = row.TotalAmount + row.DiscountAmount
	}
	var paidAt *time.Time
	if row.Status != "pending" && row.Status != "cancelled" {
		paidAt = &fixtureTime
	}
	mustExec(t, db,
		`INSERT INTO orders (id, order_number, customer_id, referral_code_id, product_type, hosting_duration, quantity,
			subtotal_amount, discount_amount, shipping_amount, total_amount, currency, status, paid_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.OrderNumber, nullableID(row.CustomerID), row.ReferralCodeID, row.ProductType, row.HostingDuration, 1,
		row.SubtotalAmount, row.DiscountAmount, 0, row.TotalAmount, row.Currency, row.Status, paidAt, fixtureTime, fixtureTime,
	)
}

func InsertCustomer(t testing.TB, db *gorm.DB, id snowflake.ID, email string) {
	t.Helper()
	mustExec(t, db,
		`INSERT INTO customers (id, email, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, email, fixtureTime, fixtureTime,
	)
}

type CommissionRow struct {
	ID             snowflake.ID
	PartnerID      snowflake.ID
	OrderID        snowflake.ID
	ReferralCodeID snowflake.ID
	Amount         int64
	Status         string
}

func InsertCommission(t testing.TB, db *gorm.DB, row CommissionRow) {
	t.Helper()
	if row.Status == "" {
		row.Status = "pending"
	}
	var approvedAt *time.Time
	if row.Status == "approved" {
		approvedAt = &fixtureTime
	}
	mustExec(t, db,
		`INSERT INTO commissions (id, partner_id, order_id, referral_code_id, order_total_before_discount, discount_amount,
			commission_percent, commission_amount, currency, status, earned_at, approved_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.PartnerID, row.OrderID, row.ReferralCodeID, row.Amount*10, 0,
		"10", row.Amount, "EUR", row.Status, fixtureTime, approvedAt, fixtureTime, fixtureTime,
	)
}

type CodeBatchRow struct {
	ID              snowflake.ID
	PartnerID       snowflake.ID
	Quantity        int
	ProductType     string
	HostingDuration string
	Status          string
}

func InsertCodeBatch(t testing.TB, db *gorm.DB, row CodeBatchRow) {
	t.Helper()
	if row.Status == "" {
		row.Status = "requested"
	}
	if row.ProductType == "" {
		row.ProductType = "qr_plate"
	}
	if row.HostingDuration == "" {
		row.HostingDuration = "5y"
	}
	mustExec(t, db,
		`INSERT INTO code_batches (id, partner_id, quantity, product_type, hosting_duration, unit_amount, total_amount,
			currency, status, requested_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.PartnerID, row.Quantity, row.ProductType, row.HostingDuration, 7900, 7900*int64(row.Quantity),
		"EUR", row.Status, fixtureTime, fixtureTime, fixtureTime,
	)
}

func mustExec(t testing.TB, db *gorm.DB, sql string, args ...any) {
	t.Helper()
	if err := db.Exec(sql, args...).Error; err != nil {
		t.Fatalf("fixture insert: %v", err)
	}
}

func nullableID(id snowflake.ID) any {
	if id == 0 {
		return nil
	}
	return id
}
