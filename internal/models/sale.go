package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Column names of the sale stream tables.
const (
	ColumnID            = "id"
	ColumnQuantity      = "quantity"
	ColumnAmount        = "amount"
	ColumnTransID       = "trans_id"
	ColumnBoxOffice     = "box_office"
	ColumnEventName     = "event_name"
	ColumnCreatedAt     = "created_at"
	ColumnPaymentMethod = "payment_method"
	ColumnStartAt       = "start_at"
)

// RequiredFields are the webhook payload fields, in declaration order.
var RequiredFields = []string{
	ColumnQuantity,
	ColumnAmount,
	ColumnTransID,
	ColumnBoxOffice,
	ColumnEventName,
	ColumnCreatedAt,
	ColumnPaymentMethod,
	ColumnStartAt,
}

// Payment methods with their own bucket in sales summaries.
const (
	PaymentCreditCard = "credit_card"
	PaymentCash       = "cash"
)

// SaleRecord is one ticket-sale transaction. Both stream tables share this
// shape; the table is chosen per query.
type SaleRecord struct {
	bun.BaseModel `bun:"table:flicks,alias:s"`

	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	Quantity      string    `bun:"quantity" json:"quantity"`
	Amount        string    `bun:"amount" json:"amount"`
	TransID       string    `bun:"trans_id" json:"trans_id"`
	BoxOffice     string    `bun:"box_office" json:"box_office"`
	EventName     string    `bun:"event_name" json:"event_name"`
	CreatedAt     time.Time `bun:"created_at" json:"created_at"`
	PaymentMethod string    `bun:"payment_method" json:"payment_method"`
	StartAt       string    `bun:"start_at" json:"start_at"`
}

// IsColumn reports whether name is a column of the sale stream tables.
func IsColumn(name string) bool {
	switch name {
	case ColumnID, ColumnQuantity, ColumnAmount, ColumnTransID, ColumnBoxOffice,
		ColumnEventName, ColumnCreatedAt, ColumnPaymentMethod, ColumnStartAt:
		return true
	}
	return false
}
