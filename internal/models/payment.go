package models

import "time"

// PaymentStatus mirrors the status column written by the payment webhook.
type PaymentStatus string

const (
	// PaymentStatusPending marks an order created but not yet confirmed by the gateway.
	PaymentStatusPending PaymentStatus = "PENDING"
	// PaymentStatusPaid marks an order the gateway confirmed.
	PaymentStatusPaid PaymentStatus = "PAID"
)

// PaymentRecord is an assessment order. Rows are written by the payment collaborator;
// the assessment core only reads them.
type PaymentRecord struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	UserID         string        `gorm:"size:64;not null;index:idx_orders_user_assessment" json:"user_id"`
	AssessmentID   string        `gorm:"size:64;not null;index:idx_orders_user_assessment" json:"assessment_id"`
	Status         PaymentStatus `gorm:"size:16;not null;index" json:"status"`
	GatewayOrderID string        `gorm:"size:128" json:"gateway_order_id"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// TableName keeps the table shared with the payment collaborator.
func (PaymentRecord) TableName() string {
	return "orders"
}

// IsPaid reports whether the gateway confirmed the order.
func (p PaymentRecord) IsPaid() bool {
	return p.Status == PaymentStatusPaid
}
