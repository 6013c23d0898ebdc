package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/interngate-api/internal/models"
)

// PaymentRepository reads payment records written by the payment collaborator.
type PaymentRepository interface {
	FindPaid(ctx context.Context, userID, assessmentID string) (models.PaymentRecord, error)
}

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository constructs a read-only payment repository.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// FindPaid always hits the database; no result is memoised between calls.
func (r *paymentRepository) FindPaid(ctx context.Context, userID, assessmentID string) (models.PaymentRecord, error) {
	var record models.PaymentRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("assessment_id = ?", assessmentID).
		Where("status = ?", models.PaymentStatusPaid).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		return models.PaymentRecord{}, err
	}

	return record, nil
}
