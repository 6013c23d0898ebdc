package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/interngate-api/internal/models"
)

// CertificateRepository persists issued certificates.
type CertificateRepository interface {
	Create(ctx context.Context, certificate *models.Certificate) error
	GetByAttemptID(ctx context.Context, attemptID string) (models.Certificate, error)
}

type certificateRepository struct {
	db *gorm.DB
}

// NewCertificateRepository instantiates the repository.
func NewCertificateRepository(db *gorm.DB) CertificateRepository {
	return &certificateRepository{db: db}
}

// Create inserts a certificate. A second certificate for the same attempt is
// rejected with ErrDuplicateCertificate.
func (r *certificateRepository) Create(ctx context.Context, certificate *models.Certificate) error {
	if err := r.db.WithContext(ctx).Create(certificate).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateCertificate
		}
		return err
	}
	return nil
}

func (r *certificateRepository) GetByAttemptID(ctx context.Context, attemptID string) (models.Certificate, error) {
	var certificate models.Certificate
	if err := r.db.WithContext(ctx).Where("attempt_id = ?", attemptID).First(&certificate).Error; err != nil {
		return models.Certificate{}, err
	}
	return certificate, nil
}
