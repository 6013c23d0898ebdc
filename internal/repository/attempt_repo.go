package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/interngate-api/internal/models"
)

var (
	// ErrDuplicateAttempt indicates an attempt already exists for the user and assessment.
	ErrDuplicateAttempt = errors.New("attempt already recorded")
	// ErrDuplicateCertificate indicates the attempt already has a certificate.
	ErrDuplicateCertificate = errors.New("certificate already issued")
)

// AttemptRepository persists assessment attempts.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.Attempt) error
	GetByID(ctx context.Context, id string) (models.Attempt, error)
	GetByUserAndAssessment(ctx context.Context, userID, assessmentID string) (models.Attempt, error)
}

type attemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository instantiates the repository.
func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

// Create inserts the attempt. The unique (user_id, assessment_id) index is the final
// guard against concurrent submissions; violations surface as ErrDuplicateAttempt.
func (r *attemptRepository) Create(ctx context.Context, attempt *models.Attempt) error {
	if err := r.db.WithContext(ctx).Omit("Certificate").Create(attempt).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateAttempt
		}
		return err
	}
	return nil
}

func (r *attemptRepository) GetByID(ctx context.Context, id string) (models.Attempt, error) {
	var attempt models.Attempt
	if err := r.db.WithContext(ctx).Preload("Certificate").First(&attempt, "id = ?", id).Error; err != nil {
		return models.Attempt{}, err
	}
	return attempt, nil
}

func (r *attemptRepository) GetByUserAndAssessment(ctx context.Context, userID, assessmentID string) (models.Attempt, error) {
	var attempt models.Attempt
	if err := r.db.WithContext(ctx).
		Preload("Certificate").
		Where("user_id = ?", userID).
		Where("assessment_id = ?", assessmentID).
		First(&attempt).Error; err != nil {
		return models.Attempt{}, err
	}
	return attempt, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") || strings.Contains(message, "duplicate key")
}
