package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Certificate is issued for a passed Attempt. At most one exists per attempt.
type Certificate struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	UserID         string    `gorm:"size:64;not null;index" json:"user_id"`
	AttemptID      string    `gorm:"size:36;not null;uniqueIndex" json:"attempt_id"`
	AssessmentID   string    `gorm:"size:64;not null" json:"assessment_id"`
	CertificateURL string    `gorm:"size:512;not null" json:"certificate_url"`
	IssuedAt       time.Time `gorm:"not null" json:"issued_at"`
}

// BeforeCreate assigns the certificate identifier.
func (c *Certificate) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// CertificateURL derives the public verification link from the attempt id alone.
func CertificateURL(baseURL, attemptID string) string {
	return fmt.Sprintf("%s/verify/cert/%s", strings.TrimRight(baseURL, "/"), attemptID)
}
