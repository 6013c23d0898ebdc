package dto

import (
	"time"

	"github.com/noah-isme/interngate-api/internal/models"
)

// AssessmentVerifyRequest asks whether the caller may start an assessment.
type AssessmentVerifyRequest struct {
	AssessmentID string `json:"assessmentId" validate:"required,max=64"`
}

// AssessmentVerifyResponse is returned by the verify endpoint.
type AssessmentVerifyResponse struct {
	Authorized bool   `json:"authorized"`
	Redirect   string `json:"redirect,omitempty"`
}

// AssessmentSubmitRequest carries a client-computed result. Raw answers are never sent.
type AssessmentSubmitRequest struct {
	AssessmentID   string `json:"assessmentId" validate:"required,max=64"`
	Score          *int   `json:"score" validate:"required,gte=0"`
	TotalQuestions int    `json:"totalQuestions" validate:"required,gt=0"`
	EndReason      string `json:"endReason" validate:"omitempty,oneof=manual deadline integrity_violation"`
	Violations     int    `json:"violations" validate:"gte=0"`
}

// AssessmentResultResponse describes a persisted attempt.
type AssessmentResultResponse struct {
	Success           bool      `json:"success"`
	Passed            bool      `json:"passed"`
	Score             int       `json:"score"`
	TotalQuestions    int       `json:"totalQuestions"`
	AttemptID         string    `json:"attemptId"`
	CertificateURL    string    `json:"certificateUrl,omitempty"`
	CertificateIssued bool      `json:"certificateIssued"`
	Duplicate         bool      `json:"duplicate"`
	EndReason         string    `json:"endReason,omitempty"`
	SubmittedAt       time.Time `json:"submittedAt"`
}

// CertificateResponse describes an issued certificate.
type CertificateResponse struct {
	ID             string    `json:"id"`
	AttemptID      string    `json:"attemptId"`
	AssessmentID   string    `json:"assessmentId"`
	CertificateURL string    `json:"certificateUrl"`
	IssuedAt       time.Time `json:"issuedAt"`
}

// NewAssessmentResultResponse maps an attempt and its certificate, if any.
func NewAssessmentResultResponse(attempt models.Attempt) AssessmentResultResponse {
	response := AssessmentResultResponse{
		Success:        true,
		Passed:         attempt.Passed,
		Score:          attempt.Score,
		TotalQuestions: attempt.TotalQuestions,
		AttemptID:      attempt.ID,
		EndReason:      attempt.EndReason,
		SubmittedAt:    attempt.SubmittedAt,
	}
	if attempt.Certificate != nil {
		response.CertificateURL = attempt.Certificate.CertificateURL
		response.CertificateIssued = true
	}
	return response
}

// NewCertificateResponse maps a certificate model.
func NewCertificateResponse(certificate models.Certificate) CertificateResponse {
	return CertificateResponse{
		ID:             certificate.ID,
		AttemptID:      certificate.AttemptID,
		AssessmentID:   certificate.AssessmentID,
		CertificateURL: certificate.CertificateURL,
		IssuedAt:       certificate.IssuedAt,
	}
}
