package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/interngate-api/internal/auth"
	"github.com/noah-isme/interngate-api/internal/models"
)

func seedAttempt(t *testing.T, attempts *attemptRepoStub, userID string, passed bool) models.Attempt {
	t.Helper()
	attempt := models.Attempt{UserID: userID, AssessmentID: "1", Score: 16, TotalQuestions: 20, Passed: passed, SubmittedAt: time.Now()}
	require.NoError(t, attempts.Create(context.Background(), &attempt))
	return attempt
}

func TestCertificateServiceIssueIsIdempotent(t *testing.T) {
	certificates := newCertificateRepoStub()
	attempts := newAttemptRepoStub(certificates)
	svc := NewCertificateService(attempts, certificates, nil, "https://certs.example.com", testLogger())

	attempt := seedAttempt(t, attempts, "u1", true)

	first, err := svc.Issue(context.Background(), attempt)
	require.NoError(t, err)
	require.Equal(t, "https://certs.example.com/verify/cert/"+attempt.ID, first.CertificateURL)

	second, err := svc.Issue(context.Background(), attempt)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, certificates.count())

	failed := seedAttempt(t, attempts, "u2", false)
	_, err = svc.Issue(context.Background(), failed)
	require.ErrorIs(t, err, ErrAttemptNotPassed)
}

func TestCertificateServiceRegenerate(t *testing.T) {
	certificates := newCertificateRepoStub()
	attempts := newAttemptRepoStub(certificates)
	svc := NewCertificateService(attempts, certificates, nil, "https://certs.example.com", testLogger())

	attempt := seedAttempt(t, attempts, "u1", true)

	_, err := svc.Regenerate(context.Background(), auth.Session{}, attempt.ID)
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Regenerate(context.Background(), auth.Session{UserID: "intruder"}, attempt.ID)
	require.ErrorIs(t, err, ErrAttemptNotFound)

	_, err = svc.Regenerate(context.Background(), auth.Session{UserID: "u1"}, "missing")
	require.ErrorIs(t, err, ErrAttemptNotFound)

	resp, err := svc.Regenerate(context.Background(), auth.Session{UserID: "u1"}, attempt.ID)
	require.NoError(t, err)
	require.Equal(t, attempt.ID, resp.AttemptID)

	again, err := svc.Regenerate(context.Background(), auth.Session{UserID: "u1"}, attempt.ID)
	require.NoError(t, err)
	require.Equal(t, resp.ID, again.ID)
	require.Equal(t, 1, certificates.count())

	failed := seedAttempt(t, attempts, "u2", false)
	_, err = svc.Regenerate(context.Background(), auth.Session{UserID: "u2"}, failed.ID)
	require.ErrorIs(t, err, ErrAttemptNotPassed)
}

func TestCertificateServiceConsumesPendingEvents(t *testing.T) {
	certificates := newCertificateRepoStub()
	attempts := newAttemptRepoStub(certificates)
	events := &eventBusStub{}
	svc := NewCertificateService(attempts, certificates, events, "https://certs.example.com", testLogger())

	require.NoError(t, svc.Start(context.Background()))
	require.NotNil(t, events.handler)

	attempt := seedAttempt(t, attempts, "u1", true)

	events.handler(context.Background(), AssessmentEvent{Type: EventAttemptRecorded, AttemptID: attempt.ID})
	require.Zero(t, certificates.count())

	events.handler(context.Background(), AssessmentEvent{Type: EventCertificatePending, AttemptID: attempt.ID})
	require.Equal(t, 1, certificates.count())

	events.handler(context.Background(), AssessmentEvent{Type: EventCertificatePending, AttemptID: attempt.ID})
	require.Equal(t, 1, certificates.count())
}
