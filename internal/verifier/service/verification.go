// Package service implements the verification state machine: challenge
// issuance, proof validation, and the gate in front of DNS provisioning.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudflare/cloudflare-go"
	"go.uber.org/zap"

	"github.com/bluecheck-id/bluecheck/internal/challenge"
	"github.com/bluecheck-id/bluecheck/internal/verifier/store"
)

// ProofChecker is the read-only view of the identity provider required by
// the verification flow. Implementations must fail closed: ambiguous or
// erroring conditions report false.
type ProofChecker interface {
	IsBadgeVerified(ctx context.Context, handle string) bool
	HasPublishedToken(ctx context.Context, handle, token string) bool
}

// RecordCreator provisions the DNS TXT record once proof is accepted.
// *cloudflare.Provisioner satisfies this interface; tests stub it.
type RecordCreator interface {
	CreateTXTRecord(ctx context.Context, host, value string) (cloudflare.DNSRecord, error)
}

// MetricsRecordFunc is an optional callback for recording verification
// outcomes.
type MetricsRecordFunc func(result string)

// Sentinel errors for domain rejections. These are expected,
// user-actionable outcomes, distinct from transport failures.
var (
	ErrNotVerified   = errors.New("user is not verified")
	ErrNoChallenge   = errors.New("no verification challenge found; start verification first")
	ErrProofNotFound = errors.New("verification post not found; publish the verification code first")
)

// VerificationService ties the challenge store, the proof checker, and the
// DNS provisioner into the start → pending → consumed flow.
type VerificationService struct {
	store     *store.PendingStore
	checker   ProofChecker
	dns       RecordCreator
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a VerificationService.
func New(pending *store.PendingStore, checker ProofChecker, dns RecordCreator, logger *zap.Logger) *VerificationService {
	return &VerificationService{store: pending, checker: checker, dns: dns, logger: logger}
}

// SetMetricsRecord configures the outcome recording callback.
func (s *VerificationService) SetMetricsRecord(fn MetricsRecordFunc) {
	s.onMetrics = fn
}

// StartChallenge issues a fresh token for handle and returns it together
// with the instruction message the owner must follow. Re-issuing before
// the previous token is consumed silently invalidates the earlier one.
func (s *VerificationService) StartChallenge(handle string) (token, message string, err error) {
	if handle == "" {
		return "", "", fmt.Errorf("handle must not be empty")
	}
	token, err = challenge.New()
	if err != nil {
		return "", "", err
	}
	s.store.Put(handle, token)
	s.logger.Info("verification challenge started",
		zap.String("handle", handle),
		zap.String("token", token),
	)
	return token, challenge.Instruction(token), nil
}

// CheckBadge returns the handle's current badge status. It is a read-only
// query and does not touch the pending store.
func (s *VerificationService) CheckBadge(ctx context.Context, handle string) bool {
	return s.checker.IsBadgeVerified(ctx, handle)
}

// CreateRecord runs the provisioning gate for handle, in order and
// short-circuiting on the first failure: badge status, pending token,
// post-history match, token consumption, DNS creation. The token is
// consumed before the DNS call; a provisioning failure afterwards does not
// restore it, so the caller must restart the challenge flow.
func (s *VerificationService) CreateRecord(ctx context.Context, handle, host, value string) (cloudflare.DNSRecord, error) {
	var zero cloudflare.DNSRecord

	if !s.checker.IsBadgeVerified(ctx, handle) {
		s.reject("not_verified", handle)
		return zero, ErrNotVerified
	}

	token, ok := s.store.Get(handle)
	if !ok {
		s.reject("no_challenge", handle)
		return zero, ErrNoChallenge
	}

	if !s.checker.HasPublishedToken(ctx, handle, token) {
		s.reject("proof_not_found", handle)
		return zero, ErrProofNotFound
	}

	// The validated token may have been replaced by a concurrent re-issue;
	// only the exact token we validated is consumed.
	if !s.store.Consume(handle, token) {
		s.reject("no_challenge", handle)
		return zero, ErrNoChallenge
	}

	record, err := s.dns.CreateTXTRecord(ctx, host, value)
	if err != nil {
		s.record("provision_error")
		return zero, fmt.Errorf("create TXT record: %w", err)
	}

	s.record("success")
	s.logger.Info("verification completed",
		zap.String("handle", handle),
		zap.String("record_name", record.Name),
	)
	return record, nil
}

// reject logs a domain rejection at info level; rejections are expected
// outcomes, never error events.
func (s *VerificationService) reject(result, handle string) {
	s.record(result)
	s.logger.Info("create record rejected",
		zap.String("handle", handle),
		zap.String("reason", result),
	)
}

func (s *VerificationService) record(result string) {
	if s.onMetrics != nil {
		s.onMetrics(result)
	}
}
