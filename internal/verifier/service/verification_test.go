package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudflare/cloudflare-go"
	"go.uber.org/zap"

	dnsprov "github.com/bluecheck-id/bluecheck/internal/cloudflare"
	"github.com/bluecheck-id/bluecheck/internal/verifier/service"
	"github.com/bluecheck-id/bluecheck/internal/verifier/store"
)

// ── Stubs for the external collaborators ───────────────────────────────────

type stubChecker struct {
	badge     bool
	published map[string]bool // token → appears in recent posts
}

func (s *stubChecker) IsBadgeVerified(_ context.Context, _ string) bool { return s.badge }

func (s *stubChecker) HasPublishedToken(_ context.Context, _ string, token string) bool {
	return s.published[token]
}

type creatorCall struct {
	host  string
	value string
}

type stubCreator struct {
	mu    sync.Mutex
	calls []creatorCall
	err   error
}

func (s *stubCreator) CreateTXTRecord(_ context.Context, host, value string) (cloudflare.DNSRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, creatorCall{host: host, value: value})
	if s.err != nil {
		return cloudflare.DNSRecord{}, s.err
	}
	return cloudflare.DNSRecord{
		ID:      "rec-1",
		Type:    "TXT",
		Name:    dnsprov.RecordName(host, "bluecheck.id"),
		Content: `"` + value + `"`,
	}, nil
}

func newSvc(pending *store.PendingStore, checker *stubChecker, creator *stubCreator) *service.VerificationService {
	return service.New(pending, checker, creator, zap.NewNop())
}

// ── Tests ──────────────────────────────────────────────────────────────────

func TestStartChallenge_issuesPendingToken(t *testing.T) {
	pending := store.New()
	svc := newSvc(pending, &stubChecker{}, &stubCreator{})

	token, message, err := svc.StartChallenge("alice")
	if err != nil {
		t.Fatalf("StartChallenge: %v", err)
	}
	if !strings.HasPrefix(token, "bluecheck-") {
		t.Errorf("token %q missing prefix", token)
	}
	if !strings.Contains(message, token) {
		t.Errorf("message %q does not embed token %q", message, token)
	}
	stored, ok := pending.Get("alice")
	if !ok || stored != token {
		t.Errorf("pending entry: got (%q, %v), want %q", stored, ok, token)
	}
}

func TestStartChallenge_emptyHandle(t *testing.T) {
	svc := newSvc(store.New(), &stubChecker{}, &stubCreator{})
	if _, _, err := svc.StartChallenge(""); err == nil {
		t.Error("expected error for empty handle")
	}
}

func TestCreateRecord_success(t *testing.T) {
	pending := store.New()
	checker := &stubChecker{badge: true, published: map[string]bool{}}
	creator := &stubCreator{}
	svc := newSvc(pending, checker, creator)

	token, _, _ := svc.StartChallenge("alice")
	checker.published[token] = true

	record, err := svc.CreateRecord(context.Background(), "alice", "example.com", "abc123")
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if record.Name != "_atproto.example.com.bluecheck.id" {
		t.Errorf("record name: got %q", record.Name)
	}
	if len(creator.calls) != 1 {
		t.Fatalf("provisioner calls: got %d, want 1", len(creator.calls))
	}
	if creator.calls[0] != (creatorCall{host: "example.com", value: "abc123"}) {
		t.Errorf("provisioner call: got %+v", creator.calls[0])
	}
	if _, ok := pending.Get("alice"); ok {
		t.Error("pending entry must be consumed on success")
	}
}

func TestCreateRecord_badgeMissing_shortCircuits(t *testing.T) {
	pending := store.New()
	checker := &stubChecker{badge: false, published: map[string]bool{}}
	creator := &stubCreator{}
	svc := newSvc(pending, checker, creator)

	token, _, _ := svc.StartChallenge("alice")
	checker.published[token] = true // valid proof exists, badge check still wins

	_, err := svc.CreateRecord(context.Background(), "alice", "example.com", "abc123")
	if !errors.Is(err, service.ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified, got %v", err)
	}
	if _, ok := pending.Get("alice"); !ok {
		t.Error("pending entry must survive a badge rejection")
	}
	if len(creator.calls) != 0 {
		t.Error("provisioner must not be called")
	}
}

func TestCreateRecord_noChallenge(t *testing.T) {
	checker := &stubChecker{badge: true, published: map[string]bool{"bluecheck-ffffffff": true}}
	creator := &stubCreator{}
	svc := newSvc(store.New(), checker, creator)

	_, err := svc.CreateRecord(context.Background(), "alice", "example.com", "abc123")
	if !errors.Is(err, service.ErrNoChallenge) {
		t.Fatalf("expected ErrNoChallenge, got %v", err)
	}
	if len(creator.calls) != 0 {
		t.Error("provisioner must not be called")
	}
}

func TestCreateRecord_proofNotFound_keepsToken(t *testing.T) {
	pending := store.New()
	checker := &stubChecker{badge: true, published: map[string]bool{}}
	creator := &stubCreator{}
	svc := newSvc(pending, checker, creator)

	token, _, _ := svc.StartChallenge("alice")

	_, err := svc.CreateRecord(context.Background(), "alice", "example.com", "abc123")
	if !errors.Is(err, service.ErrProofNotFound) {
		t.Fatalf("expected ErrProofNotFound, got %v", err)
	}
	stored, ok := pending.Get("alice")
	if !ok || stored != token {
		t.Fatal("pending token must survive a failed proof check")
	}

	// Retry after publishing, without re-issuing the challenge.
	checker.published[token] = true
	if _, err := svc.CreateRecord(context.Background(), "alice", "example.com", "abc123"); err != nil {
		t.Fatalf("retry after publishing: %v", err)
	}
}

func TestCreateRecord_reissueInvalidatesEarlierToken(t *testing.T) {
	pending := store.New()
	checker := &stubChecker{badge: true, published: map[string]bool{}}
	creator := &stubCreator{}
	svc := newSvc(pending, checker, creator)

	first, _, _ := svc.StartChallenge("alice")
	checker.published[first] = true // owner published the first token
	second, _, _ := svc.StartChallenge("alice")

	// The pending entry now holds the second token, which was never posted.
	_, err := svc.CreateRecord(context.Background(), "alice", "example.com", "abc123")
	if !errors.Is(err, service.ErrProofNotFound) {
		t.Fatalf("expected ErrProofNotFound, got %v", err)
	}
	if stored, _ := pending.Get("alice"); stored != second {
		t.Errorf("pending entry: got %q, want %q", stored, second)
	}
}

func TestCreateRecord_provisionFailureConsumesToken(t *testing.T) {
	pending := store.New()
	checker := &stubChecker{badge: true, published: map[string]bool{}}
	creator := &stubCreator{err: errors.New("zone not found")}
	svc := newSvc(pending, checker, creator)

	token, _, _ := svc.StartChallenge("alice")
	checker.published[token] = true

	_, err := svc.CreateRecord(context.Background(), "alice", "example.com", "abc123")
	if err == nil {
		t.Fatal("expected provisioning error")
	}
	if errors.Is(err, service.ErrNotVerified) || errors.Is(err, service.ErrNoChallenge) || errors.Is(err, service.ErrProofNotFound) {
		t.Fatalf("provisioning failure must not map to a domain rejection: %v", err)
	}

	// The token was consumed before provisioning; the caller must restart.
	if _, ok := pending.Get("alice"); ok {
		t.Error("pending entry must not be restored after a provisioning failure")
	}
	_, err = svc.CreateRecord(context.Background(), "alice", "example.com", "abc123")
	if !errors.Is(err, service.ErrNoChallenge) {
		t.Errorf("replay after consumption: expected ErrNoChallenge, got %v", err)
	}
}

func TestCheckBadge_doesNotTouchStore(t *testing.T) {
	pending := store.New()
	svc := newSvc(pending, &stubChecker{badge: true}, &stubCreator{})

	token, _, _ := svc.StartChallenge("alice")

	if !svc.CheckBadge(context.Background(), "alice") {
		t.Error("expected badge check to pass through")
	}
	if stored, _ := pending.Get("alice"); stored != token {
		t.Error("badge check must leave the pending entry untouched")
	}
}
