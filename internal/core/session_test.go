package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"scancore/internal/infra/persistence/memory"
	"scancore/pkg/domain"
)

func candidateIdentity(t *testing.T, pscID string, candID int64, visit string) domain.SubjectIdentity {
	t.Helper()
	identity, err := domain.NewCandidateIdentity(pscID, candID, visit)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	return identity
}

func TestResolveSessionFindsExisting(t *testing.T) {
	store := memory.NewStore()
	seedCandidate(t, store, domain.Candidate{CandID: 400166, PSCID: "OTT166", SiteID: 3})
	svc := NewService(store)
	ctx := context.Background()
	identity := candidateIdentity(t, "OTT166", 400166, "V2")

	first, err := svc.ResolveSession(ctx, identity, SessionConfig{CreateVisit: true, ProjectID: 7, CohortID: 9})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.VisitNumber != 1 || first.CurrentStage != domain.StageNotStarted {
		t.Fatalf("unexpected new session: %+v", first)
	}
	if !first.ScanDone || first.Submitted {
		t.Fatalf("new session must have ScanDone=true Submitted=false, got %+v", first)
	}
	if first.SiteID != 3 || first.ProjectID != 7 || first.CohortID != 9 {
		t.Fatalf("session must inherit candidate site and config project/cohort: %+v", first)
	}

	// Second resolve is idempotent even with creation disabled.
	second, err := svc.ResolveSession(ctx, identity, SessionConfig{})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing session %d, got %d", first.ID, second.ID)
	}
}

func TestResolveSessionLookupCaseInsensitive(t *testing.T) {
	store := memory.NewStore()
	seedCandidate(t, store, domain.Candidate{CandID: 400166, PSCID: "OTT166", SiteID: 3})
	svc := NewService(store)
	ctx := context.Background()

	created, err := svc.ResolveSession(ctx, candidateIdentity(t, "OTT166", 400166, "V2"), SessionConfig{CreateVisit: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	found, err := svc.ResolveSession(ctx, candidateIdentity(t, "OTT166", 400166, "v2"), SessionConfig{})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("visit lookup must be case-insensitive")
	}
	if found.VisitLabel != "V2" {
		t.Fatalf("stored label must keep its original case, got %q", found.VisitLabel)
	}
}

func TestResolveSessionNoCreate(t *testing.T) {
	store := memory.NewStore()
	seedCandidate(t, store, domain.Candidate{CandID: 400166, PSCID: "OTT166", SiteID: 3})
	svc := NewService(store)

	_, err := svc.ResolveSession(context.Background(), candidateIdentity(t, "OTT166", 400166, "V1"), SessionConfig{})
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) || nf.Entity != domain.EntitySession {
		t.Fatalf("expected session not-found, got %v", err)
	}
}

func TestResolveSessionUnknownCandidate(t *testing.T) {
	svc := NewService(memory.NewStore())

	_, err := svc.ResolveSession(context.Background(), candidateIdentity(t, "OTT166", 400166, "V1"), SessionConfig{CreateVisit: true})
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) || nf.Entity != domain.EntityCandidate {
		t.Fatalf("expected candidate not-found, got %v", err)
	}
}

func TestResolveSessionVisitNumbers(t *testing.T) {
	store := memory.NewStore()
	seedCandidate(t, store, domain.Candidate{CandID: 400166, PSCID: "OTT166", SiteID: 3})
	svc := NewService(store)
	ctx := context.Background()

	v1, err := svc.ResolveSession(ctx, candidateIdentity(t, "OTT166", 400166, "V1"), SessionConfig{CreateVisit: true})
	if err != nil {
		t.Fatalf("V1: %v", err)
	}
	v2, err := svc.ResolveSession(ctx, candidateIdentity(t, "OTT166", 400166, "V2"), SessionConfig{CreateVisit: true})
	if err != nil {
		t.Fatalf("V2: %v", err)
	}
	if v1.VisitNumber != 1 || v2.VisitNumber != 2 {
		t.Fatalf("visit numbers must increment per candidate, got %d then %d", v1.VisitNumber, v2.VisitNumber)
	}
}

func TestResolveSessionDistinctPerCandidate(t *testing.T) {
	store := memory.NewStore()
	seedCandidate(t, store, domain.Candidate{CandID: 400166, PSCID: "OTT166", SiteID: 3})
	seedCandidate(t, store, domain.Candidate{CandID: 400167, PSCID: "OTT167", SiteID: 3})
	svc := NewService(store)
	ctx := context.Background()

	first, err := svc.ResolveSession(ctx, candidateIdentity(t, "OTT166", 400166, "V2"), SessionConfig{CreateVisit: true})
	if err != nil {
		t.Fatalf("first candidate: %v", err)
	}
	second, err := svc.ResolveSession(ctx, candidateIdentity(t, "OTT167", 400167, "V2"), SessionConfig{CreateVisit: true})
	if err != nil {
		t.Fatalf("second candidate: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("same visit label for different candidates must not share a session, both got %d", first.ID)
	}
	if second.CandID != 400167 || second.VisitLabel != "V2" {
		t.Fatalf("unexpected second session: %+v", second)
	}
}

func TestResolveSessionPhantomVisitNumberAlwaysOne(t *testing.T) {
	store := memory.NewStore()
	seedCandidate(t, store, domain.Candidate{CandID: 900001, PSCID: "scanner-900001", SiteID: 2})
	svc := NewService(store)
	ctx := context.Background()

	for i, visit := range []string{"phantom_a", "phantom_b"} {
		identity, err := domain.NewPhantomIdentity(900001, visit)
		if err != nil {
			t.Fatalf("identity: %v", err)
		}
		sess, err := svc.ResolveSession(ctx, identity, SessionConfig{CreateVisit: true})
		if err != nil {
			t.Fatalf("visit %d: %v", i, err)
		}
		if sess.VisitNumber != 1 {
			t.Fatalf("phantom sessions always carry visit number 1, got %d", sess.VisitNumber)
		}
	}
}

// raceStore simulates losing the session insert race: the first
// transaction is hijacked to create the competing session and then
// reports the duplicate to the caller.
type raceStore struct {
	*memory.Store
	mu    sync.Mutex
	raced bool
	rival domain.Session
}

func (r *raceStore) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	r.mu.Lock()
	first := !r.raced
	r.raced = true
	r.mu.Unlock()
	if !first {
		return r.Store.RunInTransaction(ctx, fn)
	}
	err := r.Store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		created, err := tx.CreateSession(r.rival)
		if err != nil {
			return err
		}
		r.rival = created
		return nil
	})
	if err != nil {
		return err
	}
	return domain.ErrDuplicateSession{CandID: r.rival.CandID, VisitLabel: r.rival.VisitLabel}
}

func TestResolveSessionRetriesAfterLostRace(t *testing.T) {
	mem := memory.NewStore()
	seedCandidate(t, mem, domain.Candidate{CandID: 400166, PSCID: "OTT166", SiteID: 3})
	store := &raceStore{
		Store: mem,
		rival: domain.Session{
			CandID:       400166,
			SiteID:       3,
			VisitLabel:   "V1",
			VisitNumber:  1,
			CurrentStage: domain.StageNotStarted,
			ScanDone:     true,
			Active:       true,
		},
	}
	svc := NewService(store)

	sess, err := svc.ResolveSession(context.Background(), candidateIdentity(t, "OTT166", 400166, "V1"), SessionConfig{CreateVisit: true})
	if err != nil {
		t.Fatalf("resolve after race: %v", err)
	}
	if sess.ID != store.rival.ID {
		t.Fatalf("loser must adopt the winner's session, got %d want %d", sess.ID, store.rival.ID)
	}
}

// dupStore always reports a duplicate without ever materializing the
// winning session, exhausting the retry budget.
type dupStore struct {
	*memory.Store
}

func (d *dupStore) RunInTransaction(context.Context, func(domain.Transaction) error) error {
	return domain.ErrDuplicateSession{CandID: 400166, VisitLabel: "V1"}
}

func TestResolveSessionRetryBudgetExhausted(t *testing.T) {
	mem := memory.NewStore()
	seedCandidate(t, mem, domain.Candidate{CandID: 400166, PSCID: "OTT166", SiteID: 3})
	svc := NewService(&dupStore{Store: mem}, WithSessionRetries(2))

	_, err := svc.ResolveSession(context.Background(), candidateIdentity(t, "OTT166", 400166, "V1"), SessionConfig{CreateVisit: true})
	if err == nil || !strings.Contains(err.Error(), "did not settle") {
		t.Fatalf("expected settle failure, got %v", err)
	}
}
