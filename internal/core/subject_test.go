package core

import (
	"context"
	"errors"
	"testing"

	"scancore/internal/infra/persistence/memory"
	"scancore/pkg/domain"
)

func seedScanner(t *testing.T, store *memory.Store, scanner domain.Scanner) domain.Scanner {
	t.Helper()
	var created domain.Scanner
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateScanner(scanner)
		return err
	})
	if err != nil {
		t.Fatalf("seed scanner: %v", err)
	}
	return created
}

func seedCandidate(t *testing.T, store *memory.Store, cand domain.Candidate) domain.Candidate {
	t.Helper()
	var created domain.Candidate
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateCandidate(cand)
		return err
	})
	if err != nil {
		t.Fatalf("seed candidate: %v", err)
	}
	return created
}

func TestResolveSubjectCandidate(t *testing.T) {
	svc := NewService(memory.NewStore())

	identity, err := svc.ResolveSubject(context.Background(), "OTT166_400166_V2", 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if identity.Kind() != domain.IdentityCandidate {
		t.Fatalf("expected candidate identity, got %s", identity.Kind())
	}
	if identity.PSCID() != "OTT166" || identity.CandID() != 400166 || identity.VisitLabel() != "V2" {
		t.Fatalf("unexpected identity: %s", identity)
	}
}

func TestResolveSubjectPhantomPrecedence(t *testing.T) {
	store := memory.NewStore()
	seedCandidate(t, store, domain.Candidate{CandID: 900001, PSCID: "scanner-900001", SiteID: 2})
	scanner := seedScanner(t, store, domain.Scanner{Manufacturer: "Siemens", SiteID: 2, CandID: 900001})
	svc := NewService(store)

	// Matches the candidate label pattern too; the phantom marker wins.
	identity, err := svc.ResolveSubject(context.Background(), "test_123_V1", scanner.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !identity.IsPhantom() {
		t.Fatalf("expected phantom identity for %q", "test_123_V1")
	}
	if identity.CandID() != 900001 {
		t.Fatalf("phantom must resolve to the scanner's pseudo-candidate, got %d", identity.CandID())
	}
	if identity.VisitLabel() != "test_123_V1" {
		t.Fatalf("phantom visit label is the raw label, got %q", identity.VisitLabel())
	}
}

func TestResolveSubjectPhantomScannerMissing(t *testing.T) {
	svc := NewService(memory.NewStore())

	_, err := svc.ResolveSubject(context.Background(), "phantom_qc", 42)
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if nf.Entity != domain.EntityScanner {
		t.Fatalf("expected scanner not-found, got %s", nf.Entity)
	}
}

func TestResolveSubjectPhantomScannerWithoutPseudoCandidate(t *testing.T) {
	store := memory.NewStore()
	scanner := seedScanner(t, store, domain.Scanner{Manufacturer: "GE", SiteID: 1})
	svc := NewService(store)

	if _, err := svc.ResolveSubject(context.Background(), "PHAntom", scanner.ID); err == nil {
		t.Fatalf("scanner without a pseudo-candidate must not resolve")
	}
}

func TestResolveSubjectMalformedLabel(t *testing.T) {
	svc := NewService(memory.NewStore())

	_, err := svc.ResolveSubject(context.Background(), "no-underscores-here", 0)
	var fe domain.SubjectFormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected SubjectFormatError, got %v", err)
	}
}
