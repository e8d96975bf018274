package core

import (
	"context"
	"testing"

	"scancore/internal/infra/persistence/memory"
	"scancore/pkg/domain"
)

func rule(id int64, site, scanner domain.Scope[int64], scanTypeID int64) domain.ClassificationRule {
	return domain.ClassificationRule{
		Base:       domain.Base{ID: id},
		Site:       site,
		Scanner:    scanner,
		ScanTypeID: scanTypeID,
	}
}

func TestFindClassificationCandidatesSpecificFirst(t *testing.T) {
	cat := NewRuleCatalogue([]domain.ClassificationRule{
		rule(1, domain.Wildcard[int64](), domain.Wildcard[int64](), 10),
		rule(2, domain.Exact[int64](5), domain.Exact[int64](7), 20),
	}, nil)

	got := cat.FindClassificationCandidates(domain.QueryScope{SiteID: 5, ScannerID: 7})
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].ScanTypeID != 20 || got[1].ScanTypeID != 10 {
		t.Fatalf("site-specific rule must sort first, got order %d, %d", got[0].ScanTypeID, got[1].ScanTypeID)
	}
}

func TestFindClassificationCandidatesTieBreaks(t *testing.T) {
	cat := NewRuleCatalogue([]domain.ClassificationRule{
		rule(1, domain.Exact[int64](9), domain.Exact[int64](7), 91),
		rule(2, domain.Exact[int64](5), domain.Exact[int64](3), 53),
		rule(3, domain.Exact[int64](5), domain.Exact[int64](8), 58),
	}, nil)

	// All three bind concrete pairs; only matching ones survive, then
	// ascending site id and descending scanner id order the rest.
	got := cat.FindClassificationCandidates(domain.QueryScope{SiteID: 5, ScannerID: 3})
	if len(got) != 1 || got[0].ScanTypeID != 53 {
		t.Fatalf("expected only the (5,3) rule, got %+v", got)
	}
}

func TestFindClassificationCandidatesOrderStable(t *testing.T) {
	// Two identical bindings for the same context keep catalogue order;
	// the ambiguity is resolved by first-row-wins at classification time.
	cat := NewRuleCatalogue([]domain.ClassificationRule{
		rule(1, domain.Exact[int64](5), domain.Exact[int64](3), 111),
		rule(2, domain.Exact[int64](5), domain.Exact[int64](3), 222),
	}, nil)

	got := cat.FindClassificationCandidates(domain.QueryScope{SiteID: 5, ScannerID: 3})
	if len(got) != 2 || got[0].ScanTypeID != 111 {
		t.Fatalf("equal bindings must keep catalogue order, got %+v", got)
	}
}

func TestFindClassificationCandidatesHalfBoundNeverMatch(t *testing.T) {
	cat := NewRuleCatalogue([]domain.ClassificationRule{
		rule(1, domain.Exact[int64](5), domain.Wildcard[int64](), 1),
		rule(2, domain.Wildcard[int64](), domain.Exact[int64](3), 2),
	}, nil)

	if got := cat.FindClassificationCandidates(domain.QueryScope{SiteID: 5, ScannerID: 3}); len(got) != 0 {
		t.Fatalf("half-bound rules must never match, got %+v", got)
	}
}

func TestFindChecksFiltersScanTypeAndScope(t *testing.T) {
	visit := "V1"
	checks := []domain.ValidationCheck{
		{Base: domain.Base{ID: 1}, ScanTypeID: 10, HeaderField: "echo_time"},
		{Base: domain.Base{ID: 2}, ScanTypeID: 20, HeaderField: "echo_time"},
		{Base: domain.Base{ID: 3}, ScanTypeID: 10, HeaderField: "repetition_time",
			Scope: domain.ScopeKey{Visit: domain.Exact("V2")}},
	}
	cat := NewRuleCatalogue(nil, checks)

	got := cat.FindChecks(10, domain.QueryScope{Visit: visit})
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("expected only check 1, got %+v", got)
	}
}

func TestLoadCatalogue(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateClassificationRule(rule(0, domain.Wildcard[int64](), domain.Wildcard[int64](), 10)); err != nil {
			return err
		}
		_, err := tx.CreateValidationCheck(domain.ValidationCheck{ScanTypeID: 10, HeaderField: "echo_time", ValidRegex: "^1"})
		return err
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}

	cat, err := LoadCatalogue(ctx, store)
	if err != nil {
		t.Fatalf("load catalogue: %v", err)
	}
	if len(cat.FindClassificationCandidates(domain.QueryScope{})) != 1 {
		t.Fatalf("expected one rule in catalogue")
	}
	if len(cat.FindChecks(10, domain.QueryScope{})) != 1 {
		t.Fatalf("expected one check in catalogue")
	}
}
