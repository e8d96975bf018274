package core

import (
	"context"
	"sort"

	"scancore/pkg/domain"
)

// RuleCatalogue is a read-only, per-run cached view of the scoped
// classification rules and validation checks. The catalogue is not
// expected to change mid-run, so it is loaded once and queried in memory.
type RuleCatalogue struct {
	rules  []domain.ClassificationRule
	checks []domain.ValidationCheck
}

// LoadCatalogue reads the full rule and check sets from the store.
func LoadCatalogue(ctx context.Context, store domain.PersistentStore) (*RuleCatalogue, error) {
	cat := &RuleCatalogue{}
	err := store.View(ctx, func(view domain.TransactionView) error {
		cat.rules = view.ListClassificationRules()
		cat.checks = view.ListValidationChecks()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// NewRuleCatalogue builds a catalogue from explicit rule and check sets,
// used by tests and by callers that source rules elsewhere.
func NewRuleCatalogue(rules []domain.ClassificationRule, checks []domain.ValidationCheck) *RuleCatalogue {
	return &RuleCatalogue{rules: rules, checks: checks}
}

// FindClassificationCandidates returns the rules applicable to the query
// context, most specific site/scanner binding first. Within the concrete
// group ties break by ascending site id then descending scanner id;
// remaining ties keep catalogue order.
func (c *RuleCatalogue) FindClassificationCandidates(q domain.QueryScope) []domain.ClassificationRule {
	var out []domain.ClassificationRule
	for _, r := range c.rules {
		if r.Matches(q) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SiteSpecific() != b.SiteSpecific() {
			return a.SiteSpecific()
		}
		if !a.SiteSpecific() {
			return false
		}
		aSite, _ := a.Site.Value()
		bSite, _ := b.Site.Value()
		if aSite != bSite {
			return aSite < bSite
		}
		aScanner, _ := a.Scanner.Value()
		bScanner, _ := b.Scanner.Value()
		if aScanner != bScanner {
			return aScanner > bScanner
		}
		return false
	})
	return out
}

// FindChecks returns all checks registered for the scan type whose scope
// accepts the query context. Checks are not mutually exclusive; a scan
// type may carry many checks across many header fields.
func (c *RuleCatalogue) FindChecks(scanTypeID int64, q domain.QueryScope) []domain.ValidationCheck {
	var out []domain.ValidationCheck
	for _, chk := range c.checks {
		if chk.ScanTypeID != scanTypeID {
			continue
		}
		if !chk.Scope.Matches(q) {
			continue
		}
		out = append(out, chk)
	}
	return out
}
