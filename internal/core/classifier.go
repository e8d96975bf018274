package core

import "scancore/pkg/domain"

// Classify picks the scan type for a series by taking the first rule the
// catalogue returns for the series' study context. An empty candidate
// list means the series is unclassified, which is a normal outcome, not
// an error. Ties within the same specificity level are not disambiguated
// further; the first returned row wins.
func (c *RuleCatalogue) Classify(attrs domain.SeriesAttributes) (int64, bool) {
	candidates := c.FindClassificationCandidates(attrs.Scope)
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[0].ScanTypeID, true
}
