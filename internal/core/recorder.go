package core

import (
	"context"

	"scancore/pkg/domain"
)

// recordFindings persists one classified-violation record per failing
// check. Violations are expected output of a QC run, not errors; the
// recorder only fails on store errors.
func (s *Service) recordFindings(ctx context.Context, archiveID int64, attrs domain.SeriesAttributes, scanTypeID int64, result domain.Result, checks []domain.ValidationCheck) error {
	if len(result.Findings) == 0 {
		return nil
	}
	scopeByCheck := make(map[int64]domain.ScopeKey, len(checks))
	for _, chk := range checks {
		scopeByCheck[chk.ID] = chk.Scope
	}
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, f := range result.Findings {
			_, err := tx.CreateCheckViolation(domain.CheckViolation{
				ArchiveID:     archiveID,
				Series:        attrs.Key(),
				ScanTypeID:    scanTypeID,
				CheckID:       f.CheckID,
				CheckScope:    scopeByCheck[f.CheckID],
				HeaderField:   f.HeaderField,
				ObservedValue: f.ObservedValue,
				Expected:      f.Expected,
				Severity:      f.Severity,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// recordUnclassified persists exactly one summary record for a series
// that matched no classification rule. No per-field check references
// exist since no scan type, and therefore no check list, applies.
func (s *Service) recordUnclassified(ctx context.Context, archiveID int64, attrs domain.SeriesAttributes) error {
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateProtocolViolation(domain.ProtocolViolation{
			ArchiveID:         archiveID,
			Series:            attrs.Key(),
			SeriesDescription: attrs.SeriesDescription,
			RepetitionTime:    attrs.RepetitionTime,
			EchoTime:          attrs.EchoTime,
			InversionTime:     attrs.InversionTime,
			SliceThickness:    attrs.SliceThickness,
			XSpace:            attrs.XSpace,
			YSpace:            attrs.YSpace,
			ZSpace:            attrs.ZSpace,
			XStep:             attrs.XStep,
			YStep:             attrs.YStep,
			ZStep:             attrs.ZStep,
			ImageType:         attrs.ImageType,
			PhaseEncoding:     attrs.PhaseEncoding,
		})
		return err
	})
}
