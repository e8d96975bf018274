package core

import (
	"context"
	"strconv"
	"strings"

	"scancore/pkg/domain"
)

// ResolveSubject parses the raw subject label of a study into a typed
// identity. Labels containing a phantom marker resolve against the
// scanner's registered pseudo-candidate; anything else must match the
// PSCID_CandID_VisitLabel pattern or fail with SubjectFormatError. The
// phantom test runs first and wins even when both formats could match.
func (s *Service) ResolveSubject(ctx context.Context, rawLabel string, scannerID int64) (domain.SubjectIdentity, error) {
	ctx, span := s.tracer.Start(ctx, "resolve_subject")
	start := s.clock.Now()
	identity, err := s.resolveSubject(ctx, rawLabel, scannerID)
	s.observe(ctx, "resolve_subject", err == nil, start)
	span.End(err)
	return identity, err
}

func (s *Service) resolveSubject(ctx context.Context, rawLabel string, scannerID int64) (domain.SubjectIdentity, error) {
	if domain.IsPhantomLabel(rawLabel) {
		var scanner domain.Scanner
		var found bool
		err := s.store.View(ctx, func(view domain.TransactionView) error {
			scanner, found = view.FindScanner(scannerID)
			return nil
		})
		if err != nil {
			return domain.SubjectIdentity{}, err
		}
		if !found || scanner.CandID == 0 {
			return domain.SubjectIdentity{}, domain.ErrNotFound{
				Entity: domain.EntityScanner,
				Key:    strconv.FormatInt(scannerID, 10),
			}
		}
		identity, err := domain.NewPhantomIdentity(scanner.CandID, strings.TrimSpace(rawLabel))
		if err != nil {
			return domain.SubjectIdentity{}, err
		}
		s.log.Debug("resolved phantom subject", "label", rawLabel, "scanner_id", scannerID, "cand_id", scanner.CandID)
		return identity, nil
	}

	pscID, candID, visitLabel, err := domain.ParseCandidateLabel(rawLabel)
	if err != nil {
		return domain.SubjectIdentity{}, err
	}
	identity, err := domain.NewCandidateIdentity(pscID, candID, visitLabel)
	if err != nil {
		return domain.SubjectIdentity{}, err
	}
	s.log.Debug("resolved candidate subject", "psc_id", pscID, "cand_id", candID, "visit", visitLabel)
	return identity, nil
}
