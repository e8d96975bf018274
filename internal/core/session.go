package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"scancore/pkg/domain"
)

// SessionConfig carries the visit creation policy the resolver consumes
// but does not own: whether automatic creation is permitted and, if so,
// the project and cohort a new session is filed under.
type SessionConfig struct {
	CreateVisit bool
	ProjectID   int64
	CohortID    int64
}

// ResolveSession finds the active session for the subject's candidate and
// visit label, creating it when permitted. Lookup is case-insensitive and
// idempotent. A session insert losing the unique (cand id, visit label)
// race retries the lookup a bounded number of times rather than failing.
func (s *Service) ResolveSession(ctx context.Context, identity domain.SubjectIdentity, cfg SessionConfig) (domain.Session, error) {
	ctx, span := s.tracer.Start(ctx, "resolve_session")
	start := s.clock.Now()
	session, err := s.resolveSession(ctx, identity, cfg)
	s.observe(ctx, "resolve_session", err == nil, start)
	span.End(err)
	return session, err
}

func (s *Service) resolveSession(ctx context.Context, identity domain.SubjectIdentity, cfg SessionConfig) (domain.Session, error) {
	candID := identity.CandID()
	visit := identity.VisitLabel()

	for attempt := 0; attempt < s.sessionRetries; attempt++ {
		var existing domain.Session
		var found bool
		err := s.store.View(ctx, func(view domain.TransactionView) error {
			existing, found = view.FindActiveSession(candID, visit)
			return nil
		})
		if err != nil {
			return domain.Session{}, err
		}
		if found {
			return existing, nil
		}

		if !cfg.CreateVisit {
			return domain.Session{}, domain.ErrNotFound{
				Entity: domain.EntitySession,
				Key:    fmt.Sprintf("%d/%s", candID, visit),
			}
		}

		created, err := s.createSession(ctx, identity, cfg)
		if err == nil {
			s.log.Info("created session", "cand_id", candID, "visit", visit, "visit_number", created.VisitNumber)
			return created, nil
		}
		var dup domain.ErrDuplicateSession
		if errors.As(err, &dup) {
			// lost the race; the winner's session shows up on the next lookup
			continue
		}
		return domain.Session{}, err
	}
	return domain.Session{}, fmt.Errorf("session find-or-create for candidate %d visit %s did not settle", candID, visit)
}

func (s *Service) createSession(ctx context.Context, identity domain.SubjectIdentity, cfg SessionConfig) (domain.Session, error) {
	var created domain.Session
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		view := tx.Snapshot()

		candidate, ok := view.FindCandidate(identity.CandID())
		if !ok {
			return domain.ErrNotFound{
				Entity: domain.EntityCandidate,
				Key:    strconv.FormatInt(identity.CandID(), 10),
			}
		}

		visitNumber := 1
		if !identity.IsPhantom() {
			for _, sess := range view.ListSessionsByCandidate(identity.CandID()) {
				if sess.VisitNumber >= visitNumber {
					visitNumber = sess.VisitNumber + 1
				}
			}
		}

		var err error
		created, err = tx.CreateSession(domain.Session{
			CandID:       identity.CandID(),
			SiteID:       candidate.SiteID,
			VisitLabel:   identity.VisitLabel(),
			VisitNumber:  visitNumber,
			ProjectID:    cfg.ProjectID,
			CohortID:     cfg.CohortID,
			CurrentStage: domain.StageNotStarted,
			Submitted:    false,
			ScanDone:     true,
			Active:       true,
		})
		return err
	})
	if err != nil {
		return domain.Session{}, err
	}
	return created, nil
}
