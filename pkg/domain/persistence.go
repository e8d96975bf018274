package domain

import (
	"context"
	"fmt"
)

// Transaction exposes the domain operations that a persistence
// implementation must support within an atomic scope. Creates return the
// stored record with its generated id.
type Transaction interface {
	Snapshot() TransactionView
	CreateCandidate(Candidate) (Candidate, error)
	CreateScanner(Scanner) (Scanner, error)
	CreateScanType(ScanType) (ScanType, error)
	CreateArchive(Archive) (Archive, error)
	CreateSession(Session) (Session, error)
	CreateClassificationRule(ClassificationRule) (ClassificationRule, error)
	CreateValidationCheck(ValidationCheck) (ValidationCheck, error)
	CreateCheckViolation(CheckViolation) (CheckViolation, error)
	CreateProtocolViolation(ProtocolViolation) (ProtocolViolation, error)
}

// TransactionView provides read-only access to snapshot data for the
// catalogue, the subject parser and the session resolver.
type TransactionView interface {
	FindCandidate(candID int64) (Candidate, bool)
	FindScanner(id int64) (Scanner, bool)
	FindScanType(id int64) (ScanType, bool)
	FindScanTypeByName(name string) (ScanType, bool)
	FindActiveSession(candID int64, visitLabel string) (Session, bool)
	ListSessionsByCandidate(candID int64) []Session
	ListClassificationRules() []ClassificationRule
	ListValidationChecks() []ValidationCheck
	ListCheckViolations() []CheckViolation
	ListProtocolViolations() []ProtocolViolation
}

// PersistentStore is a minimal abstraction over durable backends. It
// mirrors the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
}

// ErrNotFound is returned when a keyed lookup finds no record and the
// caller is not permitted to create one.
type ErrNotFound struct {
	Entity EntityType
	Key    string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// ErrDuplicateSession is returned when a session insert collides with the
// unique (cand id, visit label) constraint. The loser of a concurrent
// find-or-create race receives this and retries the lookup.
type ErrDuplicateSession struct {
	CandID     int64
	VisitLabel string
}

func (e ErrDuplicateSession) Error() string {
	return fmt.Sprintf("session for candidate %d visit %s already exists", e.CandID, e.VisitLabel)
}
