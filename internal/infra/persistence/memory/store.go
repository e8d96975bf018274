// Package memory provides an in-memory implementation of the core
// persistence store used for tests and ephemeral environments. It is also
// the transactional engine the sqlite and postgres snapshot stores build
// on.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"scancore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain
// persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Candidate aliases domain.Candidate for in-memory persistence operations.
	Candidate = domain.Candidate
	// Scanner aliases domain.Scanner.
	Scanner = domain.Scanner
	// ScanType aliases domain.ScanType.
	ScanType = domain.ScanType
	// Archive aliases domain.Archive.
	Archive = domain.Archive
	// Session aliases domain.Session.
	Session = domain.Session
	// ClassificationRule aliases domain.ClassificationRule.
	ClassificationRule = domain.ClassificationRule
	// ValidationCheck aliases domain.ValidationCheck.
	ValidationCheck = domain.ValidationCheck
	// CheckViolation aliases domain.CheckViolation.
	CheckViolation = domain.CheckViolation
	// ProtocolViolation aliases domain.ProtocolViolation.
	ProtocolViolation = domain.ProtocolViolation
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases the domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	candidates         map[int64]Candidate
	scanners           map[int64]Scanner
	scanTypes          map[int64]ScanType
	archives           map[int64]Archive
	sessions           map[int64]Session
	rules              map[int64]ClassificationRule
	checks             map[int64]ValidationCheck
	checkViolations    map[int64]CheckViolation
	protocolViolations map[int64]ProtocolViolation
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Candidates         map[int64]Candidate         `json:"candidates"`
	Scanners           map[int64]Scanner           `json:"scanners"`
	ScanTypes          map[int64]ScanType          `json:"scan_types"`
	Archives           map[int64]Archive           `json:"archives"`
	Sessions           map[int64]Session           `json:"sessions"`
	Rules              map[int64]ClassificationRule `json:"classification_rules"`
	Checks             map[int64]ValidationCheck   `json:"validation_checks"`
	CheckViolations    map[int64]CheckViolation    `json:"check_violations"`
	ProtocolViolations map[int64]ProtocolViolation `json:"protocol_violations"`
	Sequence           int64                       `json:"sequence"`
}

func newMemoryState() memoryState {
	return memoryState{
		candidates:         make(map[int64]Candidate),
		scanners:           make(map[int64]Scanner),
		scanTypes:          make(map[int64]ScanType),
		archives:           make(map[int64]Archive),
		sessions:           make(map[int64]Session),
		rules:              make(map[int64]ClassificationRule),
		checks:             make(map[int64]ValidationCheck),
		checkViolations:    make(map[int64]CheckViolation),
		protocolViolations: make(map[int64]ProtocolViolation),
	}
}

func (s memoryState) clone() memoryState {
	out := newMemoryState()
	for k, v := range s.candidates {
		out.candidates[k] = v
	}
	for k, v := range s.scanners {
		out.scanners[k] = v
	}
	for k, v := range s.scanTypes {
		out.scanTypes[k] = v
	}
	for k, v := range s.archives {
		out.archives[k] = v
	}
	for k, v := range s.sessions {
		out.sessions[k] = v
	}
	for k, v := range s.rules {
		out.rules[k] = v
	}
	for k, v := range s.checks {
		out.checks[k] = cloneCheck(v)
	}
	for k, v := range s.checkViolations {
		out.checkViolations[k] = v
	}
	for k, v := range s.protocolViolations {
		out.protocolViolations[k] = v
	}
	return out
}

func cloneCheck(c ValidationCheck) ValidationCheck {
	if c.ValidMin != nil {
		v := *c.ValidMin
		c.ValidMin = &v
	}
	if c.ValidMax != nil {
		v := *c.ValidMax
		c.ValidMax = &v
	}
	return c
}

// Store is the in-memory persistent store. Transactions clone the state,
// apply mutations, and swap the clone in on commit; the store mutex makes
// each transaction atomic with respect to concurrent callers.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	seq   int64
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source, used by deterministic tests.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.nowFn = now
	}
}

type transaction struct {
	store *Store
	state memoryState
	seq   int64
	now   time.Time
}

// RunInTransaction applies fn against a cloned state and commits the clone
// when fn succeeds. An error from fn discards every change.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		seq:   s.seq,
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.state = tx.state
	s.seq = tx.seq
	return nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// ExportState returns a serializable snapshot of the full store state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := s.state.clone()
	return Snapshot{
		Candidates:         state.candidates,
		Scanners:           state.scanners,
		ScanTypes:          state.scanTypes,
		Archives:           state.archives,
		Sessions:           state.sessions,
		Rules:              state.rules,
		Checks:             state.checks,
		CheckViolations:    state.checkViolations,
		ProtocolViolations: state.protocolViolations,
		Sequence:           s.seq,
	}
}

// ImportState replaces the store state with the snapshot contents.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for k, v := range snapshot.Candidates {
		state.candidates[k] = v
	}
	for k, v := range snapshot.Scanners {
		state.scanners[k] = v
	}
	for k, v := range snapshot.ScanTypes {
		state.scanTypes[k] = v
	}
	for k, v := range snapshot.Archives {
		state.archives[k] = v
	}
	for k, v := range snapshot.Sessions {
		state.sessions[k] = v
	}
	for k, v := range snapshot.Rules {
		state.rules[k] = v
	}
	for k, v := range snapshot.Checks {
		state.checks[k] = cloneCheck(v)
	}
	for k, v := range snapshot.CheckViolations {
		state.checkViolations[k] = v
	}
	for k, v := range snapshot.ProtocolViolations {
		state.protocolViolations[k] = v
	}
	s.state = state
	if snapshot.Sequence > s.seq {
		s.seq = snapshot.Sequence
	}
}

func (tx *transaction) nextID() int64 {
	tx.seq++
	return tx.seq
}

func (tx *transaction) stamp(base *domain.Base) {
	base.ID = tx.nextID()
	base.CreatedAt = tx.now
	base.UpdatedAt = tx.now
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateCandidate stores a subject record keyed by CandID.
func (tx *transaction) CreateCandidate(c Candidate) (Candidate, error) {
	if c.CandID <= 0 {
		return Candidate{}, errInvalid("candidate cand_id must be positive")
	}
	if _, exists := tx.state.candidates[c.CandID]; exists {
		return Candidate{}, errInvalid("candidate " + strconv.FormatInt(c.CandID, 10) + " already registered")
	}
	tx.stamp(&c.Base)
	tx.state.candidates[c.CandID] = c
	return c, nil
}

// CreateScanner stores a scanner record.
func (tx *transaction) CreateScanner(sc Scanner) (Scanner, error) {
	tx.stamp(&sc.Base)
	tx.state.scanners[sc.ID] = sc
	return sc, nil
}

// CreateScanType stores a scan type label. Names are the stable handle
// catalogue files reference, so they must be unique.
func (tx *transaction) CreateScanType(st ScanType) (ScanType, error) {
	if st.Name == "" {
		return ScanType{}, errInvalid("scan type name required")
	}
	for _, existing := range tx.state.scanTypes {
		if existing.Name == st.Name {
			return ScanType{}, errInvalid("scan type " + strconv.Quote(st.Name) + " already exists")
		}
	}
	tx.stamp(&st.Base)
	tx.state.scanTypes[st.ID] = st
	return st, nil
}

// CreateArchive stores a study archive record.
func (tx *transaction) CreateArchive(a Archive) (Archive, error) {
	tx.stamp(&a.Base)
	tx.state.archives[a.ID] = a
	return a, nil
}

// CreateSession stores a session, enforcing the unique active
// (cand id, visit label) constraint with case-insensitive labels.
func (tx *transaction) CreateSession(sess Session) (Session, error) {
	for _, existing := range tx.state.sessions {
		if !existing.Active {
			continue
		}
		if existing.CandID == sess.CandID && strings.EqualFold(existing.VisitLabel, sess.VisitLabel) {
			return Session{}, domain.ErrDuplicateSession{CandID: sess.CandID, VisitLabel: sess.VisitLabel}
		}
	}
	tx.stamp(&sess.Base)
	tx.state.sessions[sess.ID] = sess
	return sess, nil
}

// CreateClassificationRule stores a scan type matching rule.
func (tx *transaction) CreateClassificationRule(r ClassificationRule) (ClassificationRule, error) {
	tx.stamp(&r.Base)
	tx.state.rules[r.ID] = r
	return r, nil
}

// CreateValidationCheck stores a QC check.
func (tx *transaction) CreateValidationCheck(c ValidationCheck) (ValidationCheck, error) {
	tx.stamp(&c.Base)
	tx.state.checks[c.ID] = cloneCheck(c)
	return c, nil
}

// CreateCheckViolation appends a classified-series violation record.
func (tx *transaction) CreateCheckViolation(v CheckViolation) (CheckViolation, error) {
	tx.stamp(&v.Base)
	tx.state.checkViolations[v.ID] = v
	return v, nil
}

// CreateProtocolViolation appends an unclassified-series violation record.
func (tx *transaction) CreateProtocolViolation(v ProtocolViolation) (ProtocolViolation, error) {
	tx.stamp(&v.Base)
	tx.state.protocolViolations[v.ID] = v
	return v, nil
}

type invalidError string

func errInvalid(msg string) error { return invalidError(msg) }

func (e invalidError) Error() string { return string(e) }

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) FindCandidate(candID int64) (Candidate, bool) {
	c, ok := v.state.candidates[candID]
	return c, ok
}

func (v transactionView) FindScanner(id int64) (Scanner, bool) {
	sc, ok := v.state.scanners[id]
	return sc, ok
}

func (v transactionView) FindScanType(id int64) (ScanType, bool) {
	st, ok := v.state.scanTypes[id]
	return st, ok
}

func (v transactionView) FindScanTypeByName(name string) (ScanType, bool) {
	for _, st := range v.state.scanTypes {
		if st.Name == name {
			return st, true
		}
	}
	return ScanType{}, false
}

func (v transactionView) FindActiveSession(candID int64, visitLabel string) (Session, bool) {
	for _, sess := range v.state.sessions {
		if !sess.Active {
			continue
		}
		if sess.CandID == candID && strings.EqualFold(sess.VisitLabel, visitLabel) {
			return sess, true
		}
	}
	return Session{}, false
}

func (v transactionView) ListSessionsByCandidate(candID int64) []Session {
	var out []Session
	for _, sess := range v.state.sessions {
		if sess.CandID == candID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) ListClassificationRules() []ClassificationRule {
	out := make([]ClassificationRule, 0, len(v.state.rules))
	for _, r := range v.state.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) ListValidationChecks() []ValidationCheck {
	out := make([]ValidationCheck, 0, len(v.state.checks))
	for _, c := range v.state.checks {
		out = append(out, cloneCheck(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) ListCheckViolations() []CheckViolation {
	out := make([]CheckViolation, 0, len(v.state.checkViolations))
	for _, cv := range v.state.checkViolations {
		out = append(out, cv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) ListProtocolViolations() []ProtocolViolation {
	out := make([]ProtocolViolation, 0, len(v.state.protocolViolations))
	for _, pv := range v.state.protocolViolations {
		out = append(out, pv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
