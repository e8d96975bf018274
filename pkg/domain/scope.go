package domain

import (
	"encoding/json"
	"fmt"
)

// Scope models a single rule dimension that either pins to one concrete
// value or matches anything. Modelling the wildcard explicitly keeps the
// matching logic in one place instead of scattering null checks through
// comparison code.
type Scope[T comparable] struct {
	value    T
	concrete bool
}

// Wildcard returns a scope dimension that matches any query value.
func Wildcard[T comparable]() Scope[T] {
	return Scope[T]{}
}

// Exact returns a scope dimension that matches only the given value.
func Exact[T comparable](value T) Scope[T] {
	return Scope[T]{value: value, concrete: true}
}

// IsWildcard reports whether the dimension matches any value.
func (s Scope[T]) IsWildcard() bool {
	return !s.concrete
}

// Value returns the pinned value and whether one is set.
func (s Scope[T]) Value() (T, bool) {
	return s.value, s.concrete
}

// Matches reports whether the dimension accepts the query value. present
// indicates whether the query supplied a value for this dimension at all;
// a concrete scope never matches an absent query value.
func (s Scope[T]) Matches(query T, present bool) bool {
	if !s.concrete {
		return true
	}
	return present && s.value == query
}

func (s Scope[T]) String() string {
	if !s.concrete {
		return "*"
	}
	return fmt.Sprintf("%v", s.value)
}

// MarshalJSON encodes a wildcard as null and a concrete value as itself,
// mirroring the nullable-column representation used by the relational
// snapshots.
func (s Scope[T]) MarshalJSON() ([]byte, error) {
	if !s.concrete {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}

// UnmarshalJSON hydrates null as wildcard and any other value as concrete.
func (s *Scope[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Scope[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Scope[T]{value: v, concrete: true}
	return nil
}

// ScopeKey groups the project, cohort and visit dimensions shared by
// classification rules and validation checks.
type ScopeKey struct {
	Project Scope[int64]  `json:"project_id"`
	Cohort  Scope[int64]  `json:"cohort_id"`
	Visit   Scope[string] `json:"visit_label"`
}

// QueryScope carries the concrete study context a series is matched
// against. Project and Cohort are optional; an absent value only
// satisfies wildcard rule dimensions.
type QueryScope struct {
	SiteID    int64
	ScannerID int64
	ProjectID *int64
	CohortID  *int64
	Visit     string
}

// Matches reports whether every dimension of the key accepts the query.
func (k ScopeKey) Matches(q QueryScope) bool {
	if !k.Project.Matches(derefInt64(q.ProjectID)) {
		return false
	}
	if !k.Cohort.Matches(derefInt64(q.CohortID)) {
		return false
	}
	if !k.Visit.Matches(q.Visit, q.Visit != "") {
		return false
	}
	return true
}

func derefInt64(p *int64) (int64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}
