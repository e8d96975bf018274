package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// IdentityKind discriminates the subject identity union.
type IdentityKind string

// Subject identity variants.
const (
	// IdentityPhantom marks a non-human calibration scan bound to a scanner.
	IdentityPhantom IdentityKind = "phantom"
	// IdentityCandidate marks a real registered subject.
	IdentityCandidate IdentityKind = "candidate"
)

// SubjectIdentity is the parsed identity of a study subject: exactly one
// of phantom or candidate. Construct via NewPhantomIdentity or
// NewCandidateIdentity; values are immutable after creation.
type SubjectIdentity struct {
	kind IdentityKind

	// phantom variant
	scannerCandID int64

	// candidate variant
	pscID  string
	candID int64

	visitLabel string
}

// NewPhantomIdentity builds the phantom variant. scannerCandID is the
// pseudo-candidate registered for the scanner the phantom was acquired on.
func NewPhantomIdentity(scannerCandID int64, visitLabel string) (SubjectIdentity, error) {
	if visitLabel == "" {
		return SubjectIdentity{}, fmt.Errorf("phantom identity: empty visit label")
	}
	return SubjectIdentity{
		kind:          IdentityPhantom,
		scannerCandID: scannerCandID,
		visitLabel:    visitLabel,
	}, nil
}

// NewCandidateIdentity builds the candidate variant.
func NewCandidateIdentity(pscID string, candID int64, visitLabel string) (SubjectIdentity, error) {
	if visitLabel == "" {
		return SubjectIdentity{}, fmt.Errorf("candidate identity: empty visit label")
	}
	if candID <= 0 {
		return SubjectIdentity{}, fmt.Errorf("candidate identity: non-positive cand id %d", candID)
	}
	return SubjectIdentity{
		kind:       IdentityCandidate,
		pscID:      pscID,
		candID:     candID,
		visitLabel: visitLabel,
	}, nil
}

// Kind returns the active variant.
func (s SubjectIdentity) Kind() IdentityKind { return s.kind }

// IsPhantom reports whether the identity is the phantom variant.
func (s SubjectIdentity) IsPhantom() bool { return s.kind == IdentityPhantom }

// VisitLabel returns the visit label shared by both variants.
func (s SubjectIdentity) VisitLabel() string { return s.visitLabel }

// CandID returns the candidate id the identity resolves to: the scanner's
// pseudo-candidate for phantoms, the parsed CandID otherwise.
func (s SubjectIdentity) CandID() int64 {
	if s.kind == IdentityPhantom {
		return s.scannerCandID
	}
	return s.candID
}

// PSCID returns the site-assigned pseudonym; empty for phantoms.
func (s SubjectIdentity) PSCID() string { return s.pscID }

func (s SubjectIdentity) String() string {
	if s.kind == IdentityPhantom {
		return fmt.Sprintf("phantom(cand %d, visit %s)", s.scannerCandID, s.visitLabel)
	}
	return fmt.Sprintf("candidate(%s, %d, %s)", s.pscID, s.candID, s.visitLabel)
}

// SubjectFormatError reports a raw subject label matching neither the
// phantom markers nor the PSCID_CandID_VisitLabel pattern. The input is
// malformed; retrying cannot succeed.
type SubjectFormatError struct {
	Label string
}

func (e SubjectFormatError) Error() string {
	return fmt.Sprintf("subject label %q matches no known format", e.Label)
}

// candidateLabelPattern splits a label into exactly three underscore
// delimited groups: PSCID, CandID, VisitLabel.
var candidateLabelPattern = regexp.MustCompile(`^([^_]+)_(\d+)_([^_]+)$`)

// IsPhantomLabel reports whether the raw label names a phantom
// acquisition. The check is case-insensitive and takes precedence over
// the candidate pattern even when both could match.
func IsPhantomLabel(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.Contains(lower, "pha") || strings.Contains(lower, "test")
}

// ParseCandidateLabel applies the candidate pattern to a raw label.
func ParseCandidateLabel(raw string) (pscID string, candID int64, visitLabel string, err error) {
	m := candidateLabelPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", 0, "", SubjectFormatError{Label: raw}
	}
	candID, err = strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return "", 0, "", SubjectFormatError{Label: raw}
	}
	return m[1], candID, m[3], nil
}
