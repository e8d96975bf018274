// Package domain defines the core persistent entities, value types, and
// protocol rule primitives used by scancore.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in persistence buckets and errors.
const (
	// EntityCandidate identifies a registered subject record.
	EntityCandidate EntityType = "candidate"
	// EntityScanner identifies an MRI scanner record.
	EntityScanner EntityType = "scanner"
	// EntityScanType identifies a logical acquisition protocol label.
	EntityScanType EntityType = "scan_type"
	// EntitySession identifies an imaging session record.
	EntitySession EntityType = "session"
	// EntityArchive identifies an ingested study archive record.
	EntityArchive EntityType = "archive"
	// EntityClassificationRule identifies a scan type matching rule.
	EntityClassificationRule EntityType = "classification_rule"
	// EntityValidationCheck identifies a protocol QC check.
	EntityValidationCheck EntityType = "validation_check"
	// EntityCheckViolation identifies a classified-series violation record.
	EntityCheckViolation EntityType = "check_violation"
	// EntityProtocolViolation identifies an unclassified-series violation record.
	EntityProtocolViolation EntityType = "protocol_violation"
)

// Severity captures check outcomes.
type Severity string

// Check severities determine how a failing series is treated downstream.
const (
	// SeverityExclude marks the series as excluded from further automated processing.
	SeverityExclude Severity = "exclude"
	// SeverityWarning flags the series while keeping it usable.
	SeverityWarning Severity = "warning"
)

// StageNotStarted is the stage a freshly created session starts in.
const StageNotStarted = "Not Started"

// Base contains common fields for all domain records.
type Base struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Candidate represents a registered study subject. CandID is the numeric
// subject identifier unique across sites; PSCID is the human-readable
// site-assigned pseudonym. Phantom pseudo-candidates are registered the
// same way and referenced from their scanner.
type Candidate struct {
	Base
	CandID int64  `json:"cand_id"`
	PSCID  string `json:"psc_id"`
	SiteID int64  `json:"site_id"`
}

// Scanner captures MRI scanner metadata together with the pseudo-candidate
// registered for phantom acquisitions on that scanner.
type Scanner struct {
	Base
	Manufacturer    string `json:"manufacturer"`
	Model           string `json:"model"`
	SerialNumber    string `json:"serial_number"`
	SoftwareVersion string `json:"software_version"`
	SiteID          int64  `json:"site_id"`
	CandID          int64  `json:"cand_id"`
}

// ScanType is a logical acquisition protocol label (e.g. "t1w").
type ScanType struct {
	Base
	Name string `json:"name"`
}

// Session anchors the series of one study visit for one candidate.
// Sessions are created by the resolver when permitted and never deleted
// or re-staged by this subsystem.
type Session struct {
	Base
	CandID       int64  `json:"cand_id"`
	SiteID       int64  `json:"site_id"`
	VisitLabel   string `json:"visit_label"`
	VisitNumber  int    `json:"visit_number"`
	ProjectID    int64  `json:"project_id"`
	CohortID     int64  `json:"cohort_id"`
	CurrentStage string `json:"current_stage"`
	Submitted    bool   `json:"submitted"`
	ScanDone     bool   `json:"scan_done"`
	Active       bool   `json:"active"`
}

// Archive represents one ingested DICOM/BIDS study archive. SubjectLabel
// holds the raw label exactly as found in the study metadata.
type Archive struct {
	Base
	StudyUID     string `json:"study_uid"`
	SubjectLabel string `json:"subject_label"`
	SourcePath   string `json:"source_path"`
}

// ClassificationRule maps series attributes to a scan type within a
// site/scanner and project/cohort/visit scope. Site and Scanner are
// either both concrete or both wildcard; a partial combination is never
// selected by the catalogue.
type ClassificationRule struct {
	Base
	Site       Scope[int64] `json:"site_id"`
	Scanner    Scope[int64] `json:"scanner_id"`
	Scope      ScopeKey     `json:"scope"`
	ScanTypeID int64        `json:"scan_type_id"`
}

// SiteSpecific reports whether the rule pins a concrete (site, scanner)
// pair rather than applying site-agnostically.
func (r ClassificationRule) SiteSpecific() bool {
	return !r.Site.IsWildcard() && !r.Scanner.IsWildcard()
}

// Matches reports whether the rule applies to the given study context.
func (r ClassificationRule) Matches(q QueryScope) bool {
	switch {
	case r.Site.IsWildcard() && r.Scanner.IsWildcard():
		// site-agnostic
	case r.SiteSpecific():
		if !r.Site.Matches(q.SiteID, true) || !r.Scanner.Matches(q.ScannerID, true) {
			return false
		}
	default:
		// half-bound (site xor scanner) rules are garbage input, never selected
		return false
	}
	return r.Scope.Matches(q)
}

// ValidationCheck is one QC constraint registered for a scan type. A check
// with no min, max or regex set is vacuous and never fails.
type ValidationCheck struct {
	Base
	ScanTypeID  int64    `json:"scan_type_id"`
	Scope       ScopeKey `json:"scope"`
	Severity    Severity `json:"severity"`
	HeaderField string   `json:"header_field"`
	ValidMin    *float64 `json:"valid_min"`
	ValidMax    *float64 `json:"valid_max"`
	ValidRegex  string   `json:"valid_regex"`
}

// Vacuous reports whether the check carries no constraint at all.
func (c ValidationCheck) Vacuous() bool {
	return c.ValidMin == nil && c.ValidMax == nil && c.ValidRegex == ""
}

// Expected renders the configured constraint for violation records.
func (c ValidationCheck) Expected() string {
	parts := make([]string, 0, 2)
	if c.ValidMin != nil || c.ValidMax != nil {
		lo, hi := "-inf", "+inf"
		if c.ValidMin != nil {
			lo = fmt.Sprintf("%g", *c.ValidMin)
		}
		if c.ValidMax != nil {
			hi = fmt.Sprintf("%g", *c.ValidMax)
		}
		parts = append(parts, fmt.Sprintf("[%s, %s]", lo, hi))
	}
	if c.ValidRegex != "" {
		parts = append(parts, "~ "+c.ValidRegex)
	}
	return strings.Join(parts, " ")
}

// Finding reports one failed validation check for a classified series.
type Finding struct {
	CheckID       int64    `json:"check_id"`
	HeaderField   string   `json:"header_field"`
	ObservedValue string   `json:"observed_value"`
	Expected      string   `json:"expected"`
	Severity      Severity `json:"severity"`
	Message       string   `json:"message"`
}

// Result aggregates the findings of one series validation.
type Result struct {
	Findings []Finding
}

// Merge appends findings from another result.
func (r *Result) Merge(other Result) {
	if len(other.Findings) == 0 {
		return
	}
	r.Findings = append(r.Findings, other.Findings...)
}

// HasExcluding returns true if any finding carries exclude severity.
func (r Result) HasExcluding() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityExclude {
			return true
		}
	}
	return false
}

// SeriesKey identifies the originating series on violation records.
type SeriesKey struct {
	SeriesUID     string `json:"series_uid"`
	EchoTime      string `json:"echo_time"`
	EchoNumber    string `json:"echo_number"`
	PhaseEncoding string `json:"phase_encoding"`
}

// CheckViolation records one failed check of a classified series.
// Violation records are append-only and never updated.
type CheckViolation struct {
	Base
	ArchiveID     int64     `json:"archive_id"`
	Series        SeriesKey `json:"series"`
	ScanTypeID    int64     `json:"scan_type_id"`
	CheckID       int64     `json:"check_id"`
	CheckScope    ScopeKey  `json:"check_scope"`
	HeaderField   string    `json:"header_field"`
	ObservedValue string    `json:"observed_value"`
	Expected      string    `json:"expected"`
	Severity      Severity  `json:"severity"`
}

// ProtocolViolation summarizes a series that matched no classification
// rule. It stores the raw observed attribute set since no scan type, and
// therefore no check list, exists for it.
type ProtocolViolation struct {
	Base
	ArchiveID         int64     `json:"archive_id"`
	Series            SeriesKey `json:"series"`
	SeriesDescription string    `json:"series_description"`
	RepetitionTime    string    `json:"repetition_time"`
	EchoTime          string    `json:"echo_time"`
	InversionTime     string    `json:"inversion_time"`
	SliceThickness    string    `json:"slice_thickness"`
	XSpace            string    `json:"xspace"`
	YSpace            string    `json:"yspace"`
	ZSpace            string    `json:"zspace"`
	XStep             string    `json:"xstep"`
	YStep             string    `json:"ystep"`
	ZStep             string    `json:"zstep"`
	ImageType         string    `json:"image_type"`
	PhaseEncoding     string    `json:"phase_encoding"`
}
