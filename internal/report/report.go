// Package report assembles the per-study QC summary produced after a run
// of the classify-validate-record pipeline and exports it as a JSON
// artifact to the configured blob store.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"scancore/internal/blob/core"
	scanqc "scancore/internal/core"
	"scancore/pkg/domain"
)

// KeyPrefix is the object key prefix for exported study reports.
const KeyPrefix = "qc-reports/"

// Finding is the report view of one failed protocol check.
type Finding struct {
	CheckID       int64  `json:"check_id"`
	HeaderField   string `json:"header_field"`
	ObservedValue string `json:"observed_value"`
	Expected      string `json:"expected"`
	Severity      string `json:"severity"`
	Message       string `json:"message"`
}

// Series is the report view of one processed series.
type Series struct {
	SeriesUID    string    `json:"series_uid"`
	SeriesNumber int64     `json:"series_number"`
	Classified   bool      `json:"classified"`
	ScanType     string    `json:"scan_type,omitempty"`
	Excluded     bool      `json:"excluded"`
	Findings     []Finding `json:"findings,omitempty"`
}

// Subject is the report view of the resolved subject identity.
type Subject struct {
	Kind       string `json:"kind"`
	CandID     int64  `json:"cand_id"`
	PSCID      string `json:"pscid,omitempty"`
	VisitLabel string `json:"visit_label"`
}

// Study is the full QC report for one archived study.
type Study struct {
	GeneratedAt  time.Time `json:"generated_at"`
	StudyUID     string    `json:"study_uid"`
	SubjectLabel string    `json:"subject_label"`
	Subject      Subject   `json:"subject"`
	SessionID    int64     `json:"session_id"`
	VisitNumber  int       `json:"visit_number"`
	Series       []Series  `json:"series"`
	Unclassified int       `json:"unclassified_count"`
	Excluded     int       `json:"excluded_count"`
	Warnings     int       `json:"warning_count"`
}

// Build folds the pipeline outcomes for one study into a Study report.
func Build(now time.Time, studyUID, subjectLabel string, identity domain.SubjectIdentity, session domain.Session, outcomes []scanqc.Outcome) Study {
	rep := Study{
		GeneratedAt:  now.UTC(),
		StudyUID:     studyUID,
		SubjectLabel: subjectLabel,
		Subject: Subject{
			Kind:       string(identity.Kind()),
			CandID:     identity.CandID(),
			PSCID:      identity.PSCID(),
			VisitLabel: identity.VisitLabel(),
		},
		SessionID:   session.ID,
		VisitNumber: session.VisitNumber,
		Series:      make([]Series, 0, len(outcomes)),
	}
	for _, out := range outcomes {
		sr := Series{
			SeriesUID:    out.SeriesUID,
			SeriesNumber: out.SeriesNumber,
			Classified:   out.Classified,
			ScanType:     out.ScanType,
			Excluded:     out.Excluded,
		}
		if !out.Classified {
			rep.Unclassified++
		}
		if out.Excluded {
			rep.Excluded++
		}
		for _, f := range out.Result.Findings {
			sr.Findings = append(sr.Findings, Finding{
				CheckID:       f.CheckID,
				HeaderField:   f.HeaderField,
				ObservedValue: f.ObservedValue,
				Expected:      f.Expected,
				Severity:      string(f.Severity),
				Message:       f.Message,
			})
			if f.Severity == domain.SeverityWarning {
				rep.Warnings++
			}
		}
		rep.Series = append(rep.Series, sr)
	}
	return rep
}

// Exporter writes study reports to a blob store.
type Exporter struct {
	store core.Store
}

// NewExporter returns an exporter backed by the given blob store.
func NewExporter(store core.Store) *Exporter {
	return &Exporter{store: store}
}

// Key returns the object key used for a study's report.
func Key(studyUID string) string {
	return KeyPrefix + studyUID + ".json"
}

// Export serializes the report and stores it under Key(rep.StudyUID).
// The blob store is create-only, so re-exporting the same study fails
// rather than silently replacing an earlier report.
func (e *Exporter) Export(ctx context.Context, rep Study) (core.Info, error) {
	if rep.StudyUID == "" {
		return core.Info{}, fmt.Errorf("report: study UID required")
	}
	payload, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return core.Info{}, fmt.Errorf("report: encode study %s: %w", rep.StudyUID, err)
	}
	info, err := e.store.Put(ctx, Key(rep.StudyUID), bytes.NewReader(payload), core.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"study_uid":   rep.StudyUID,
			"visit_label": rep.Subject.VisitLabel,
		},
	})
	if err != nil {
		return core.Info{}, fmt.Errorf("report: store study %s: %w", rep.StudyUID, err)
	}
	return info, nil
}
