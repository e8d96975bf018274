package core

import (
	"context"
	"testing"
	"time"

	"scancore/internal/infra/persistence/memory"
	"scancore/pkg/domain"
)

type pipelineFixture struct {
	store   *memory.Store
	svc     *Service
	cat     *RuleCatalogue
	archive domain.Archive
}

// seedPipeline registers a scan type with one classification rule and two
// checks (one exclude, one warning) plus an archive to attach violations to.
func seedPipeline(t *testing.T) *pipelineFixture {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()

	var scanType domain.ScanType
	var archive domain.Archive
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		scanType, err = tx.CreateScanType(domain.ScanType{Name: "t1w"})
		if err != nil {
			return err
		}
		if _, err = tx.CreateClassificationRule(domain.ClassificationRule{
			Site:       domain.Exact[int64](5),
			Scanner:    domain.Exact[int64](3),
			ScanTypeID: scanType.ID,
		}); err != nil {
			return err
		}
		if _, err = tx.CreateValidationCheck(domain.ValidationCheck{
			ScanTypeID:  scanType.ID,
			HeaderField: "repetition_time",
			ValidMin:    f64(2000),
			ValidMax:    f64(2500),
			Severity:    domain.SeverityExclude,
		}); err != nil {
			return err
		}
		if _, err = tx.CreateValidationCheck(domain.ValidationCheck{
			ScanTypeID:  scanType.ID,
			HeaderField: "slice_thickness",
			ValidMin:    f64(3),
			ValidMax:    f64(3),
			Severity:    domain.SeverityWarning,
		}); err != nil {
			return err
		}
		archive, err = tx.CreateArchive(domain.Archive{StudyUID: "1.2.840.1", SubjectLabel: "OTT166_400166_V2"})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	cat, err := LoadCatalogue(ctx, store)
	if err != nil {
		t.Fatalf("load catalogue: %v", err)
	}
	return &pipelineFixture{store: store, svc: NewService(store), cat: cat, archive: archive}
}

func (f *pipelineFixture) violations(t *testing.T) ([]domain.CheckViolation, []domain.ProtocolViolation) {
	t.Helper()
	var cv []domain.CheckViolation
	var pv []domain.ProtocolViolation
	err := f.store.View(context.Background(), func(view domain.TransactionView) error {
		cv = view.ListCheckViolations()
		pv = view.ListProtocolViolations()
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	return cv, pv
}

func TestProcessSeriesClean(t *testing.T) {
	f := seedPipeline(t)
	attrs := domain.SeriesAttributes{
		SeriesUID:      "1.2.840.1.1",
		SeriesNumber:   2,
		RepetitionTime: "2300",
		SliceThickness: "3",
		Scope:          domain.QueryScope{SiteID: 5, ScannerID: 3},
	}

	out, err := f.svc.ProcessSeries(context.Background(), f.cat, f.archive.ID, attrs)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !out.Classified || out.ScanType != "t1w" || out.Excluded {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	cv, pv := f.violations(t)
	if len(cv) != 0 || len(pv) != 0 {
		t.Fatalf("clean series must record nothing, got %d/%d", len(cv), len(pv))
	}
}

func TestProcessSeriesRecordsFindings(t *testing.T) {
	f := seedPipeline(t)
	attrs := domain.SeriesAttributes{
		SeriesUID:      "1.2.840.1.2",
		SeriesNumber:   3,
		EchoTime:       "30",
		RepetitionTime: "9999",
		SliceThickness: "5",
		Scope:          domain.QueryScope{SiteID: 5, ScannerID: 3},
	}

	out, err := f.svc.ProcessSeries(context.Background(), f.cat, f.archive.ID, attrs)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !out.Classified || !out.Excluded {
		t.Fatalf("series failing an exclude check must be excluded: %+v", out)
	}
	cv, pv := f.violations(t)
	if len(cv) != 2 {
		t.Fatalf("expected one violation per failing check, got %d", len(cv))
	}
	if len(pv) != 0 {
		t.Fatalf("classified series must not record protocol violations")
	}
	for _, v := range cv {
		if v.ArchiveID != f.archive.ID {
			t.Fatalf("violation must reference the archive, got %d", v.ArchiveID)
		}
		if v.Series.SeriesUID != attrs.SeriesUID || v.Series.EchoTime != "30" {
			t.Fatalf("violation must carry the series key, got %+v", v.Series)
		}
		if v.CheckID == 0 || v.Expected == "" {
			t.Fatalf("violation must carry check id and expected rendering: %+v", v)
		}
	}
}

func TestProcessSeriesWarningOnlyNotExcluded(t *testing.T) {
	f := seedPipeline(t)
	attrs := domain.SeriesAttributes{
		SeriesUID:      "1.2.840.1.3",
		RepetitionTime: "2300",
		SliceThickness: "5", // warning check only
		Scope:          domain.QueryScope{SiteID: 5, ScannerID: 3},
	}

	out, err := f.svc.ProcessSeries(context.Background(), f.cat, f.archive.ID, attrs)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Excluded {
		t.Fatalf("warning findings alone must not exclude the series")
	}
	cv, _ := f.violations(t)
	if len(cv) != 1 || cv[0].Severity != domain.SeverityWarning {
		t.Fatalf("expected one warning violation, got %+v", cv)
	}
}

func TestProcessSeriesUnclassified(t *testing.T) {
	f := seedPipeline(t)
	attrs := domain.SeriesAttributes{
		SeriesUID:         "1.2.840.1.4",
		SeriesNumber:      9,
		SeriesDescription: "localizer",
		RepetitionTime:    "20",
		Scope:             domain.QueryScope{SiteID: 1, ScannerID: 1}, // no rule matches
	}

	out, err := f.svc.ProcessSeries(context.Background(), f.cat, f.archive.ID, attrs)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Classified || out.Excluded {
		t.Fatalf("unclassified series outcome malformed: %+v", out)
	}
	cv, pv := f.violations(t)
	if len(cv) != 0 {
		t.Fatalf("unclassified series must not record check violations")
	}
	if len(pv) != 1 {
		t.Fatalf("expected exactly one protocol violation, got %d", len(pv))
	}
	if pv[0].SeriesDescription != "localizer" || pv[0].RepetitionTime != "20" {
		t.Fatalf("protocol violation must carry the observed attributes: %+v", pv[0])
	}
}

func TestServiceObservesOperations(t *testing.T) {
	store := memory.NewStore()
	rec := NewExpvarMetricsRecorder("")
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(store,
		WithMetrics(rec),
		WithClock(ClockFunc(func() time.Time { return fixed })),
	)

	if _, err := svc.ResolveSubject(context.Background(), "OTT166_400166_V2", 0); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	snap := rec.Snapshot()
	if snap.Results["resolve_subject"]["success"] != 1 {
		t.Fatalf("expected one successful resolve_subject observation, got %+v", snap.Results)
	}
}
