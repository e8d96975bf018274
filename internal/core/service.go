package core

import (
	"context"
	"time"

	"scancore/pkg/domain"
)

const defaultSessionRetries = 3

// Service ties the protocol QC pipeline together: subject resolution,
// session find-or-create, and the per-series classify-validate-record
// sequence, all against one persistent store.
type Service struct {
	store          domain.PersistentStore
	log            Logger
	clock          Clock
	metrics        MetricsRecorder
	tracer         Tracer
	sessionRetries int
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:          store,
		log:            noopLogger{},
		clock:          ClockFunc(time.Now),
		tracer:         noopTracer{},
		sessionRetries: defaultSessionRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

func (s *Service) observe(ctx context.Context, operation string, success bool, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.Observe(ctx, operation, success, s.clock.Now().Sub(start))
}

// Outcome summarizes the classify-validate-record pipeline for one
// series. An unclassified series is a normal outcome: Classified is false
// and exactly one unclassified violation record was written for it.
type Outcome struct {
	SeriesUID    string        `json:"series_uid"`
	SeriesNumber int64         `json:"series_number"`
	Classified   bool          `json:"classified"`
	ScanTypeID   int64         `json:"scan_type_id,omitempty"`
	ScanType     string        `json:"scan_type,omitempty"`
	Result       domain.Result `json:"-"`
	Excluded     bool          `json:"excluded"`
}

// ProcessSeries runs the per-series pipeline: classify the series against
// the catalogue, validate a classified series against its checks, and
// persist the resulting violation records. The series' violations are
// returned as data; only store failures surface as errors.
func (s *Service) ProcessSeries(ctx context.Context, cat *RuleCatalogue, archiveID int64, attrs domain.SeriesAttributes) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "process_series")
	start := s.clock.Now()
	outcome, err := s.processSeries(ctx, cat, archiveID, attrs)
	s.observe(ctx, "process_series", err == nil, start)
	span.End(err)
	return outcome, err
}

func (s *Service) processSeries(ctx context.Context, cat *RuleCatalogue, archiveID int64, attrs domain.SeriesAttributes) (Outcome, error) {
	scanTypeID, classified := cat.Classify(attrs)
	if !classified {
		if err := s.recordUnclassified(ctx, archiveID, attrs); err != nil {
			return Outcome{}, err
		}
		s.log.Warn("series unclassified", "series_uid", attrs.SeriesUID, "series_number", attrs.SeriesNumber)
		return Outcome{SeriesUID: attrs.SeriesUID, SeriesNumber: attrs.SeriesNumber}, nil
	}

	checks := cat.FindChecks(scanTypeID, attrs.Scope)
	result := cat.Validate(scanTypeID, attrs)
	if err := s.recordFindings(ctx, archiveID, attrs, scanTypeID, result, checks); err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{
		SeriesUID:    attrs.SeriesUID,
		SeriesNumber: attrs.SeriesNumber,
		Classified:   true,
		ScanTypeID:   scanTypeID,
		Result:       result,
		Excluded:     result.HasExcluding(),
	}
	if name, ok := s.scanTypeName(ctx, scanTypeID); ok {
		outcome.ScanType = name
	}
	if outcome.Excluded {
		s.log.Warn("series excluded by protocol checks", "series_uid", attrs.SeriesUID, "scan_type", outcome.ScanType)
	}
	return outcome, nil
}

func (s *Service) scanTypeName(ctx context.Context, id int64) (string, bool) {
	var name string
	var ok bool
	if err := s.store.View(ctx, func(view domain.TransactionView) error {
		if st, found := view.FindScanType(id); found {
			name, ok = st.Name, true
		}
		return nil
	}); err != nil {
		return "", false
	}
	return name, ok
}
