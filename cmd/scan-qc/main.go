// Command scan-qc runs the protocol QC pipeline over one archived DICOM
// study: it resolves the subject and session, classifies every series
// against the rule catalogue, validates the classified series, records
// violations, and emits a study report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"scancore/internal/blob"
	"scancore/internal/core"
	"scancore/internal/dicomhdr"
	"scancore/internal/infra/persistence/memory"
	"scancore/internal/infra/persistence/postgres"
	"scancore/internal/infra/persistence/sqlite"
	"scancore/internal/report"
	"scancore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

type options struct {
	archivePath string
	pattern     string
	scannerID   int64
	projectID   int64
	cohortID    int64
	createVisit bool
	storeDriver string
	storeDSN    string
	export      bool
	trace       bool
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scan-qc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.archivePath, "archive", "", "path to the extracted study directory (required)")
	fs.StringVar(&opts.pattern, "pattern", dicomhdr.DefaultPattern, "glob pattern for instance file names")
	fs.Int64Var(&opts.scannerID, "scanner", 0, "scanner id the study was acquired on")
	fs.Int64Var(&opts.projectID, "project", 0, "project id for newly created sessions")
	fs.Int64Var(&opts.cohortID, "cohort", 0, "cohort id for newly created sessions")
	fs.BoolVar(&opts.createVisit, "create-visit", false, "create the session when no active one exists")
	fs.StringVar(&opts.storeDriver, "store", envOr("SCANCORE_DB_DRIVER", "memory"), "persistence driver: memory|sqlite|postgres")
	fs.StringVar(&opts.storeDSN, "dsn", os.Getenv("SCANCORE_DB_DSN"), "database path (sqlite) or DSN (postgres)")
	fs.BoolVar(&opts.export, "export", false, "export the study report to the configured blob store")
	fs.BoolVar(&opts.trace, "trace", false, "write span traces to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if opts.archivePath == "" {
		fmt.Fprintln(stderr, "scan-qc: -archive is required")
		fs.Usage()
		return 2
	}
	if err := run(context.Background(), opts, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "scan-qc: %v\n", err)
		return 1
	}
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func openStore(driver, dsn string) (domain.PersistentStore, func() error, error) {
	switch driver {
	case "memory":
		return memory.NewStore(), func() error { return nil }, nil
	case "sqlite":
		st, err := sqlite.NewStore(dsn)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case "postgres":
		st, err := postgres.NewStore(dsn)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	store, closeStore, err := openStore(opts.storeDriver, opts.storeDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = closeStore() }()

	svcOpts := []core.ServiceOption{
		core.WithLogger(core.NewSlogLogger(logger)),
		core.WithMetrics(core.NewExpvarMetricsRecorder("")),
	}
	if opts.trace {
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(stderr)))
	}
	svc := core.NewService(store, svcOpts...)

	study, err := dicomhdr.Crawl(opts.archivePath, opts.pattern)
	if err != nil {
		return fmt.Errorf("crawl study: %w", err)
	}
	if len(study.Series) == 0 {
		return fmt.Errorf("no instance files matched %q under %s", opts.pattern, opts.archivePath)
	}

	identity, err := svc.ResolveSubject(ctx, study.SubjectLabel, opts.scannerID)
	if err != nil {
		return fmt.Errorf("resolve subject %q: %w", study.SubjectLabel, err)
	}
	session, err := svc.ResolveSession(ctx, identity, core.SessionConfig{
		CreateVisit: opts.createVisit,
		ProjectID:   opts.projectID,
		CohortID:    opts.cohortID,
	})
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}

	var archive domain.Archive
	err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		archive, err = tx.CreateArchive(domain.Archive{
			StudyUID:     study.StudyUID,
			SubjectLabel: study.SubjectLabel,
			SourcePath:   study.SourcePath,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("register archive: %w", err)
	}

	cat, err := core.LoadCatalogue(ctx, store)
	if err != nil {
		return fmt.Errorf("load catalogue: %w", err)
	}

	scope := domain.QueryScope{
		SiteID:    session.SiteID,
		ScannerID: opts.scannerID,
		ProjectID: nonZero(session.ProjectID),
		CohortID:  nonZero(session.CohortID),
		Visit:     session.VisitLabel,
	}
	outcomes := make([]core.Outcome, 0, len(study.Series))
	for _, attrs := range study.Series {
		attrs.Scope = scope
		outcome, err := svc.ProcessSeries(ctx, cat, archive.ID, attrs)
		if err != nil {
			return fmt.Errorf("process series %s: %w", attrs.SeriesUID, err)
		}
		outcomes = append(outcomes, outcome)
	}

	rep := report.Build(time.Now(), study.StudyUID, study.SubjectLabel, identity, session, outcomes)
	if opts.export {
		blobStore, err := blob.Open(ctx)
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
		info, err := report.NewExporter(blobStore).Export(ctx, rep)
		if err != nil {
			return err
		}
		logger.Info("report exported", "key", info.Key, "size", info.Size)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func nonZero(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
