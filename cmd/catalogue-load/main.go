// Command catalogue-load validates a JSON rule catalogue file and seeds it
// into the persistence store. Classification rules and validation checks
// reference scan types by name in the file; names are resolved to ids at
// load time.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"

	"scancore/internal/infra/persistence/memory"
	"scancore/internal/infra/persistence/postgres"
	"scancore/internal/infra/persistence/sqlite"
	"scancore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

type scanTypeDef struct {
	Name string `json:"name"`
}

type ruleDef struct {
	ScanType string              `json:"scan_type"`
	Site     domain.Scope[int64] `json:"site_id"`
	Scanner  domain.Scope[int64] `json:"scanner_id"`
	Scope    domain.ScopeKey     `json:"scope"`
}

type checkDef struct {
	ScanType    string          `json:"scan_type"`
	Scope       domain.ScopeKey `json:"scope"`
	Severity    domain.Severity `json:"severity"`
	HeaderField string          `json:"header_field"`
	ValidMin    *float64        `json:"valid_min"`
	ValidMax    *float64        `json:"valid_max"`
	ValidRegex  string          `json:"valid_regex"`
}

type catalogueFile struct {
	ScanTypes []scanTypeDef `json:"scan_types"`
	Rules     []ruleDef     `json:"classification_rules"`
	Checks    []checkDef    `json:"validation_checks"`
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("catalogue-load", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cataloguePath string
		checkOnly     bool
		storeDriver   string
		storeDSN      string
	)
	fs.StringVar(&cataloguePath, "catalogue", "", "path to the catalogue json file (required)")
	fs.BoolVar(&checkOnly, "check", false, "validate the file without loading it")
	fs.StringVar(&storeDriver, "store", envOr("SCANCORE_DB_DRIVER", "sqlite"), "persistence driver: memory|sqlite|postgres")
	fs.StringVar(&storeDSN, "dsn", os.Getenv("SCANCORE_DB_DSN"), "database path (sqlite) or DSN (postgres)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if cataloguePath == "" {
		fmt.Fprintln(stderr, "catalogue-load: -catalogue is required")
		fs.Usage()
		return 2
	}

	cat, err := parseFile(cataloguePath)
	if err != nil {
		fmt.Fprintf(stderr, "catalogue-load: %v\n", err)
		return 1
	}
	if problems := validate(cat); len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(stderr, "catalogue-load: %s: %s\n", cataloguePath, p)
		}
		return 1
	}
	if checkOnly {
		fmt.Fprintf(stdout, "%s: %d scan types, %d rules, %d checks ok\n",
			cataloguePath, len(cat.ScanTypes), len(cat.Rules), len(cat.Checks))
		return 0
	}

	if err := load(context.Background(), cat, storeDriver, storeDSN); err != nil {
		fmt.Fprintf(stderr, "catalogue-load: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "loaded %d scan types, %d rules, %d checks\n",
		len(cat.ScanTypes), len(cat.Rules), len(cat.Checks))
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseFile(path string) (catalogueFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return catalogueFile{}, err
	}
	var cat catalogueFile
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cat); err != nil {
		return catalogueFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cat, nil
}

// validate collects every problem in the file rather than stopping at the
// first, so one run surfaces everything the author has to fix.
func validate(cat catalogueFile) []string {
	var problems []string
	names := make(map[string]struct{}, len(cat.ScanTypes))
	for i, st := range cat.ScanTypes {
		if st.Name == "" {
			problems = append(problems, fmt.Sprintf("scan_types[%d]: empty name", i))
			continue
		}
		if _, dup := names[st.Name]; dup {
			problems = append(problems, fmt.Sprintf("scan_types[%d]: duplicate name %q", i, st.Name))
			continue
		}
		names[st.Name] = struct{}{}
	}
	for i, r := range cat.Rules {
		if _, ok := names[r.ScanType]; !ok {
			problems = append(problems, fmt.Sprintf("classification_rules[%d]: unknown scan type %q", i, r.ScanType))
		}
		if r.Site.IsWildcard() != r.Scanner.IsWildcard() {
			problems = append(problems, fmt.Sprintf("classification_rules[%d]: site_id and scanner_id must both be set or both be null", i))
		}
	}
	for i, c := range cat.Checks {
		if _, ok := names[c.ScanType]; !ok {
			problems = append(problems, fmt.Sprintf("validation_checks[%d]: unknown scan type %q", i, c.ScanType))
		}
		if c.Severity != domain.SeverityExclude && c.Severity != domain.SeverityWarning {
			problems = append(problems, fmt.Sprintf("validation_checks[%d]: invalid severity %q", i, c.Severity))
		}
		if !domain.KnownHeaderField(c.HeaderField) {
			problems = append(problems, fmt.Sprintf("validation_checks[%d]: unknown header field %q", i, c.HeaderField))
		}
		if c.ValidMin == nil && c.ValidMax == nil && c.ValidRegex == "" {
			problems = append(problems, fmt.Sprintf("validation_checks[%d]: check constrains nothing", i))
		}
		if c.ValidMin != nil && c.ValidMax != nil && *c.ValidMin > *c.ValidMax {
			problems = append(problems, fmt.Sprintf("validation_checks[%d]: valid_min %g exceeds valid_max %g", i, *c.ValidMin, *c.ValidMax))
		}
		if c.ValidRegex != "" {
			if _, err := regexp.Compile(c.ValidRegex); err != nil {
				problems = append(problems, fmt.Sprintf("validation_checks[%d]: invalid valid_regex: %v", i, err))
			}
		}
	}
	return problems
}

func load(ctx context.Context, cat catalogueFile, driver, dsn string) error {
	store, closeStore, err := openStore(driver, dsn)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = closeStore() }()
	return seed(ctx, store, cat)
}

// seed writes the whole catalogue in one transaction so a failing entry
// leaves the store untouched.
func seed(ctx context.Context, store domain.PersistentStore, cat catalogueFile) error {
	return store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		ids := make(map[string]int64, len(cat.ScanTypes))
		for _, st := range cat.ScanTypes {
			created, err := tx.CreateScanType(domain.ScanType{Name: st.Name})
			if err != nil {
				return fmt.Errorf("scan type %q: %w", st.Name, err)
			}
			ids[st.Name] = created.ID
		}
		for i, r := range cat.Rules {
			_, err := tx.CreateClassificationRule(domain.ClassificationRule{
				Site:       r.Site,
				Scanner:    r.Scanner,
				Scope:      r.Scope,
				ScanTypeID: ids[r.ScanType],
			})
			if err != nil {
				return fmt.Errorf("classification rule %d: %w", i, err)
			}
		}
		for i, c := range cat.Checks {
			_, err := tx.CreateValidationCheck(domain.ValidationCheck{
				ScanTypeID:  ids[c.ScanType],
				Scope:       c.Scope,
				Severity:    c.Severity,
				HeaderField: c.HeaderField,
				ValidMin:    c.ValidMin,
				ValidMax:    c.ValidMax,
				ValidRegex:  c.ValidRegex,
			})
			if err != nil {
				return fmt.Errorf("validation check %d: %w", i, err)
			}
		}
		return nil
	})
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
