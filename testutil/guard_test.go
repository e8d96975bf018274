package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func writeGoFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeGoFile(t, dir, "a.go", "package a\n\nimport (\n\t\"fmt\"\n\t\"scancore/pkg/domain\"\n)\n\nvar _ = fmt.Sprint\nvar _ domain.Base\n")
	writeGoFile(t, dir, "a_test.go", "package a\n\nimport \"scancore/pkg/domain\"\n\nvar _ domain.Base\n")

	viols, err := directImportViolations(dir, DomainImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	// test files are exempt
	if len(viols) != 1 || viols[0] != "scancore/pkg/domain (in a.go)" {
		t.Fatalf("unexpected violations: %v", viols)
	}
}

func TestPredicates(t *testing.T) {
	if !DomainImportForbidden("scancore/pkg/domain") {
		t.Fatal("domain import must be matched")
	}
	if DomainImportForbidden("scancore/pkg/domainx") {
		t.Fatal("prefix match must not fire")
	}
	if !InternalImportForbidden("scancore/internal/core") {
		t.Fatal("internal import must be matched")
	}
	if InternalImportForbidden("scancore/pkg/domain") {
		t.Fatal("non-internal path must not fire")
	}
}

func TestAssertNoDirectImportsPasses(t *testing.T) {
	dir := t.TempDir()
	writeGoFile(t, dir, "clean.go", "package clean\n\nimport \"fmt\"\n\nvar _ = fmt.Sprint\n")
	AssertNoDirectImports(t, dir, DomainImportForbidden, "blob layer stays domain-free")
}
