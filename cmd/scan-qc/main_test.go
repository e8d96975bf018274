package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestCLIRequiresArchive(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli(nil, &stdout, &stderr); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "-archive is required") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestCLIRejectsUnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-bogus"}, &stdout, &stderr); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestCLIEmptyArchive(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-archive", t.TempDir(), "-store", "memory"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "no instance files matched") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestCLIUnknownStoreDriver(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-archive", t.TempDir(), "-store", "oracle"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "unknown store driver") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestOpenStoreSqlite(t *testing.T) {
	store, closeFn, err := openStore("sqlite", t.TempDir()+"/qc.db")
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	if store == nil {
		t.Fatal("nil store")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("SCANCORE_TEST_ENVOR", "")
	if got := envOr("SCANCORE_TEST_ENVOR", "fallback"); got != "fallback" {
		t.Fatalf("envOr = %q", got)
	}
	t.Setenv("SCANCORE_TEST_ENVOR", "set")
	if got := envOr("SCANCORE_TEST_ENVOR", "fallback"); got != "set" {
		t.Fatalf("envOr = %q", got)
	}
}
