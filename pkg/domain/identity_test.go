package domain

import (
	"errors"
	"testing"
)

func TestIsPhantomLabel(t *testing.T) {
	cases := []struct {
		label string
		want  bool
	}{
		{"living_phantom_ott", true},
		{"PHANTOM_SITE_A", true},
		{"testPSC_001_V1", true},
		{"Weekly Test", true},
		{"OTT166_400166_V2", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsPhantomLabel(tc.label); got != tc.want {
			t.Fatalf("IsPhantomLabel(%q)=%v want %v", tc.label, got, tc.want)
		}
	}
}

func TestParseCandidateLabel(t *testing.T) {
	psc, cand, visit, err := ParseCandidateLabel("OTT166_400166_V2")
	if err != nil {
		t.Fatalf("parse candidate label: %v", err)
	}
	if psc != "OTT166" || cand != 400166 || visit != "V2" {
		t.Fatalf("unexpected parse result %s %d %s", psc, cand, visit)
	}
}

func TestParseCandidateLabelRejectsMalformed(t *testing.T) {
	for _, label := range []string{"OTT166", "OTT166_V2", "OTT166_abc_V2", "A_1_B_C", ""} {
		_, _, _, err := ParseCandidateLabel(label)
		var ferr SubjectFormatError
		if !errors.As(err, &ferr) {
			t.Fatalf("expected SubjectFormatError for %q, got %v", label, err)
		}
		if ferr.Label != label {
			t.Fatalf("error should carry offending label, got %q", ferr.Label)
		}
	}
}

func TestIdentityConstructors(t *testing.T) {
	ph, err := NewPhantomIdentity(9001, "living_phantom")
	if err != nil {
		t.Fatalf("phantom identity: %v", err)
	}
	if !ph.IsPhantom() || ph.CandID() != 9001 || ph.VisitLabel() != "living_phantom" {
		t.Fatalf("unexpected phantom identity %v", ph)
	}

	cand, err := NewCandidateIdentity("OTT166", 400166, "V2")
	if err != nil {
		t.Fatalf("candidate identity: %v", err)
	}
	if cand.IsPhantom() || cand.CandID() != 400166 || cand.PSCID() != "OTT166" {
		t.Fatalf("unexpected candidate identity %v", cand)
	}

	if _, err := NewCandidateIdentity("OTT166", 0, "V2"); err == nil {
		t.Fatalf("expected error for non-numeric cand id")
	}
	if _, err := NewPhantomIdentity(1, ""); err == nil {
		t.Fatalf("expected error for empty visit label")
	}
}
