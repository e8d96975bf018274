package domain

import (
	"encoding/json"
	"testing"
)

func TestScopeWildcardMatchesAnyValue(t *testing.T) {
	s := Wildcard[int64]()
	if !s.Matches(42, true) {
		t.Fatalf("wildcard should match concrete query value")
	}
	if !s.Matches(0, false) {
		t.Fatalf("wildcard should match absent query value")
	}
	if !s.IsWildcard() {
		t.Fatalf("expected wildcard")
	}
}

func TestScopeExactMatchesOnlyIdenticalValue(t *testing.T) {
	s := Exact[int64](7)
	if !s.Matches(7, true) {
		t.Fatalf("exact scope should match identical value")
	}
	if s.Matches(8, true) {
		t.Fatalf("exact scope must not match different value")
	}
	if s.Matches(7, false) {
		t.Fatalf("exact scope must not match absent query value")
	}
	if v, ok := s.Value(); !ok || v != 7 {
		t.Fatalf("expected pinned value 7, got %v ok=%v", v, ok)
	}
}

func TestScopeKeyMatchesPerDimension(t *testing.T) {
	proj := int64(3)
	cases := []struct {
		name string
		key  ScopeKey
		q    QueryScope
		want bool
	}{
		{
			name: "all wildcard matches anything",
			key:  ScopeKey{Project: Wildcard[int64](), Cohort: Wildcard[int64](), Visit: Wildcard[string]()},
			q:    QueryScope{ProjectID: &proj, Visit: "V1"},
			want: true,
		},
		{
			name: "concrete project matches identical",
			key:  ScopeKey{Project: Exact[int64](3), Cohort: Wildcard[int64](), Visit: Wildcard[string]()},
			q:    QueryScope{ProjectID: &proj},
			want: true,
		},
		{
			name: "concrete project rejects absent query",
			key:  ScopeKey{Project: Exact[int64](3), Cohort: Wildcard[int64](), Visit: Wildcard[string]()},
			q:    QueryScope{},
			want: false,
		},
		{
			name: "concrete visit rejects different label",
			key:  ScopeKey{Project: Wildcard[int64](), Cohort: Wildcard[int64](), Visit: Exact("V2")},
			q:    QueryScope{Visit: "V1"},
			want: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.key.Matches(tc.q); got != tc.want {
				t.Fatalf("Matches=%v want %v", got, tc.want)
			}
		})
	}
}

func TestScopeJSONRoundTrip(t *testing.T) {
	key := ScopeKey{Project: Exact[int64](5), Cohort: Wildcard[int64](), Visit: Exact("V1")}
	data, err := json.Marshal(key)
	if err != nil {
		t.Fatalf("marshal scope key: %v", err)
	}
	var decoded ScopeKey
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal scope key: %v", err)
	}
	if decoded.Cohort.IsWildcard() != true {
		t.Fatalf("cohort wildcard lost in round trip")
	}
	if v, ok := decoded.Project.Value(); !ok || v != 5 {
		t.Fatalf("project value lost in round trip: %v ok=%v", v, ok)
	}
	if v, ok := decoded.Visit.Value(); !ok || v != "V1" {
		t.Fatalf("visit value lost in round trip: %v ok=%v", v, ok)
	}
}
