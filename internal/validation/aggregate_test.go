package validation

import (
	"testing"

	"github.com/puygroup/pila-console/internal/pila"
)

func rule(valid bool) *pila.RuleResult { return &pila.RuleResult{Valido: valid} }

func match(valid bool) *pila.MatchEntry {
	return &pila.MatchEntry{MatchLog: &pila.MatchResult{Valido: valid}}
}

func TestMergeUnionAndOverride(t *testing.T) {
	process := map[string]pila.ValidationRecord{
		"a.txt": {R04: rule(true), MatchLog: &pila.MatchResult{Valido: true}},
		"b.txt": {R04: rule(false)},
	}
	matches := map[string]pila.MatchEntry{
		"a.txt": *match(false),
		"c.txt": *match(true),
	}

	merged := Merge(process, matches)
	if len(merged) != 3 {
		t.Fatalf("expected union of filenames, got %d records", len(merged))
	}
	if merged["a.txt"].MatchLog == nil || merged["a.txt"].MatchLog.Valido {
		t.Fatal("match source must override the process match_log")
	}
	if merged["b.txt"].MatchLog != nil {
		t.Fatal("file absent from match source must carry nil match_log")
	}
	if merged["c.txt"].R04 != nil || merged["c.txt"].MatchLog == nil {
		t.Fatal("match-only file must appear with only its match outcome")
	}
	if merged["c.txt"].Filename != "c.txt" {
		t.Fatalf("filename not threaded, got %q", merged["c.txt"].Filename)
	}
}

func TestAlertCountIgnoresAbsentOutcomes(t *testing.T) {
	records := map[string]pila.ValidationRecord{
		"fail.txt":   {R04: rule(false)},
		"pass.txt":   {R04: rule(true)},
		"absent.txt": {Matriz: rule(true)},
	}
	if got := AlertCount(records, pila.CategoryR04); got != 1 {
		t.Fatalf("expected 1 alert for r04, got %d", got)
	}
	if got := AlertCount(records, pila.CategoryLog); got != 0 {
		t.Fatalf("absent match_log must not count, got %d", got)
	}

	records["fail.txt"] = pila.ValidationRecord{MatchLog: &pila.MatchResult{Valido: false}}
	if got := AlertCount(records, pila.CategoryLog); got != 1 {
		t.Fatalf("failing match_log must count, got %d", got)
	}
}

func TestIsFullyValid(t *testing.T) {
	tests := []struct {
		name string
		rec  pila.ValidationRecord
		want bool
	}{
		{"no outcomes at all", pila.ValidationRecord{}, true},
		{"all present valid", pila.ValidationRecord{
			R04: rule(true), Matriz: rule(true), R05: rule(true),
			MatchLog: &pila.MatchResult{Valido: true},
		}, true},
		{"one failing rule", pila.ValidationRecord{R04: rule(true), R07: rule(false)}, false},
		{"failing match only", pila.ValidationRecord{MatchLog: &pila.MatchResult{Valido: false}}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsFullyValid(tc.rec); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFullyValidCountAndSorted(t *testing.T) {
	records := map[string]pila.ValidationRecord{
		"z.txt": {R04: rule(true), Filename: "z.txt"},
		"a.txt": {R04: rule(false), Filename: "a.txt"},
	}
	if got := FullyValidCount(records); got != 1 {
		t.Fatalf("expected 1 fully valid, got %d", got)
	}
	sorted := Sorted(records)
	if sorted[0].Filename != "a.txt" || sorted[1].Filename != "z.txt" {
		t.Fatalf("expected filename order, got %v then %v", sorted[0].Filename, sorted[1].Filename)
	}
}
