package pila

import (
	"encoding/json"
	"testing"
)

func TestRuleResultAbsentIsValid(t *testing.T) {
	var r *RuleResult
	if !r.OK() {
		t.Fatal("absent rule must not block validity")
	}
	if msg := r.Message(); msg != "" {
		t.Fatalf("absent rule message should be empty, got %q", msg)
	}
}

func TestOutcomeLogReadsMatchLog(t *testing.T) {
	rec := ValidationRecord{MatchLog: &MatchResult{Valido: false}}
	present, valid := rec.Outcome(CategoryLog)
	if !present || valid {
		t.Fatalf("expected present failing log outcome, got present=%v valid=%v", present, valid)
	}

	rec.MatchLog = nil
	present, valid = rec.Outcome(CategoryLog)
	if present || !valid {
		t.Fatal("absent match_log must be vacuously valid")
	}
}

func TestDetailDecodesMixedArray(t *testing.T) {
	raw := `{"errores_detalle":["fila 3 invalida",{"campo":"aporte","linea":9}],"total_errores":2}`
	var meta RuleMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	details := meta.Details()
	if len(details) != 2 {
		t.Fatalf("expected 2 details, got %d", len(details))
	}
	if details[0] != "fila 3 invalida" {
		t.Fatalf("unexpected first detail %q", details[0])
	}
	if details[1] != `{"campo":"aporte","linea":9}` {
		t.Fatalf("structured detail should keep its JSON text, got %q", details[1])
	}
}

func TestFlexStringAcceptsStringAndNumber(t *testing.T) {
	var meta MatchMeta
	if err := json.Unmarshal([]byte(`{"id_log":"abc"}`), &meta); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if meta.IDLog.String() != "abc" {
		t.Fatalf("got %q", meta.IDLog)
	}
	if err := json.Unmarshal([]byte(`{"id_log":42}`), &meta); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if meta.IDLog.String() != "42" {
		t.Fatalf("got %q", meta.IDLog)
	}
}
