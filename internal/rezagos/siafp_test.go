package rezagos

import "testing"

func TestLookupKnownCode(t *testing.T) {
	entry := Lookup("023")
	if entry.Severidad != SeverityInternal {
		t.Fatalf("expected internal severity, got %q", entry.Severidad)
	}
	if entry.Codigo != "023" {
		t.Fatalf("code not carried through, got %q", entry.Codigo)
	}
	if entry.Template != nil {
		t.Fatal("internal codes carry no email template")
	}
}

func TestLookupUnknownCodeFallsBackToMixed(t *testing.T) {
	entry := Lookup("999")
	if entry.Severidad != SeverityMixed {
		t.Fatalf("unknown code must classify as mixed, got %q", entry.Severidad)
	}
	if entry.Accion == "" {
		t.Fatal("fallback must still suggest an action")
	}
}

func TestExternalCodesCarryEmailTemplates(t *testing.T) {
	for code, entry := range catalog {
		if entry.Severidad == SeverityExternal && entry.Template == nil {
			t.Fatalf("external code %s has no email template", code)
		}
		if entry.Severidad != SeverityExternal && entry.Template != nil {
			t.Fatalf("non-external code %s carries an email template", code)
		}
	}
}

func TestSeverityRequiresEmail(t *testing.T) {
	if !SeverityExternal.RequiresEmail() {
		t.Fatal("external severity must route through email")
	}
	for _, s := range []Severity{SeverityInternal, SeveritySystem, SeverityWaiting, SeverityMixed} {
		if s.RequiresEmail() {
			t.Fatalf("severity %s must not require email", s)
		}
	}
}
