package diagnostics

import (
	"strings"
	"testing"
)

func TestValidateStaticMissingAndOK(t *testing.T) {
	checks := []CheckSpec{
		{Name: "a", Key: "A", Rule: Rule{NonEmpty: true}},
		{Name: "b", Key: "B", Rule: Rule{Prefix: "sk-"}},
	}
	// A is present but empty; that is indistinguishable from unset.
	snap := Snapshot{"A": "", "B": "sk-12345"}
	results := ValidateStatic(snap, checks)
	if len(results) != 2 {
		t.Fatalf("results: %d", len(results))
	}
	if results[0].Status != StatusMissing {
		t.Fatalf("a: got %s want %s", results[0].Status, StatusMissing)
	}
	if results[1].Status != StatusOK {
		t.Fatalf("b: got %s want %s", results[1].Status, StatusOK)
	}
}

func TestValidateStaticAbsentKeyIsMissing(t *testing.T) {
	checks := []CheckSpec{{Name: "a", Key: "NOPE", Rule: Rule{NonEmpty: true}}}
	results := ValidateStatic(Snapshot{}, checks)
	if results[0].Status != StatusMissing {
		t.Fatalf("got %s want %s", results[0].Status, StatusMissing)
	}
}

func TestValidateStaticNamesFailingConstraint(t *testing.T) {
	checks := []CheckSpec{
		{Name: "prefix", Key: "P", Rule: Rule{Prefix: "sk-"}},
		{Name: "minlen", Key: "L", Rule: Rule{MinLen: 20}},
	}
	snap := Snapshot{"P": "wrong-prefix", "L": "short"}
	results := ValidateStatic(snap, checks)
	if results[0].Status != StatusInvalidFormat || !strings.Contains(results[0].Evidence, "sk-") {
		t.Fatalf("prefix violation: %+v", results[0])
	}
	if results[1].Status != StatusInvalidFormat || !strings.Contains(results[1].Evidence, "20") {
		t.Fatalf("minlen violation: %+v", results[1])
	}
}

func TestValidateStaticNeverLeaksFullSecret(t *testing.T) {
	secret := "sk-verysecretvalue123456"
	checks := []CheckSpec{{Name: "s", Key: "S", Rule: Rule{Prefix: "sk-"}}}
	results := ValidateStatic(Snapshot{"S": secret}, checks)
	if results[0].Status != StatusOK {
		t.Fatalf("status: %s", results[0].Status)
	}
	if strings.Contains(results[0].Evidence, secret) {
		t.Fatalf("evidence leaks full secret: %q", results[0].Evidence)
	}
	if !strings.Contains(results[0].Evidence, "sk-ver...") {
		t.Fatalf("evidence missing redacted preview: %q", results[0].Evidence)
	}
}

func TestRuleApplyOrder(t *testing.T) {
	r := Rule{NonEmpty: true, Prefix: "sk-", MinLen: 10}
	if err := r.Apply(""); err == nil || !strings.Contains(err.Error(), "non-empty") {
		t.Fatalf("empty: %v", err)
	}
	if err := r.Apply("xx-1234567890"); err == nil || !strings.Contains(err.Error(), "sk-") {
		t.Fatalf("prefix: %v", err)
	}
	if err := r.Apply("sk-1"); err == nil || !strings.Contains(err.Error(), "10") {
		t.Fatalf("minlen: %v", err)
	}
	if err := r.Apply("sk-1234567890"); err != nil {
		t.Fatalf("valid: %v", err)
	}
}

func TestCheckSpecValidate(t *testing.T) {
	good := CheckSpec{Name: "c", Key: "K", Rule: Rule{NonEmpty: true}}
	if err := good.Validate(); err != nil {
		t.Fatalf("good: %v", err)
	}
	noName := CheckSpec{Key: "K", Rule: Rule{NonEmpty: true}}
	if err := noName.Validate(); err == nil {
		t.Fatal("missing name accepted")
	}
	noKey := CheckSpec{Name: "c", Rule: Rule{NonEmpty: true}}
	if err := noKey.Validate(); err == nil {
		t.Fatal("missing key accepted")
	}
	noRule := CheckSpec{Name: "c", Key: "K"}
	if err := noRule.Validate(); err == nil {
		t.Fatal("check without validator accepted")
	}
	badProbe := CheckSpec{Name: "c", Key: "K", Rule: Rule{NonEmpty: true}, Probe: &Probe{}}
	if err := badProbe.Validate(); err == nil {
		t.Fatal("probe without url accepted")
	}
}
