package policyopa

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"chainsign/internal/domain"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(context.Background(), "")
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func limits() domain.AdmissionLimits {
	return domain.AdmissionLimits{MaxDataBytes: 16}
}

func TestEngineAllowsBaseline(t *testing.T) {
	engine := newEngine(t)
	inputs := []domain.AdmissionInput{
		{Action: domain.AdmissionRegister, Algorithm: "RSA", Label: "till 1", Limits: limits()},
		{Action: domain.AdmissionRegister, Algorithm: "ECC", Label: "till 2", Limits: limits()},
		{Action: domain.AdmissionSign, DeviceID: "d", Algorithm: "ECC", DataSize: 16, Counter: 4, Limits: limits()},
	}
	for _, input := range inputs {
		decision, err := engine.Evaluate(context.Background(), input)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if !decision.Allow || len(decision.Deny) != 0 {
			t.Fatalf("expected allow for %+v, got %+v", input, decision)
		}
	}
}

func TestEngineDenies(t *testing.T) {
	engine := newEngine(t)
	tests := []struct {
		name  string
		input domain.AdmissionInput
		want  []string
	}{
		{
			name:  "unsupported algorithm",
			input: domain.AdmissionInput{Action: domain.AdmissionRegister, Algorithm: "DSA", Label: "x"},
			want:  []string{"unsupported algorithm"},
		},
		{
			name:  "blank label",
			input: domain.AdmissionInput{Action: domain.AdmissionRegister, Algorithm: "RSA", Label: "   "},
			want:  []string{"label is required"},
		},
		{
			name:  "missing label",
			input: domain.AdmissionInput{Action: domain.AdmissionRegister, Algorithm: "RSA"},
			want:  []string{"label is required"},
		},
		{
			name:  "long label",
			input: domain.AdmissionInput{Action: domain.AdmissionRegister, Algorithm: "ECC", Label: strings.Repeat("a", 257)},
			want:  []string{"label exceeds 256 characters"},
		},
		{
			name:  "oversized data",
			input: domain.AdmissionInput{Action: domain.AdmissionSign, Algorithm: "ECC", DataSize: 17, Limits: limits()},
			want:  []string{"data exceeds 16 bytes"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := engine.Evaluate(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if decision.Allow {
				t.Fatalf("expected deny")
			}
			if !reflect.DeepEqual(decision.Deny, tt.want) {
				t.Fatalf("deny = %v, want %v", decision.Deny, tt.want)
			}
		})
	}
}

func TestEngineLoadsPolicyFromPath(t *testing.T) {
	dir := t.TempDir()
	policy := `package chainsign.admission

result := {"allow": false, "deny": ["maintenance window"]}
`
	if err := os.WriteFile(filepath.Join(dir, "admission.rego"), []byte(policy), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	engine, err := NewEngine(context.Background(), dir)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if engine.Source() != dir {
		t.Fatalf("unexpected source %q", engine.Source())
	}
	decision, err := engine.Evaluate(context.Background(), domain.AdmissionInput{Action: domain.AdmissionSign, Algorithm: "RSA"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Allow || len(decision.Deny) != 1 {
		t.Fatalf("expected custom deny, got %+v", decision)
	}
}

func TestEngineRejectsForbiddenBuiltins(t *testing.T) {
	dir := t.TempDir()
	policy := `package chainsign.admission

result := {"allow": true, "deny": [], "now": time.now_ns()}
`
	if err := os.WriteFile(filepath.Join(dir, "admission.rego"), []byte(policy), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	if _, err := NewEngine(context.Background(), dir); err == nil {
		t.Fatalf("expected error for forbidden builtin")
	}
}
