package id

import (
	"testing"
)

func TestNew(t *testing.T) {
	a, b := New(), New()
	if a == b {
		t.Fatalf("New() returned the same id twice: %s", a)
	}
	if !IsAnalysisID(a) {
		t.Errorf("New() = %q, not a valid analysis id", a)
	}
}

func TestIsAnalysisID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"lowercase uuid", "0a9f2e1c-3b4d-4e5f-8a6b-7c8d9e0f1a2b", true},
		{"uppercase uuid", "0A9F2E1C-3B4D-4E5F-8A6B-7C8D9E0F1A2B", true},
		{"surrounding space", " 0a9f2e1c-3b4d-4e5f-8a6b-7c8d9e0f1a2b\n", true},
		{"too short", "0a9f2e1c-3b4d-4e5f-8a6b", false},
		{"not hex", "zz9f2e1c-3b4d-4e5f-8a6b-7c8d9e0f1a2b", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAnalysisID(tt.in); got != tt.want {
				t.Errorf("IsAnalysisID(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("0a9f2e1c-3b4d-4e5f-8a6b-7c8d9e0f1a2b"); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
	if err := Validate("T-00001"); err == nil {
		t.Error("Validate() expected error for non-uuid")
	}
}

func TestValidateDonor(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"DO12345", false},
		{"PCAWG.DO-1_a", false},
		{"", true},
		{"../etc", true},
		{"a/b", true},
		{".hidden", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := ValidateDonor(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDonor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}
