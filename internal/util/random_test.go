package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomHex(t *testing.T) {
	if got := GenerateRandomHex(0); got != "" {
		t.Errorf("GenerateRandomHex(0) = %q, want empty", got)
	}
	if got := GenerateRandomHex(-5); got != "" {
		t.Errorf("GenerateRandomHex(-5) = %q, want empty", got)
	}

	got := GenerateRandomHex(32)
	if len(got) != 32 {
		t.Fatalf("length = %d, want 32", len(got))
	}
	for _, c := range got {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("non-hex character %q in %q", c, got)
		}
	}
}

func TestGenerateSurveyID(t *testing.T) {
	id := GenerateSurveyID()
	if !strings.HasPrefix(id, "s_") {
		t.Errorf("id %q missing s_ prefix", id)
	}
	if len(id) != 2+32 {
		t.Errorf("id length = %d, want 34", len(id))
	}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateSurveyID()
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}
