package models

import "testing"

func TestMaskSensitiveData(t *testing.T) {
	in := map[string]string{
		"Authorization": "Bearer secret-token",
		"X-Api-Key":     "abc123",
		"User-Agent":    "scrapeforge/1.0",
	}

	out := MaskSensitiveData(in)

	if out["Authorization"] != "[REDACTED]" {
		t.Errorf("expected Authorization to be redacted, got %q", out["Authorization"])
	}
	if out["X-Api-Key"] != "[REDACTED]" {
		t.Errorf("expected X-Api-Key to be redacted, got %q", out["X-Api-Key"])
	}
	if out["User-Agent"] != "scrapeforge/1.0" {
		t.Errorf("expected User-Agent to pass through unmasked, got %q", out["User-Agent"])
	}

	// Original map must be untouched.
	if in["Authorization"] != "Bearer secret-token" {
		t.Error("MaskSensitiveData must not mutate the input map")
	}
}

func TestMaskSensitiveData_NilInput(t *testing.T) {
	if got := MaskSensitiveData(nil); got != nil {
		t.Errorf("expected nil passthrough, got %v", got)
	}
}
