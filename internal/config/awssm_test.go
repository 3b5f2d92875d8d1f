package config

import (
	"testing"
)

func TestResolveValue_AWSSM_Integration(t *testing.T) {
	// Point the SDK at nothing usable so the lookup fails fast.
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	t.Setenv("AWS_PROFILE", "emrlift-test-missing-profile")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	_, err := ResolveValue("${AWS_SM:nonexistent-secret@us-east-1}")
	if err == nil {
		t.Error("expected error when AWS credentials are not configured")
	}
}

func TestResolveValue_AWSSM_Pattern(t *testing.T) {
	val, err := ResolveValue("plain-text-value")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "plain-text-value" {
		t.Errorf("plain values should pass through, got %q", val)
	}
}
