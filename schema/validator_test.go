package schema

import (
	"strings"
	"testing"
)

func TestValidatorAcceptsMinimalConfig(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	doc := map[string]interface{}{
		"address": "0.0.0.0",
		"port":    22,
		"users": map[string]interface{}{
			"alice": map[string]interface{}{
				"password": "hunter2",
				"keys":     []string{"SHA256:abc"},
			},
		},
	}

	if err := v.Validate(doc); err != nil {
		t.Errorf("Expected valid config, got: %v", err)
	}
}

func TestValidatorRejectsBadPort(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	doc := map[string]interface{}{"port": 70000}

	err = v.Validate(doc)
	if err == nil {
		t.Fatal("Expected validation error for port 70000")
	}
	if !strings.Contains(err.Error(), "port") {
		t.Errorf("Error should mention the offending field: %v", err)
	}
}

func TestValidatorRejectsUnknownUserField(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	doc := map[string]interface{}{
		"users": map[string]interface{}{
			"alice": map[string]interface{}{
				"passwrod": "typo",
			},
		},
	}

	if err := v.Validate(doc); err == nil {
		t.Fatal("Expected validation error for misspelled user field")
	}
}

func TestValidatorAllowsExtensions(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	doc := map[string]interface{}{
		"logging": map[string]interface{}{"level": "debug"},
	}

	if err := v.Validate(doc); err != nil {
		t.Errorf("Unknown top-level sections must be allowed: %v", err)
	}
}
