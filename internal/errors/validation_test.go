package errors

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestValidationError(t *testing.T) {
	// Test NewValidationError
	err := NewValidationError("test_field", "test message", "test_value")

	if err.Field != "test_field" {
		t.Errorf("Expected field to be 'test_field', got '%s'", err.Field)
	}

	if err.Message != "test message" {
		t.Errorf("Expected message to be 'test message', got '%s'", err.Message)
	}

	if err.Value != "test_value" {
		t.Errorf("Expected value to be 'test_value', got '%v'", err.Value)
	}

	// Test Error method
	expected := "validation error on field 'test_field': test message"
	if err.Error() != expected {
		t.Errorf("Expected error message to be '%s', got '%s'", expected, err.Error())
	}
}

func TestValidationErrors(t *testing.T) {
	// Test empty ValidationErrors
	var errs ValidationErrors
	if errs.Error() != "validation failed" {
		t.Errorf("Expected 'validation failed' for empty errors, got '%s'", errs.Error())
	}

	// Test single ValidationError
	errs = append(errs, *NewValidationError("field1", "message1", nil))
	expected := "validation failed: field1 message1"
	if errs.Error() != expected {
		t.Errorf("Expected '%s' for single error, got '%s'", expected, errs.Error())
	}

	// Test multiple ValidationErrors
	errs = append(errs, *NewValidationError("field2", "message2", nil))
	expected = "validation failed: 2 field errors"
	if errs.Error() != expected {
		t.Errorf("Expected '%s' for multiple errors, got '%s'", expected, errs.Error())
	}
}

func TestNewValidationErrorWithRule(t *testing.T) {
	err := NewValidationErrorWithRule("test_field", "test message", "required", "test_value")

	if err.Rule != "required" {
		t.Errorf("Expected rule to be 'required', got '%s'", err.Rule)
	}

	if err.Field != "test_field" {
		t.Errorf("Expected field to be 'test_field', got '%s'", err.Field)
	}
}

func TestToValidationErrors_DomainTagMessages(t *testing.T) {
	v := validator.New()
	tags := []string{"severity", "session_status", "alert_status", "intervention_type", "user_role"}
	for _, tag := range tags {
		// The real checks live with the models; failing stubs are enough
		// to exercise the message mapping.
		if err := v.RegisterValidation(tag, func(validator.FieldLevel) bool { return false }); err != nil {
			t.Fatalf("Failed to register tag '%s': %v", tag, err)
		}
	}

	type form struct {
		Severity     string `validate:"severity"`
		Status       string `validate:"session_status"`
		AlertStatus  string `validate:"alert_status"`
		Intervention string `validate:"intervention_type"`
		Role         string `validate:"user_role"`
	}

	errs := ToValidationErrors(v.Struct(form{}))
	if len(errs) != 5 {
		t.Fatalf("Expected 5 validation errors, got %d", len(errs))
	}

	expected := map[string]struct {
		message string
		rule    string
	}{
		"Severity":     {"must be a valid severity (low, medium, high, critical)", "severity"},
		"Status":       {"must be a valid session status (pending, active, paused, completed, terminated)", "session_status"},
		"AlertStatus":  {"must be a valid alert status (pending, acknowledged, resolved)", "alert_status"},
		"Intervention": {"must be a valid intervention type (warning, pause, resume, terminate)", "intervention_type"},
		"Role":         {"must be a valid user role (student, teacher, proctor, admin)", "user_role"},
	}
	for _, err := range errs {
		want, ok := expected[err.Field]
		if !ok {
			t.Errorf("Unexpected field '%s' in validation errors", err.Field)
			continue
		}
		if err.Message != want.message {
			t.Errorf("Field '%s': expected message '%s', got '%s'", err.Field, want.message, err.Message)
		}
		if err.Rule != want.rule {
			t.Errorf("Field '%s': expected rule '%s', got '%s'", err.Field, want.rule, err.Rule)
		}
	}
}

func TestToValidationErrors_NonValidatorError(t *testing.T) {
	if errs := ToValidationErrors(errors.New("boom")); len(errs) != 0 {
		t.Errorf("Expected no validation errors for a plain error, got %d", len(errs))
	}
}
