package services

import (
	"errors"
	"fmt"

	apperrors "github.com/SAP-F-2025/proctoring-service/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden - insufficient permissions")
	ErrValidationFailed = errors.New("validation failed")
	ErrInternalError    = errors.New("internal server error")
	ErrBadRequest       = errors.New("bad request")
	ErrConflict         = errors.New("resource conflict")

	// Session specific errors
	ErrSessionNotFound       = errors.New("proctoring session not found")
	ErrSessionNotActive      = errors.New("proctoring session is not active")
	ErrSessionNotPaused      = errors.New("proctoring session is not paused")
	ErrSessionAlreadyActive  = errors.New("proctoring session is already active")
	ErrSessionEnded          = errors.New("proctoring session has already ended")
	ErrSessionInvalidStatus  = errors.New("invalid session status transition")
	ErrSessionDuplicateStart = errors.New("student already has an open session for this exam")

	// Detection / violation specific errors
	ErrViolationNotFound        = errors.New("violation not found")
	ErrViolationAlreadyReviewed = errors.New("violation already reviewed")
	ErrEventInvalidType         = errors.New("invalid proctoring event type")
	ErrEventInvalidSeverity     = errors.New("invalid severity level")

	// Alert specific errors
	ErrAlertNotFound      = errors.New("alert not found")
	ErrAlertInvalidStatus = errors.New("invalid alert status transition")

	// Intervention specific errors
	ErrInterventionInvalidType = errors.New("invalid intervention type")

	// Report specific errors
	ErrFormatNotSupported = errors.New("report format not supported")

	// User/Permission errors
	ErrUserNotFound            = errors.New("user not found")
	ErrInvalidRole             = errors.New("invalid user role")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d - %s",
		pe.UserID, pe.Action, pe.Resource, pe.ResourceID, pe.Reason)
}

// ===== ERROR HELPERS =====

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrViolationNotFound) ||
		errors.Is(err, ErrAlertNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsUnauthorized checks if error represents an "unauthorized" condition
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInsufficientPermissions)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// IsBusinessRule checks if error represents a business rule violation
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

// IsConflict checks if error represents a resource conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrSessionAlreadyActive) ||
		errors.Is(err, ErrSessionDuplicateStart) ||
		errors.Is(err, ErrSessionEnded) ||
		errors.Is(err, ErrViolationAlreadyReviewed) ||
		errors.Is(err, ErrAlertInvalidStatus)
}
