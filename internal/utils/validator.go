package utils

import (
	"reflect"
	"strings"

	apperrors "github.com/SAP-F-2025/proctoring-service/internal/errors"
	"github.com/SAP-F-2025/proctoring-service/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator wraps the struct validator with the domain's custom rules
// registered.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	validate := validator.New()
	RegisterCustomValidators(validate)
	return &Validator{validate: validate}
}

// Validate checks struct tags and converts failures to the shared
// validation error type.
func (v *Validator) Validate(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		if converted := apperrors.ToValidationErrors(err); len(converted) > 0 {
			return converted
		}
		return err
	}
	return nil
}

// Custom validation functions

func ValidateSeverity(fl validator.FieldLevel) bool {
	return models.Severity(fl.Field().String()).Valid()
}

func ValidateSessionStatus(fl validator.FieldLevel) bool {
	switch models.SessionStatus(fl.Field().String()) {
	case models.SessionPending, models.SessionActive, models.SessionPaused,
		models.SessionCompleted, models.SessionTerminated:
		return true
	}
	return false
}

func ValidateAlertStatus(fl validator.FieldLevel) bool {
	switch models.AlertStatus(fl.Field().String()) {
	case models.AlertPending, models.AlertAcknowledged, models.AlertResolved:
		return true
	}
	return false
}

func ValidateInterventionType(fl validator.FieldLevel) bool {
	switch models.InterventionType(fl.Field().String()) {
	case models.InterventionWarning, models.InterventionPause,
		models.InterventionResume, models.InterventionTerminate:
		return true
	}
	return false
}

func ValidateUserRole(fl validator.FieldLevel) bool {
	validRoles := []models.UserRole{
		models.RoleStudent,
		models.RoleTeacher,
		models.RoleProctor,
		models.RoleAdmin,
	}

	value := fl.Field().String()
	for _, validRole := range validRoles {
		if string(validRole) == value {
			return true
		}
	}
	return false
}

// RegisterCustomValidators registers all custom validators
func RegisterCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("severity", ValidateSeverity)
	validate.RegisterValidation("session_status", ValidateSessionStatus)
	validate.RegisterValidation("alert_status", ValidateAlertStatus)
	validate.RegisterValidation("intervention_type", ValidateInterventionType)
	validate.RegisterValidation("user_role", ValidateUserRole)

	// Register custom tag name function for better error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}
