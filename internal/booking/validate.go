package booking

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// BookingInput is the validated shape of a booking request.
type BookingInput struct {
	PatientName  string `json:"patient_name" validate:"required,min=3,max=100"`
	PatientEmail string `json:"patient_email" validate:"required,email,max=254"`
	PatientPhone string `json:"patient_phone" validate:"required,br_phone"`
	Date         string `json:"appointment_date" validate:"required,datetime=2006-01-02"`
	Time         string `json:"appointment_time" validate:"required,datetime=15:04"`
	Notes        string `json:"notes" validate:"max=500"`
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every invalid field, not just the first.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return fmt.Sprintf("invalid fields: %s", strings.Join(names, ", "))
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Brazilian phone: optional area code in parentheses, optional mobile nine,
// e.g. "(33) 99999-9999" or "33 3321-5500".
var brPhonePattern = regexp.MustCompile(`^\(?\d{2}\)?[\s.-]?9?\d{4}[\s.-]?\d{4}$`)

// NewValidator returns the validator used for booking input, with the
// br_phone rule registered.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("br_phone", func(fl validator.FieldLevel) bool {
		return brPhonePattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	return v
}

// fieldMessages maps validator tags to caller-facing messages.
func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "br_phone":
		return "must be a valid Brazilian phone number"
	case "datetime":
		return fmt.Sprintf("must match format %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return "is invalid"
	}
}

// jsonFieldNames maps struct fields to their wire names for error reporting.
var jsonFieldNames = map[string]string{
	"PatientName":  "patient_name",
	"PatientEmail": "patient_email",
	"PatientPhone": "patient_phone",
	"Date":         "appointment_date",
	"Time":         "appointment_time",
	"Notes":        "notes",
}

// collectFieldErrors converts validator output into a ValidationError listing
// every failing field.
func collectFieldErrors(err error) *ValidationError {
	verr := &ValidationError{}
	ferrs, ok := err.(validator.ValidationErrors)
	if !ok {
		verr.add("input", "is invalid")
		return verr
	}
	for _, fe := range ferrs {
		name := jsonFieldNames[fe.StructField()]
		if name == "" {
			name = fe.StructField()
		}
		verr.add(name, fieldMessage(fe))
	}
	return verr
}
