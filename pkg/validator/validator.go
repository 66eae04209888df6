package validator

import (
	"context"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator"
)

var (
	global     *validator.Validate
	phoneRegex = regexp.MustCompile(`^\d{7,15}$`)
)

const (
	ErrInvalidFormat      = "Invalid format"
	ErrFieldRequired      = "Field is required"
	ErrFieldExceedsMaxLen = "Field exceeds maximum length"
	ErrFieldBelowMinLen   = "Field is below minimum length"
	ErrInvalidEmail       = "Invalid email"
	ErrInvalidPhone       = "Invalid phone number"
	ErrMustAccept         = "You must accept the terms"
	ErrUnknownValidation  = "Unknown validation error"
)

// FieldErrors maps a JSON field name to its messages.
type FieldErrors map[string][]string

func init() {
	SetValidator(New())
}

func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	_ = v.RegisterValidation("phone", validatePhone)
	_ = v.RegisterValidation("accepted", validateAccepted)
	return v
}

func SetValidator(v *validator.Validate) {
	global = v
}

func Validator() *validator.Validate {
	return global
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

func validatePhone(fl validator.FieldLevel) bool {
	return phoneRegex.MatchString(fl.Field().String())
}

func validateAccepted(fl validator.FieldLevel) bool {
	return fl.Field().Kind() == reflect.Bool && fl.Field().Bool()
}

// Validate checks structure and returns nil or every failing field with its message.
func Validate(ctx context.Context, structure any) FieldErrors {
	return parseValidationErrors(Validator().StructCtx(ctx, structure))
}

func parseValidationErrors(err error) FieldErrors {
	if err == nil {
		return nil
	}
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(vErrors) == 0 {
		return FieldErrors{"root": {ErrUnknownValidation}}
	}
	out := make(FieldErrors, len(vErrors))
	for _, ve := range vErrors {
		out[ve.Field()] = append(out[ve.Field()], message(ve))
	}
	return out
}

func message(ve validator.FieldError) string {
	switch ve.Tag() {
	case "required":
		return ErrFieldRequired
	case "max":
		return ErrFieldExceedsMaxLen
	case "min":
		return ErrFieldBelowMinLen
	case "email":
		return ErrInvalidEmail
	case "phone":
		return ErrInvalidPhone
	case "accepted":
		return ErrMustAccept
	default:
		return ErrInvalidFormat
	}
}
