package core

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"tweetrelay/internal/types"
)

// Validator wraps go-playground/validator and translates its failures into
// structured AppErrors with per-field details.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator that reports field names from json tags so
// error details match the wire names clients actually sent.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// ValidateStruct validates s against its struct tags. It returns nil on
// success, or a *types.AppError carrying a details map of field name to the
// failed rule. Missing required fields map to
// "validation_missing_required_field", invalid status values to
// "validation_invalid_status", and every other rule failure (length caps,
// ranges) to "validation_invalid_field".
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	code := types.ErrCodeValidationInvalidField
	message := "invalid value for field " + verrs[0].Field()
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
		switch fe.Tag() {
		case "required":
			if code == types.ErrCodeValidationInvalidField {
				code = types.ErrCodeValidationMissingField
				message = "missing required field"
			}
		case "oneof":
			code = types.ErrCodeValidationInvalidStatus
			message = "invalid value for field " + fe.Field()
		}
	}

	return types.NewAppErrorWithDetails(code, message, err, details)
}
