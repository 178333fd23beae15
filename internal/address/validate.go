package address

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/candle-checkout/internal/common"
)

// Validator checks shipping addresses before any rate or tax calculation.
type Validator struct {
	validate     *validator.Validate
	requirePhone bool
}

// NewValidator builds a validator. requirePhone makes the phone field
// mandatory, as the interactive checkout form does.
func NewValidator(requirePhone bool) *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	return &Validator{validate: v, requirePhone: requirePhone}
}

// Engine exposes the underlying validator so request structs embedding
// Shipping can reuse the same tag-name mapping.
func (v *Validator) Engine() *validator.Validate {
	return v.validate
}

// Validate returns a *common.ValidationError listing every offending field.
func (v *Validator) Validate(s Shipping) error {
	var fields []common.FieldError
	if err := v.validate.Struct(s); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return invalid
		}
		fields = FieldErrors(err, "")
	}
	if v.requirePhone && strings.TrimSpace(s.Phone) == "" {
		fields = append(fields, common.FieldError{Field: "phone", Message: "Phone is required"})
	}
	if len(fields) > 0 {
		return common.NewValidationError(fields...)
	}
	return nil
}

// FieldErrors converts validator errors into field/message pairs. prefix is
// stripped from namespaces so nested structs report "shippingAddress.city".
func FieldErrors(err error, prefix string) []common.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]common.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		field = strings.TrimPrefix(field, prefix)
		out = append(out, common.FieldError{Field: field, Message: fieldMessage(fe)})
	}
	return out
}

var requiredMessages = map[string]string{
	"firstName":  "First name is required",
	"lastName":   "Last name is required",
	"email":      "Valid email is required",
	"phone":      "Phone is required",
	"address1":   "Address is required",
	"city":       "City is required",
	"state":      "State/Province is required",
	"postalCode": "Postal code is required",
	"country":    "Valid country is required",
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required", "email", "oneof":
		if msg, ok := requiredMessages[name]; ok {
			return msg
		}
		return fmt.Sprintf("%s is invalid", name)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
	default:
		return fmt.Sprintf("%s failed on %s validation", name, fe.Tag())
	}
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}
