// Package validation checks typed request bodies and maps the first failing
// field to its error code.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"sharehouse-backend/internal/pkg/apperrors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	// Decimals validate as floats so gt/gte tags apply to prices.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Codes maps a JSON field name to the error returned when it fails.
type Codes map[string]*apperrors.AppError

// Struct validates v. The first failing field is reported with its mapped
// code, or BAD_REQUEST when unmapped.
func Struct(v interface{}, codes Codes) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.Wrap(apperrors.ErrBadRequest, err)
	}
	fe := verrs[0]
	sentinel, ok := codes[fe.Field()]
	if !ok {
		sentinel = apperrors.ErrBadRequest
	}
	return apperrors.WithDetails(sentinel, map[string]any{"field": fe.Field(), "rule": fe.Tag()})
}

// UUID parses s or returns BAD_ID naming the field.
func UUID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, apperrors.WithDetails(apperrors.ErrBadID, map[string]any{"field": field})
	}
	return id, nil
}

// Currency normalises an optional currency code, falling back to def.
func Currency(code, def string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return def, nil
	}
	if err := validate.Var(code, "iso4217"); err != nil {
		return "", apperrors.WithDetails(apperrors.ErrBadCurrency, map[string]any{"currency": code})
	}
	return code, nil
}
