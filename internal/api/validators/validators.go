// Package validators holds the shared request validator.
package validators

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	appErr "github.com/outline-studio/engine/pkg/errors"
)

var (
	once sync.Once
	v    *validator.Validate
)

// New returns the process-wide validator.
func New() *validator.Validate {
	once.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(jsonName)
	})
	return v
}

// Struct validates req and reports the first failing field as an invalid
// AppError.
func Struct(req any) error {
	err := New().Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return appErr.New(appErr.CodeInvalid, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())).
			WithMeta("field", fe.Field())
	}
	return appErr.Wrap(err, appErr.CodeInvalid, "invalid request")
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}
