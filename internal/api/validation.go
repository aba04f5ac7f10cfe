package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"machine-alert-backend/internal/apperr"
)

var tagNameOnce sync.Once

// useJSONFieldNames makes validation errors name fields as clients send them.
func useJSONFieldNames() {
	tagNameOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
}

// bindError converts a request binding failure into an INVALID_INPUT error.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.NewInvalidInput(fe.Field(), describe(fe))
	}
	return apperr.NewInvalidInput("body", "malformed JSON body")
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
