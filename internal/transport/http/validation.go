package http

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"timed-exercise-service/internal/domain"
)

// Validator checks request structs and reports failures keyed by JSON field name.
type Validator struct {
	validate *govalidator.Validate
	trans    ut.Translator
}

func NewValidator() *Validator {
	v := govalidator.New()
	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)
	return &Validator{validate: v, trans: trans}
}

// Struct validates dst and returns a *domain.ValidationError on failure.
func (v *Validator) Struct(dst any) error {
	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}
	var ve govalidator.ValidationErrors
	if !errors.As(err, &ve) {
		return &domain.ValidationError{Fields: map[string]string{"detail": err.Error()}}
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Translate(v.trans)
	}
	return &domain.ValidationError{Fields: fields}
}
