package model

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// Validate is the shared validator instance.
	Validate   *validator.Validate
	translator ut.Translator
)

func init() {
	Validate = validator.New(validator.WithRequiredStructEnabled())
	enLocale := en.New()
	translator, _ = ut.New(enLocale, enLocale).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(Validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidateStruct checks v against its validate tags and converts failures into
// a ValidationError with English messages.
func ValidateStruct(v any) error {
	err := Validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	flds := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		flds = append(flds, FieldError{Field: fe.Field(), Error: fe.Translate(translator)})
	}
	return NewValidationError(flds...)
}
