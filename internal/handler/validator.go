package handler

import (
    "reflect"
    "strings"

    "github.com/go-playground/locales/en"
    ut "github.com/go-playground/universal-translator"
    "github.com/go-playground/validator/v10"
    en_translations "github.com/go-playground/validator/v10/translations/en"
)

const notBlankTag = "notblank"

// Validator implements echo.Validator.  Field names in errors are the JSON
// names and messages are English sentences.
type Validator struct {
    validate   *validator.Validate
    translator ut.Translator
}

// NewValidator builds the request validator installed as e.Validator.
func NewValidator() *Validator {
    v := validator.New()

    _en := en.New()
    uni := ut.New(_en, _en)
    trans, _ := uni.GetTranslator("en")
    _ = en_translations.RegisterDefaultTranslations(v, trans)

    v.RegisterTagNameFunc(func(fld reflect.StructField) string {
        name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
        if name == "-" {
            return ""
        }
        return name
    })

    _ = v.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
        s, ok := fl.Field().Interface().(string)
        return ok && strings.TrimSpace(s) != ""
    })
    _ = v.RegisterTranslation(notBlankTag, trans,
        func(ut.Translator) error { return nil },
        func(_ ut.Translator, fe validator.FieldError) string { return "this field cannot be blank" },
    )

    return &Validator{validate: v, translator: trans}
}

// Validate checks struct tags on i.
func (v *Validator) Validate(i interface{}) error {
    return v.validate.Struct(i)
}

// fieldErrors maps JSON field names to messages.
func (v *Validator) fieldErrors(errs validator.ValidationErrors) map[string]string {
    out := make(map[string]string, len(errs))
    for _, fe := range errs {
        out[fe.Field()] = fe.Translate(v.translator)
    }
    return out
}
