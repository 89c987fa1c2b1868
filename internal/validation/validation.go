// Package validation plugs translated messages and the project's custom tags into gin's validator.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	projectNameTag   = "projectname"
	projectNameText  = "{0} may only contain letters, digits, dashes and underscores"
	projectNameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

	notBlankTag  = "notblank"
	notBlankText = "{0} cannot be blank"

	requiredTag  = "required"
	requiredText = "{0} is required"
)

var (
	once       sync.Once
	initErr    error
	translator ut.Translator
)

// Register installs translations, JSON field names and custom tags on gin's validator.
// It is safe to call more than once.
func Register() error {
	once.Do(func() {
		validate, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			initErr = errors.New("gin validator engine is not validator/v10")
			return
		}
		initErr = setup(validate)
	})
	return initErr
}

func setup(validate *validator.Validate) error {
	uni := ut.New(en.New())
	translator, _ = uni.GetTranslator("en")

	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		return fmt.Errorf("register default translations: %w", err)
	}

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	if err := validate.RegisterValidation(projectNameTag, func(fl validator.FieldLevel) bool {
		return projectNameRegex.MatchString(fl.Field().String())
	}); err != nil {
		return err
	}
	if err := validate.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	}); err != nil {
		return err
	}

	registerTranslation(validate, projectNameTag, projectNameText, false)
	registerTranslation(validate, notBlankTag, notBlankText, false)
	registerTranslation(validate, requiredTag, requiredText, true)
	return nil
}

func registerTranslation(validate *validator.Validate, tag, text string, override bool) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, override) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// ValidProjectName reports whether name is allowed as a project name.
func ValidProjectName(name string) bool {
	return projectNameRegex.MatchString(name)
}

// Translate turns binding errors into field -> message pairs. Errors that are
// not validation errors (malformed JSON, wrong types) come back under "body".
func Translate(err error) map[string]string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return map[string]string{"body": err.Error()}
	}

	details := make(map[string]string, len(validationErrs))
	for _, fe := range validationErrs {
		if translator != nil {
			details[fe.Field()] = fe.Translate(translator)
		} else {
			details[fe.Field()] = fe.Error()
		}
	}
	return details
}
