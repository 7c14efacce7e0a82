package coursechat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/putto11262002/coursechat/pkg/router"
)

var validate *validator.Validate
var uniTrans *ut.UniversalTranslator

func registerMessage(trans ut.Translator, tag, text string) {
	validate.RegisterTranslation(tag, trans, func(ut ut.Translator) error {
		return ut.Add(tag, text, true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T(tag, fe.Field(), fe.Param())
		return t
	})
}

func init() {
	validate = validator.New()
	en := en.New()
	uniTrans = ut.New(en, en)
	enTrans, _ := uniTrans.GetTranslator("en")

	// payload fields are reported by their json name, config fields by their lowercased name
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.ToLower(field.Name)
		}
		return name
	})

	validate.RegisterValidation("port", func(fl validator.FieldLevel) bool {
		port, ok := fl.Field().Interface().(int)
		if !ok {
			return false
		}
		return port > 0 && port <= 65535
	})

	validate.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		return ok && strings.TrimSpace(s) != ""
	})

	registerMessage(enTrans, "required", "{0} is a required field")
	registerMessage(enTrans, "required_if", "{0} is a required field")
	registerMessage(enTrans, "nonblank", "{0} must not be blank")
	registerMessage(enTrans, "email", "{0} must be a valid email address")
	registerMessage(enTrans, "url", "{0} must be a valid URL")
	registerMessage(enTrans, "min", "{0} must be at least {1} characters long")
	registerMessage(enTrans, "oneof", "{0} must be one of [{1}]")
	registerMessage(enTrans, "hostname", "{0} must be a valid hostname")
	registerMessage(enTrans, "port", "{0} must be a valid port number")
}

// FormatValidationErrors renders validator errors as sorted English sentences, one per line.
func FormatValidationErrors(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	trans, _ := uniTrans.GetTranslator("en")
	translated := slices.Sorted(maps.Values(errs.Translate(trans)))
	return strings.Join(translated, "\n")
}

// decodeValid decodes a JSON body into v and validates it.
// Malformed and invalid bodies are reported as 400s.
func decodeValid(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return router.BadRequest(fmt.Sprintf("malformed body: %v", err))
	}
	if err := validate.Struct(v); err != nil {
		return router.BadRequest(FormatValidationErrors(err))
	}
	return nil
}
