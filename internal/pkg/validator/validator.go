// Package validator wraps go-playground/validator with English messages and custom rules.
package validator

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslation "github.com/go-playground/validator/v10/translations/en"

	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const nestedName = "__nested__"

// nolint: gochecknoglobals
var identifierRegexp = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)

type Rule struct {
	Tag          string
	Func         validator.FuncCtx
	FuncNoCtx    validator.Func
	ErrorMsg     string
	ErrorMsgFunc func(fe validator.FieldError) string
}

type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
	rules      map[string]Rule
}

func New(rules ...Rule) *Validator {
	v := &Validator{validate: validator.New(), rules: make(map[string]Rule)}

	enLocale := en.New()
	translator, found := ut.New(enLocale, enLocale).GetTranslator("en")
	if !found {
		panic(errors.New("en translator was not found"))
	}
	if err := enTranslation.RegisterDefaultTranslations(v.validate, translator); err != nil {
		panic(errors.PrefixError(err, "translator was not registered"))
	}
	v.translator = translator

	// Error messages use JSON field names, anonymous fields are removed from the namespace
	v.validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		if field.Anonymous {
			return nestedName
		}
		for _, tag := range []string{"json", "yaml", "configKey"} {
			name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return field.Name
	})

	defaultRules := []Rule{
		{
			// IDs are used in etcd keys and output directory names
			Tag: "identifier",
			FuncNoCtx: func(fl validator.FieldLevel) bool {
				return identifierRegexp.MatchString(fl.Field().String())
			},
			ErrorMsg: "can only contain alphanumeric characters, underscore and dash",
		},
	}

	for _, rule := range append(defaultRules, rules...) {
		v.registerRule(rule)
	}

	return v
}

// Validate validates a struct or each item of a slice.
func (v *Validator) Validate(ctx context.Context, value any) error {
	return v.ValidateCtx(ctx, value, "dive", "")
}

// ValidateValue validates a single value by the tag.
func (v *Validator) ValidateValue(value any, tag string) error {
	return v.ValidateCtx(context.Background(), value, tag, "")
}

// ValidateCtx validates the value, errors are prefixed by the namespace.
func (v *Validator) ValidateCtx(ctx context.Context, value any, tag string, namespace string) error {
	var err error
	isStruct := false
	if rv := reflect.Indirect(reflect.ValueOf(value)); rv.Kind() == reflect.Struct {
		isStruct = true
		err = v.validate.StructCtx(ctx, value)
	} else {
		err = v.validate.VarCtx(ctx, value, tag)
	}

	var validationErrs validator.ValidationErrors
	if err == nil {
		return nil
	} else if !errors.As(err, &validationErrs) {
		return err
	}

	errs := errors.NewMultiError()
	for _, e := range validationErrs {
		errs.Append(v.formatError(e, namespace, isStruct))
	}
	return errs.ErrorOrNil()
}

func (v *Validator) registerRule(rule Rule) {
	var err error
	if rule.Func != nil {
		err = v.validate.RegisterValidationCtx(rule.Tag, rule.Func)
	} else {
		err = v.validate.RegisterValidation(rule.Tag, rule.FuncNoCtx)
	}
	if err != nil {
		panic(err)
	}
	v.rules[rule.Tag] = rule
}

func (v *Validator) formatError(e validator.FieldError, namespace string, isStruct bool) error {
	var msg string
	if rule, ok := v.rules[e.Tag()]; ok && rule.ErrorMsgFunc != nil {
		msg = rule.ErrorMsgFunc(e)
	} else if ok && rule.ErrorMsg != "" {
		msg = rule.ErrorMsg
	} else {
		msg = strings.TrimSpace(strings.TrimPrefix(e.Translate(v.translator), e.Field()))
	}

	path := strings.ReplaceAll(e.Namespace(), nestedName+".", "")
	if isStruct {
		// Remove the struct name
		if _, after, found := strings.Cut(path, "."); found {
			path = after
		}
	}

	switch {
	case namespace != "" && path != "":
		path = namespace + "." + path
	case namespace != "":
		path = namespace
	}

	if path == "" {
		return errors.New(msg)
	}
	return errors.New(fmt.Sprintf("%q %s", path, msg))
}
