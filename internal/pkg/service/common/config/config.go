// Package config binds a configuration structure to flags, ENVs and an optional config file.
//
// Each field tagged by the "configKey" tag is mapped to a flag, nested structures are separated by a dot.
// Field can optionally have the "configUsage" tag.
// Priority of the sources: 1. flag, 2. ENV, 3. config file, 4. default value from the structure.
package config

import (
	"context"
	"encoding"
	"fmt"
	"reflect"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
	"github.com/jleaniz/turbinia/internal/pkg/validator"
)

const (
	ConfigFileFlag = "config-file"
	DefaultPrefix  = "TURBINIA_"
	configKeyTag   = "configKey"
	configUsageTag = "configUsage"
)

// BindSpec describes sources of the configuration.
type BindSpec struct {
	Name      string
	Args      []string
	EnvPrefix string
	// Lookup returns ENV value, os.LookupEnv is used in production.
	Lookup func(key string) (string, bool)
}

// HelpError is returned if the --help flag is present, Help contains the usage text.
type HelpError struct {
	Help string
}

func (h HelpError) Error() string {
	return "help requested"
}

type normalizer interface {
	Normalize()
}

type validatable interface {
	Validate() error
}

type leaf struct {
	key      string
	flagName string
	envName  string
	value    reflect.Value
}

// Bind fills the configuration structure, cfg must be a pointer to a struct with default values.
func Bind(ctx context.Context, spec BindSpec, cfg any) error {
	value := reflect.ValueOf(cfg)
	if value.Kind() != reflect.Pointer || value.Elem().Kind() != reflect.Struct {
		return errors.Errorf(`cannot bind type "%T": it is not a pointer to a struct`, cfg)
	}

	if spec.EnvPrefix == "" {
		spec.EnvPrefix = DefaultPrefix
	}

	leaves, err := collectLeaves(value.Elem(), "", spec.EnvPrefix)
	if err != nil {
		return err
	}

	flags := pflag.NewFlagSet(spec.Name, pflag.ContinueOnError)
	flags.Usage = func() {}
	flags.String(ConfigFileFlag, "", "path to a JSON/YAML configuration file")
	for _, l := range leaves {
		if err := addFlag(flags, l, usageOf(value.Elem(), l.key)); err != nil {
			return err
		}
	}

	if err := flags.Parse(spec.Args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return HelpError{Help: helpText(spec, flags)}
		}
		return errors.PrefixError(err, "invalid flags")
	}

	v := viper.New()
	if path, _ := flags.GetString(ConfigFileFlag); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errors.PrefixErrorf(err, `cannot read config file "%s"`, path)
		}
	}

	errs := errors.NewMultiError()
	for _, l := range leaves {
		if err := v.BindPFlag(l.key, flags.Lookup(l.flagName)); err != nil {
			errs.Append(err)
		}
		if spec.Lookup != nil {
			// Flag has priority over ENV
			if envValue, found := spec.Lookup(l.envName); found && !flags.Lookup(l.flagName).Changed {
				v.Set(l.key, envValue)
			}
		} else if err := v.BindEnv(l.key, l.envName); err != nil {
			errs.Append(err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}

	for _, l := range leaves {
		if err := setValue(v, l); err != nil {
			errs.AppendWithPrefixf(err, `invalid "%s"`, l.key)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}

	if n, ok := cfg.(normalizer); ok {
		n.Normalize()
	}
	if err := validator.New().Validate(ctx, cfg); err != nil {
		return errors.PrefixError(err, "invalid configuration")
	}
	if val, ok := cfg.(validatable); ok {
		if err := val.Validate(); err != nil {
			return errors.PrefixError(err, "invalid configuration")
		}
	}
	return nil
}

// FlagName converts a config key to the flag name, for example "resource.lockTimeout" to "resource-lock-timeout".
func FlagName(key string) string {
	return strcase.ToKebab(strings.ReplaceAll(key, ".", "-"))
}

// EnvName converts a config key to the ENV name, for example "resource.lockTimeout" to "TURBINIA_RESOURCE_LOCK_TIMEOUT".
func EnvName(prefix, key string) string {
	return prefix + strcase.ToScreamingSnake(FlagName(key))
}

func collectLeaves(value reflect.Value, prefix string, envPrefix string) ([]leaf, error) {
	var out []leaf
	for i := 0; i < value.NumField(); i++ {
		field := value.Type().Field(i)
		name, squash := keyOf(field)
		if name == "" && !squash {
			continue
		}

		key := name
		if prefix != "" && name != "" {
			key = prefix + "." + name
		} else if name == "" {
			key = prefix
		}

		fieldValue := value.Field(i)
		if isLeaf(fieldValue) {
			out = append(out, leaf{key: key, flagName: FlagName(key), envName: EnvName(envPrefix, key), value: fieldValue})
			continue
		}

		nested, err := collectLeaves(fieldValue, key, envPrefix)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
	}
	return out, nil
}

func keyOf(field reflect.StructField) (name string, squash bool) {
	tag, found := field.Tag.Lookup(configKeyTag)
	if !found {
		return "", false
	}
	parts := strings.Split(tag, ",")
	if parts[0] == "" && len(parts) == 2 && parts[1] == "squash" {
		return "", true
	}
	if parts[0] == "-" {
		return "", false
	}
	return parts[0], false
}

func isLeaf(v reflect.Value) bool {
	if v.CanAddr() {
		if _, ok := v.Addr().Interface().(encoding.TextUnmarshaler); ok {
			return true
		}
	}
	return v.Kind() != reflect.Struct
}

func usageOf(value reflect.Value, key string) string {
	parts := strings.Split(key, ".")
	typ := value.Type()
	var usage string
	for _, part := range parts {
		found := false
		for i := 0; i < typ.NumField(); i++ {
			field := typ.Field(i)
			if name, _ := keyOf(field); name == part {
				usage = field.Tag.Get(configUsageTag)
				typ = field.Type
				found = true
				break
			}
		}
		if !found || typ.Kind() != reflect.Struct {
			break
		}
	}
	return usage
}

func addFlag(fs *pflag.FlagSet, l leaf, usage string) error {
	if m, ok := l.value.Addr().Interface().(encoding.TextMarshaler); ok {
		text, err := m.MarshalText()
		if err != nil {
			return err
		}
		def := string(text)
		if l.value.IsZero() {
			def = ""
		}
		fs.String(l.flagName, def, usage)
		return nil
	}

	switch v := l.value.Interface().(type) {
	case string:
		fs.String(l.flagName, v, usage)
	case int:
		fs.Int(l.flagName, v, usage)
	case int64:
		fs.Int64(l.flagName, v, usage)
	case uint64:
		fs.Uint64(l.flagName, v, usage)
	case float64:
		fs.Float64(l.flagName, v, usage)
	case bool:
		fs.Bool(l.flagName, v, usage)
	case []string:
		fs.StringSlice(l.flagName, v, usage)
	default:
		if l.value.Kind() == reflect.String {
			fs.String(l.flagName, l.value.String(), usage)
			return nil
		}
		return errors.Errorf(`unexpected type "%T" of the config key "%s"`, v, l.key)
	}
	return nil
}

func setValue(v *viper.Viper, l leaf) error {
	if !v.IsSet(l.key) {
		return nil
	}

	if u, ok := l.value.Addr().Interface().(encoding.TextUnmarshaler); ok {
		str := v.GetString(l.key)
		if str == "" {
			return nil
		}
		return u.UnmarshalText([]byte(str))
	}

	switch l.value.Kind() {
	case reflect.String:
		l.value.SetString(v.GetString(l.key))
	case reflect.Int, reflect.Int64:
		l.value.SetInt(v.GetInt64(l.key))
	case reflect.Uint64:
		l.value.SetUint(v.GetUint64(l.key))
	case reflect.Float64:
		l.value.SetFloat(v.GetFloat64(l.key))
	case reflect.Bool:
		l.value.SetBool(v.GetBool(l.key))
	case reflect.Slice:
		l.value.Set(reflect.ValueOf(v.GetStringSlice(l.key)))
	default:
		return errors.Errorf(`unexpected kind "%s"`, l.value.Kind())
	}
	return nil
}

func helpText(spec BindSpec, flags *pflag.FlagSet) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Usage of \"%s\":\n", spec.Name))
	b.WriteString(flags.FlagUsages())
	b.WriteString("\nConfiguration source priority: 1. flag, 2. ENV, 3. config file\n")
	b.WriteString(fmt.Sprintf("For example, the flag \"--foo-bar\" becomes the \"%s\" ENV.\n", EnvName(spec.EnvPrefix, "fooBar")))
	return b.String()
}
