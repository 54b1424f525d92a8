package feeders

import (
	"fmt"
	"os"
	"reflect"
	"strings"
)

// EnvFeeder reads environment variables named PREFIX_<env tag>. Only fields
// carrying an `env` tag are considered; nested structs are walked with the
// same prefix. Empty variables are ignored.
type EnvFeeder struct {
	Prefix string
}

// NewEnvFeeder creates an EnvFeeder for the given prefix
func NewEnvFeeder(prefix string) EnvFeeder {
	return EnvFeeder{Prefix: prefix}
}

// Feed reads environment variables and populates the provided structure
func (f EnvFeeder) Feed(target any) error {
	if f.Prefix == "" {
		return ErrEnvPrefixEmpty
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w, got %T", ErrInvalidTarget, target)
	}
	return f.fillStruct(rv.Elem(), strings.ToUpper(f.Prefix))
}

func (f EnvFeeder) fillStruct(rv reflect.Value, prefix string) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)
		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != timeType {
			if err := f.fillStruct(field, prefix); err != nil {
				return err
			}
			continue
		}

		envTag, ok := fieldType.Tag.Lookup("env")
		if !ok || envTag == "" {
			continue
		}
		name := prefix + "_" + strings.ToUpper(envTag)
		value := os.Getenv(name)
		if value == "" {
			continue
		}
		converted, err := convertScalar(value, field.Type())
		if err != nil {
			return fmt.Errorf("error in field '%s': %w", fieldType.Name, wrapConvertError(value, field.Type().String(), name, err))
		}
		field.Set(converted)
	}
	return nil
}
