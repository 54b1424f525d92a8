package modsys

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

const (
	tagDefault  = "default"
	tagRequired = "required"
)

var durationType = reflect.TypeOf(time.Duration(0))

// ConfigValidator is implemented by config structs with checks beyond
// required fields. ValidateConfig calls it last.
type ConfigValidator interface {
	Validate() error
}

// ProcessConfigDefaults fills zero-valued fields from their `default` tag.
// Scalars are parsed with cast, durations with time.ParseDuration, and slices
// and maps from JSON:
//
//	type Config struct {
//	    Timeout time.Duration     `default:"30s"`
//	    Tags    []string          `default:"[\"a\",\"b\"]"`
//	    Labels  map[string]string `default:"{\"team\":\"core\"}"`
//	}
func ProcessConfigDefaults(cfg any) error {
	v, err := configStruct(cfg)
	if err != nil {
		return err
	}
	return walkConfig(v, "", func(field reflect.Value, sf reflect.StructField, path string) error {
		raw, ok := sf.Tag.Lookup(tagDefault)
		if !ok || !field.IsZero() {
			return nil
		}
		if err := setDefault(field, raw); err != nil {
			return fmt.Errorf("failed to set default value for %s: %w", path, err)
		}
		return nil
	})
}

// ValidateConfigRequired reports every `required:"true"` field still holding
// its zero value.
func ValidateConfigRequired(cfg any) error {
	v, err := configStruct(cfg)
	if err != nil {
		return err
	}
	var missing []string
	_ = walkConfig(v, "", func(field reflect.Value, sf reflect.StructField, path string) error {
		if sf.Tag.Get(tagRequired) == "true" && field.IsZero() {
			missing = append(missing, path)
		}
		return nil
	})
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigRequiredFieldMissing, strings.Join(missing, ", "))
	}
	return nil
}

// ValidateConfig applies defaults, checks required fields and finally calls
// Validate when cfg implements ConfigValidator.
func ValidateConfig(cfg any) error {
	if err := ProcessConfigDefaults(cfg); err != nil {
		return err
	}
	if err := ValidateConfigRequired(cfg); err != nil {
		return err
	}
	if validator, ok := cfg.(ConfigValidator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrConfigValidationFailed, err)
		}
	}
	return nil
}

// GenerateSampleConfig renders a zero config of cfg's type, with defaults
// applied, as yaml, json or toml.
func GenerateSampleConfig(cfg any, format string) ([]byte, error) {
	if _, err := configStruct(cfg); err != nil {
		return nil, err
	}
	sample := reflect.New(reflect.TypeOf(cfg).Elem()).Interface()
	if err := ProcessConfigDefaults(sample); err != nil {
		return nil, err
	}

	switch strings.ToLower(format) {
	case "yaml", "yml":
		data, err := yaml.Marshal(sample)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal to YAML: %w", err)
		}
		return data, nil
	case "json":
		data, err := json.MarshalIndent(sample, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal to JSON: %w", err)
		}
		return data, nil
	case "toml":
		var buf strings.Builder
		if err := toml.NewEncoder(&buf).Encode(sample); err != nil {
			return nil, fmt.Errorf("failed to marshal to TOML: %w", err)
		}
		return []byte(buf.String()), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormatType, format)
	}
}

func configStruct(cfg any) (reflect.Value, error) {
	if cfg == nil {
		return reflect.Value{}, ErrConfigNil
	}
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return reflect.Value{}, ErrConfigNotPointer
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, ErrConfigNotStruct
	}
	return v, nil
}

type fieldVisitor func(field reflect.Value, sf reflect.StructField, path string) error

// walkConfig visits every settable leaf field. Nested structs and non-nil
// pointers to structs are descended into; nil struct pointers are left alone.
func walkConfig(v reflect.Value, prefix string, visit fieldVisitor) error {
	t := v.Type()
	for i := range v.NumField() {
		field := v.Field(i)
		sf := t.Field(i)
		if !field.CanSet() {
			continue
		}
		path := sf.Name
		if prefix != "" {
			path = prefix + "." + sf.Name
		}

		switch {
		case field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}):
			if err := walkConfig(field, path, visit); err != nil {
				return err
			}
		case field.Kind() == reflect.Pointer && field.Type().Elem().Kind() == reflect.Struct:
			if field.IsNil() {
				if err := visit(field, sf, path); err != nil {
					return err
				}
				continue
			}
			if err := walkConfig(field.Elem(), path, visit); err != nil {
				return err
			}
		default:
			if err := visit(field, sf, path); err != nil {
				return err
			}
		}
	}
	return nil
}

func setDefault(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%w: %q: %w", ErrDefaultValueParseError, raw, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.Slice, reflect.Map:
		ptr := reflect.New(field.Type())
		if err := json.Unmarshal([]byte(raw), ptr.Interface()); err != nil {
			return fmt.Errorf("%w: %q: %w", ErrDefaultValueParseError, raw, err)
		}
		field.Set(ptr.Elem())
		return nil
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		value, err := cast.FromType(raw, field.Type())
		if err != nil {
			return fmt.Errorf("%w: %q: %w", ErrDefaultValueParseError, raw, err)
		}
		rv := reflect.ValueOf(value)
		if rv.Type() != field.Type() {
			rv = rv.Convert(field.Type())
		}
		field.Set(rv)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedTypeForDefault, field.Kind())
	}
}
