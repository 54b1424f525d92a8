package feeders

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

// populate copies a decoded document into a struct, matching keys through
// the given struct tag (falling back to the field name, case-insensitively).
func populate(target any, data map[string]any, tag string) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w, got %T", ErrInvalidTarget, target)
	}
	return populateStruct(rv.Elem(), data, tag, "")
}

func populateStruct(rv reflect.Value, data map[string]any, tag, prefix string) error {
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rt.Field(i)
		if !field.CanSet() {
			continue
		}

		key := tagName(fieldType, tag)
		if key == "-" {
			continue
		}
		value, ok := lookup(data, key)
		if !ok || value == nil {
			continue
		}

		fieldPath := fieldType.Name
		if prefix != "" {
			fieldPath = prefix + "." + fieldType.Name
		}
		if err := setValue(field, value, tag, fieldPath); err != nil {
			return err
		}
	}
	return nil
}

func setValue(field reflect.Value, value any, tag, fieldPath string) error {
	if value == nil {
		return nil
	}
	switch {
	case field.Kind() == reflect.Struct && field.Type() != timeType:
		m, ok := asMap(value)
		if !ok {
			return wrapMapError(fieldPath, value)
		}
		return populateStruct(field, m, tag, fieldPath)

	case field.Kind() == reflect.Pointer:
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return setValue(field.Elem(), value, tag, fieldPath)

	case field.Kind() == reflect.Slice:
		items, ok := value.([]any)
		if !ok {
			return wrapArrayError(fieldPath, value)
		}
		slice := reflect.MakeSlice(field.Type(), len(items), len(items))
		for i, item := range items {
			if err := setValue(slice.Index(i), item, tag, fmt.Sprintf("%s[%d]", fieldPath, i)); err != nil {
				return err
			}
		}
		field.Set(slice)
		return nil

	case field.Kind() == reflect.Map:
		m, ok := asMap(value)
		if !ok {
			return wrapMapError(fieldPath, value)
		}
		if field.Type().Key().Kind() != reflect.String {
			return wrapConvertError(value, field.Type().String(), fieldPath, nil)
		}
		out := reflect.MakeMapWithSize(field.Type(), len(m))
		for k, v := range m {
			elem := reflect.New(field.Type().Elem()).Elem()
			if err := setValue(elem, v, tag, fieldPath+"."+k); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(field.Type().Key()), elem)
		}
		field.Set(out)
		return nil

	default:
		converted, err := convertScalar(value, field.Type())
		if err != nil {
			return wrapConvertError(value, field.Type().String(), fieldPath, err)
		}
		field.Set(converted)
		return nil
	}
}

// convertScalar converts a decoded scalar into the target type. Durations
// accept Go duration strings or integer nanoseconds; everything else goes
// through a direct conversion when the kinds are compatible, and through
// cast for strings.
func convertScalar(value any, target reflect.Type) (reflect.Value, error) {
	if target == durationType {
		switch v := value.(type) {
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(d), nil
		case time.Duration:
			return reflect.ValueOf(v), nil
		}
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(target) {
		return rv, nil
	}
	if sameClass(rv.Kind(), target.Kind()) && rv.Type().ConvertibleTo(target) {
		return rv.Convert(target), nil
	}

	converted, err := cast.FromType(fmt.Sprint(value), target)
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.ValueOf(converted)
	if out.Type() != target {
		out = out.Convert(target)
	}
	return out, nil
}

func sameClass(a, b reflect.Kind) bool {
	return kindClass(a) != 0 && kindClass(a) == kindClass(b)
}

func kindClass(k reflect.Kind) int {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return 1
	case reflect.String:
		return 2
	case reflect.Bool:
		return 3
	default:
		return 0
	}
}

func tagName(field reflect.StructField, tag string) string {
	name := field.Tag.Get(tag)
	if name == "" {
		return field.Name
	}
	name, _, _ = strings.Cut(name, ",")
	if name == "" {
		return field.Name
	}
	return name
}

func lookup(data map[string]any, key string) (any, bool) {
	if v, ok := data[key]; ok {
		return v, true
	}
	for k, v := range data {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func asMap(value any) (map[string]any, bool) {
	switch m := value.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = v
		}
		return out, true
	default:
		return nil, false
	}
}
