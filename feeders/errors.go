package feeders

import (
	"errors"
	"fmt"
)

// Static error definitions for feeders
var (
	ErrInvalidTarget        = errors.New("feed target must be a non-nil pointer to a struct")
	ErrExpectedMap          = errors.New("expected map for struct field")
	ErrExpectedArray        = errors.New("expected array for slice field")
	ErrCannotConvert        = errors.New("cannot convert value to field type")
	ErrUnsupportedExtension = errors.New("unsupported config file extension")
	ErrEnvPrefixEmpty       = errors.New("env: prefix cannot be empty")
)

func wrapMapError(fieldPath string, got any) error {
	return fmt.Errorf("%w %s, got %T", ErrExpectedMap, fieldPath, got)
}

func wrapArrayError(fieldPath string, got any) error {
	return fmt.Errorf("%w %s, got %T", ErrExpectedArray, fieldPath, got)
}

func wrapConvertError(value any, fieldType, fieldPath string, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w: %v to %s for field %s: %w", ErrCannotConvert, value, fieldType, fieldPath, cause)
	}
	return fmt.Errorf("%w: %v to %s for field %s", ErrCannotConvert, value, fieldType, fieldPath)
}
