package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a scalar read targets a missing key.
	ErrNotFound = errors.New("key not found")
	// ErrTypeMismatch is returned when a key holds a different kind than the
	// operation requires.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrInvalidArgument is returned for malformed input such as an empty key.
	ErrInvalidArgument = errors.New("invalid argument")
)

// TypeMismatchError describes which kind an operation wanted and which kind
// the key actually holds.
type TypeMismatchError struct {
	Key    string
	Want   Kind
	Actual Kind
}

func (e *TypeMismatchError) Error() string {
	if e.Actual == KindNone {
		return fmt.Sprintf("type mismatch: key %q does not hold a %s", e.Key, e.Want)
	}
	return fmt.Sprintf("type mismatch: key %q holds a %s, not a %s", e.Key, e.Actual, e.Want)
}

func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

func mismatch(key string, want, actual Kind) error {
	return &TypeMismatchError{Key: key, Want: want, Actual: actual}
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, key)
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidArgument)
	}
	return nil
}

func validateKeys(keys []string) error {
	for _, key := range keys {
		if err := validateKey(key); err != nil {
			return err
		}
	}
	return nil
}
