package safe

import (
	"fmt"
	"reflect"

	"VoiceGate/logger"
	"VoiceGate/tools/errs"

	"go.uber.org/zap"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required collaborators during construction.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// DefaultString returns the dereferenced value of a string pointer,
// or the fallback if the pointer is nil.
func DefaultString(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// Recover runs f and converts a panic into an error.
func Recover(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.ErrPanic(r)
		}
	}()
	f()
	return nil
}

// SafeGo starts a new goroutine that recovers from panic,
// so that one broken connection doesn't crash the entire program.
func SafeGo(name string, f func()) {
	go func() {
		if err := Recover(f); err != nil {
			logger.Error("[SafeGo] panic recovered", zap.String("goroutine", name), zap.Error(err))
		}
	}()
}
