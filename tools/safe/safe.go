package safe

import (
	"fmt"
	"reflect"

	"SCProject/logger"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required fields during struct initialization.
func MustNotNil(v any, name string) {
	if v == nil || reflect.ValueOf(v).IsNil() {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
}

// Go starts a goroutine that recovers from panics, so one bad handler
// cannot take the whole gateway down.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
