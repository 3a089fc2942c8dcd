package config

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var structValidator = sync.OnceValue(func() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
})

// Validate checks the `validate` struct tags of the given settings struct.
func Validate(v any) error {
	if err := structValidator().Struct(v); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}
