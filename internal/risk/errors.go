package risk

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig matches every *ConfigError.
	ErrInvalidConfig = errors.New("invalid threshold configuration")
	// ErrInvalidInput matches every *InputValidationError.
	ErrInvalidInput = errors.New("invalid patient input")
)

// ConfigError reports a threshold configuration the engine refuses to run with.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// InputValidationError reports malformed data for a single patient. Only that
// patient's evaluation is aborted.
type InputValidationError struct {
	PatientID string
	Field     string
	Reason    string
}

func (e *InputValidationError) Error() string {
	if e.PatientID == "" {
		return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid input for patient %s: %s: %s", e.PatientID, e.Field, e.Reason)
}

func (e *InputValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}
