package scheduling

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidScheduleConfiguration is returned for malformed availability
	// input: unparseable HH:MM values, unknown weekdays, inverted windows,
	// breaks outside their window, non-positive durations or bad dates.
	ErrInvalidScheduleConfiguration = errors.New("invalid schedule configuration")

	// ErrUnknownPolicy is returned when a waitlist policy name is not registered.
	ErrUnknownPolicy = errors.New("unknown waitlist policy")
)

// ConfigError describes which field of the configuration was rejected.
type ConfigError struct {
	RuleID string
	Field  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("%s: rule %s: %s %q: %s", ErrInvalidScheduleConfiguration, e.RuleID, e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("%s: %s %q: %s", ErrInvalidScheduleConfiguration, e.Field, e.Value, e.Reason)
}

// Is lets errors.Is match ConfigError against ErrInvalidScheduleConfiguration.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidScheduleConfiguration
}

func configErr(field, value, reason string) *ConfigError {
	return &ConfigError{Field: field, Value: value, Reason: reason}
}
