package app

import (
	"errors"
	"fmt"
)

// ErrNoConfig is returned when Options carries no configuration.
var ErrNoConfig = errors.New("no configuration")

// ComponentError represents an error from a specific component.
type ComponentError struct {
	Component string // Component name (e.g., "bus", "container", "tracing")
	Action    string // Action being performed
	Err       error  // Underlying error
}

// NewComponentError creates a new ComponentError.
func NewComponentError(component, action string, err error) *ComponentError {
	return &ComponentError{
		Component: component,
		Action:    action,
		Err:       err,
	}
}

func (e *ComponentError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s: %s: %v", e.Component, e.Action, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Component, e.Err)
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}
