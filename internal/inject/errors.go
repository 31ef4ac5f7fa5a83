package inject

import (
	"errors"
	"strings"
)

// Sentinel errors for the container.
var (
	// ErrDuplicateKey is matched by DuplicateKeyError.
	ErrDuplicateKey = errors.New("duplicate registration key")

	// ErrUnresolvable is matched by UnresolvableError.
	ErrUnresolvable = errors.New("unresolvable components")

	// ErrNotRegistered is returned when deleting an unknown registration.
	ErrNotRegistered = errors.New("not registered")

	// ErrNodeFactory is returned when the host cannot instantiate a template.
	ErrNodeFactory = errors.New("node factory failed")

	// ErrNilInstance is returned when registering nil.
	ErrNilInstance = errors.New("instance cannot be nil")

	// ErrTypeMismatch is returned when an instance is not assignable to the
	// type it is registered as.
	ErrTypeMismatch = errors.New("instance does not implement registered type")

	// ErrNoTree is returned by operations that need the host tree.
	ErrNoTree = errors.New("container has no host tree")

	// ErrBadConstructor is returned for constructors that are not functions
	// returning a value and optionally an error.
	ErrBadConstructor = errors.New("invalid constructor")
)

// DuplicateKeyError reports a registration whose key is already taken.
// It is fatal: nothing from the failed registration was inserted.
type DuplicateKeyError struct {
	Key Key
}

// Error implements the error interface.
func (e *DuplicateKeyError) Error() string {
	return "duplicate registration key " + e.Key.String()
}

// Is allows errors.Is to match ErrDuplicateKey.
func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

// UnresolvableError reports components that no construction pass could
// build, with the keys their constructors were missing.
type UnresolvableError struct {
	Components []string
	Missing    []Key
}

// Error implements the error interface.
func (e *UnresolvableError) Error() string {
	missing := make([]string, len(e.Missing))
	for i, k := range e.Missing {
		missing[i] = k.String()
	}
	return "unresolvable components [" + strings.Join(e.Components, ", ") +
		"]: missing [" + strings.Join(missing, ", ") + "]"
}

// Is allows errors.Is to match ErrUnresolvable.
func (e *UnresolvableError) Is(target error) bool {
	return target == ErrUnresolvable
}
