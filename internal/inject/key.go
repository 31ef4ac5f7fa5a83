package inject

import (
	"reflect"
)

// Key identifies a registration: a name and the type it is registered as.
// Two keys are equal when both fields are equal, so Key is used directly as
// a map key.
type Key struct {
	Name string
	Type reflect.Type
}

// KeyOf returns the key for T. An empty name means TypeName of T.
func KeyOf[T any](name string) Key {
	t := reflect.TypeFor[T]()
	if name == "" {
		name = TypeName(t)
	}
	return Key{Name: name, Type: t}
}

// String formats the key as "Name:Type".
func (k Key) String() string {
	if k.Type == nil {
		return k.Name + ":<nil>"
	}
	return k.Name + ":" + TypeName(k.Type)
}

// TypeName returns the simple name of t with pointers stripped, e.g. "Bus"
// for *event.Bus.
func TypeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
