package inject

import (
	"fmt"
	"reflect"

	"github.com/dshills/scenekit/internal/host"
)

// Naming selects how a registration's name is derived.
type Naming int

const (
	// NamingClassName uses the simple type name.
	NamingClassName Naming = iota
	// NamingCustom uses the declared name.
	NamingCustom
	// NamingHostObjectName uses the host object's tree name.
	NamingHostObjectName
	// NamingFieldValue reads a designated string field of the instance.
	NamingFieldValue
)

// String returns the strategy name.
func (n Naming) String() string {
	switch n {
	case NamingClassName:
		return "class-name"
	case NamingCustom:
		return "custom"
	case NamingHostObjectName:
		return "host-object-name"
	case NamingFieldValue:
		return "field-value"
	default:
		return fmt.Sprintf("naming(%d)", int(n))
	}
}

// ResolveName derives a registration name. Every strategy falls back to the
// class name when its source is empty or unavailable.
func ResolveName(n Naming, custom, nameField string, t reflect.Type, instance any) string {
	switch n {
	case NamingCustom:
		if custom != "" {
			return custom
		}
	case NamingHostObjectName:
		if obj, ok := instance.(host.Object); ok && obj.ObjectName() != "" {
			return obj.ObjectName()
		}
	case NamingFieldValue:
		if s := fieldString(instance, nameField); s != "" {
			return s
		}
	}
	if t == nil {
		t = reflect.TypeOf(instance)
	}
	return TypeName(t)
}

func fieldString(instance any, field string) string {
	if field == "" || instance == nil {
		return ""
	}
	v := reflect.ValueOf(instance)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return ""
	}
	f := v.FieldByName(field)
	if !f.IsValid() {
		return ""
	}
	switch {
	case f.Kind() == reflect.String:
		return f.String()
	case f.CanInterface():
		if s, ok := f.Interface().(fmt.Stringer); ok {
			return s.String()
		}
	}
	return ""
}
