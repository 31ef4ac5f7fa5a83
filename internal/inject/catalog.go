package inject

import (
	"fmt"
	"reflect"
)

// Catalog declares what the container builds and which host nodes it binds.
type Catalog struct {
	Components []Component
	Nodes      []NodeBinding
}

// Component describes a plain object the container constructs and owns.
type Component struct {
	// Type is the registered type. Defaults to the first constructor's
	// result type.
	Type reflect.Type

	Naming Naming
	// Name is used by NamingCustom.
	Name string
	// NameField is the struct field read by NamingFieldValue.
	NameField string

	// Constructors are tried in order, those with parameters first. With
	// none declared the zero value of Type is used.
	Constructors []Constructor

	// Persistent registrations survive scope clearing.
	Persistent bool
	// Scopes default to the current scene.
	Scopes []string
	// As lists extra types to register under.
	As []reflect.Type
	// Properties are setter-based injection points.
	Properties []Property
}

// NodeBinding selects host nodes to register during Initialize, by type,
// by group, or both.
type NodeBinding struct {
	Type  reflect.Type
	Group string

	Naming    Naming
	Name      string
	NameField string

	Persistent bool
	As         []reflect.Type
	Properties []Property
}

// Param is a constructor parameter.
type Param struct {
	// Name overrides the lookup name. Defaults to TypeName(Type).
	Name string
	Type reflect.Type
}

func (p Param) key() Key {
	name := p.Name
	if name == "" {
		name = TypeName(p.Type)
	}
	return Key{Name: name, Type: p.Type}
}

// Constructor builds a component from resolved parameters.
type Constructor struct {
	Params []Param
	Out    reflect.Type
	Call   func(args []any) (any, error)
	err    error
}

var errorType = reflect.TypeFor[error]()

// Func derives a Constructor from a Go function returning T or (T, error).
// names override the lookup names of the parameters by position; empty
// entries keep the default.
func Func(fn any, names ...string) Constructor {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return Constructor{err: fmt.Errorf("%w: %T is not a function", ErrBadConstructor, fn)}
	}
	t := v.Type()
	switch {
	case t.NumOut() == 1:
	case t.NumOut() == 2 && t.Out(1) == errorType:
	default:
		return Constructor{err: fmt.Errorf("%w: %s must return T or (T, error)", ErrBadConstructor, t)}
	}

	params := make([]Param, t.NumIn())
	for i := range params {
		params[i].Type = t.In(i)
		if i < len(names) {
			params[i].Name = names[i]
		}
	}

	return Constructor{
		Params: params,
		Out:    t.Out(0),
		Call: func(args []any) (any, error) {
			in := make([]reflect.Value, len(args))
			for i, a := range args {
				if a == nil {
					in[i] = reflect.Zero(t.In(i))
				} else {
					in[i] = reflect.ValueOf(a)
				}
			}
			out := v.Call(in)
			if len(out) == 2 && !out[1].IsNil() {
				return nil, out[1].Interface().(error)
			}
			return out[0].Interface(), nil
		},
	}
}

// Property is a setter-based injection point.
type Property struct {
	// Name identifies the member within its type.
	Name string
	// Inject overrides the lookup name. Defaults to TypeName(Type).
	Inject string
	Type   reflect.Type
	Set    func(target, value any)
}

// PropertyOf builds a typed Property for targets of type T.
func PropertyOf[T, V any](name, inject string, set func(target T, value V)) Property {
	return Property{
		Name:   name,
		Inject: inject,
		Type:   reflect.TypeFor[V](),
		Set: func(target, value any) {
			set(target.(T), value.(V))
		},
	}
}

// componentType resolves the registered type of c.
func (c Component) componentType() reflect.Type {
	if c.Type != nil {
		return c.Type
	}
	for _, ctor := range c.Constructors {
		if ctor.Out != nil {
			return ctor.Out
		}
	}
	return nil
}

// interfaces lists every interface type the catalog mentions.
func (cat Catalog) interfaces() []reflect.Type {
	var out []reflect.Type
	add := func(t reflect.Type) {
		if t != nil && t.Kind() == reflect.Interface {
			out = append(out, t)
		}
	}
	addStruct := func(t reflect.Type) {
		for _, f := range injectFields(t) {
			add(f.Type)
		}
	}
	for _, c := range cat.Components {
		for _, t := range c.As {
			add(t)
		}
		for _, ctor := range c.Constructors {
			for _, p := range ctor.Params {
				add(p.Type)
			}
		}
		for _, p := range c.Properties {
			add(p.Type)
		}
		addStruct(c.componentType())
	}
	for _, n := range cat.Nodes {
		for _, t := range n.As {
			add(t)
		}
		for _, p := range n.Properties {
			add(p.Type)
		}
		addStruct(n.Type)
	}
	return out
}
