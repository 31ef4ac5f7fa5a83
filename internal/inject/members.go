package inject

import (
	"reflect"
)

// TagName is the struct tag marking injectable fields. The tag value
// overrides the lookup name:
//
//	type Player struct {
//		Bus    *event.Bus `inject:"EventBus"`
//		Weapon Weapon     `inject:""`
//	}
const TagName = "inject"

// member is one injection point: a tagged field or a declared property.
type member struct {
	name   string
	lookup Key
	set    func(target, value reflect.Value) bool
}

// injectField is a tagged field found by injectFields.
type injectField struct {
	reflect.StructField
	lookup string
}

// injectFields lists the tagged exported fields of a struct or pointer to
// struct, including fields promoted from embedded structs.
func injectFields(t reflect.Type) []injectField {
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	var out []injectField
	for _, f := range reflect.VisibleFields(t) {
		lookup, ok := f.Tag.Lookup(TagName)
		if !ok || f.Anonymous {
			continue
		}
		out = append(out, injectField{StructField: f, lookup: lookup})
	}
	return out
}

// membersOf returns the injection points of instances of dynamic type t.
// Only pointers to structs have members.
func (c *Container) membersOf(t reflect.Type) []member {
	if ms, ok := c.members[t]; ok {
		return ms
	}
	var ms []member
	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct {
		for _, f := range injectFields(t) {
			if !f.IsExported() {
				c.log.Warn("field %s.%s is tagged %q but unexported; skipped", TypeName(t), f.Name, TagName)
				continue
			}
			name := f.lookup
			if name == "" {
				name = TypeName(f.Type)
			}
			c.declare(f.Type)
			index := f.Index
			ms = append(ms, member{
				name:   f.Name,
				lookup: Key{Name: name, Type: f.Type},
				set: func(target, value reflect.Value) bool {
					field, err := target.Elem().FieldByIndexErr(index)
					if err != nil {
						return false
					}
					field.Set(value)
					return true
				},
			})
		}
		for _, p := range c.properties[t] {
			p := p
			name := p.Inject
			if name == "" {
				name = TypeName(p.Type)
			}
			ms = append(ms, member{
				name:   "property:" + p.Name,
				lookup: Key{Name: name, Type: p.Type},
				set: func(target, value reflect.Value) bool {
					p.Set(target.Interface(), value.Interface())
					return true
				},
			})
		}
	}
	c.members[t] = ms
	return ms
}

// addProperties records declared properties for t and drops its cached
// members.
func (c *Container) addProperties(t reflect.Type, props []Property) {
	if t == nil || len(props) == 0 {
		return
	}
	c.properties[t] = append(c.properties[t], props...)
	delete(c.members, t)
}
