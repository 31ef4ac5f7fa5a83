package script

import (
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	lua "github.com/yuin/gopher-lua"
)

// toLua converts an event payload for a script handler. Structs are flattened
// to tables keyed by field name.
func toLua(L *lua.LState, v any) (lua.LValue, error) {
	switch val := v.(type) {
	case nil:
		return lua.LNil, nil
	case lua.LValue:
		return val, nil
	case bool:
		return lua.LBool(val), nil
	case string:
		return lua.LString(val), nil
	case int:
		return lua.LNumber(val), nil
	case int32:
		return lua.LNumber(val), nil
	case int64:
		return lua.LNumber(val), nil
	case uint64:
		return lua.LNumber(val), nil
	case float32:
		return lua.LNumber(val), nil
	case float64:
		return lua.LNumber(val), nil
	case []any:
		tbl := L.NewTable()
		for _, item := range val {
			lv, err := toLua(L, item)
			if err != nil {
				return nil, err
			}
			tbl.Append(lv)
		}
		return tbl, nil
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range val {
			lv, err := toLua(L, item)
			if err != nil {
				return nil, err
			}
			tbl.RawSetString(k, lv)
		}
		return tbl, nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return lua.LNil, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct, reflect.Map:
		var m map[string]any
		if err := mapstructure.Decode(rv.Interface(), &m); err != nil {
			return nil, fmt.Errorf("convert %T: %w", v, err)
		}
		return toLua(L, m)
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return toLua(L, items)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lua.LNumber(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float()), nil
	case reflect.String:
		return lua.LString(rv.String()), nil
	case reflect.Bool:
		return lua.LBool(rv.Bool()), nil
	default:
		return lua.LString(fmt.Sprintf("%v", v)), nil
	}
}

// tableToMap converts a Lua table to a Go map. Non-string keys are dropped.
func tableToMap(tbl *lua.LTable) map[string]any {
	result := make(map[string]any)
	tbl.ForEach(func(key, value lua.LValue) {
		if k, ok := key.(lua.LString); ok {
			result[string(k)] = fromLua(value)
		}
	})
	return result
}

// fromLua converts a Lua value to Go. Tables with only positive integer keys
// become slices.
func fromLua(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if n := val.Len(); n > 0 && val.MaxN() == n {
			isArray := true
			val.ForEach(func(k, _ lua.LValue) {
				if _, ok := k.(lua.LNumber); !ok {
					isArray = false
				}
			})
			if isArray {
				arr := make([]any, 0, n)
				for i := 1; i <= n; i++ {
					arr = append(arr, fromLua(val.RawGetInt(i)))
				}
				return arr
			}
		}
		return tableToMap(val)
	default:
		if v == lua.LNil {
			return nil
		}
		return v.String()
	}
}

// decodeInto builds a value of type t from a script table. Field names match
// case-insensitively and numbers convert to the field's kind.
func decodeInto(t reflect.Type, data map[string]any) (any, error) {
	ptr := reflect.New(t)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           ptr.Interface(),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(data); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}
