// Package payload models loosely-shaped backend JSON as a tagged union and
// locates the substantive record array inside arbitrary response envelopes.
package payload

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind is the tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a semi-structured JSON value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	num  json.Number
	str  string
	arr  []Value
	obj  *Object
}

// Object is a JSON object that remembers key insertion order.
type Object struct {
	keys   []string
	fields map[string]Value
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{fields: make(map[string]Value)}
}

// Set adds or replaces key. New keys are appended to the iteration order.
func (o *Object) Set(key string, v Value) *Object {
	if _, ok := o.fields[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
	return o
}

// Keys returns keys in document order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len is the number of keys. A nil object has none.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	v, ok := o.fields[key]
	return v, ok
}

// GetFold is Get with an exact match first, then a case-insensitive one.
func (o *Object) GetFold(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	if v, ok := o.fields[key]; ok {
		return v, true
	}
	for _, k := range o.keys {
		if strings.EqualFold(k, key) {
			return o.fields[k], true
		}
	}
	return Value{}, false
}

func Null() Value                 { return Value{} }
func Bool(b bool) Value           { return Value{kind: KindBool, b: b} }
func String(s string) Value       { return Value{kind: KindString, str: s} }
func Array(items ...Value) Value  { return Value{kind: KindArray, arr: items} }
func ObjectValue(o *Object) Value { return Value{kind: KindObject, obj: o} }

// Number builds a numeric value from a float.
func Number(f float64) Value {
	return Value{kind: KindNumber, num: json.Number(strconv.FormatFloat(f, 'f', -1, 64))}
}

// Int builds a numeric value from an integer.
func Int(i int64) Value {
	return Value{kind: KindNumber, num: json.Number(strconv.FormatInt(i, 10))}
}

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }
func (v Value) IsArray() bool   { return v.kind == KindArray }
func (v Value) IsObject() bool  { return v.kind == KindObject }
func (v Value) IsString() bool  { return v.kind == KindString }
func (v Value) IsNumber() bool  { return v.kind == KindNumber }
func (v Value) Items() []Value  { return v.arr }
func (v Value) Object() *Object { return v.obj }

// Len is the element count of an array or key count of an object, else 0.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return v.obj.Len()
	}
	return 0
}

// Get looks key up on an object value; any other kind reports absent.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject || v.obj == nil {
		return Value{}, false
	}
	return v.obj.GetFold(key)
}

// Path follows a chain of object keys.
func (v Value) Path(keys ...string) (Value, bool) {
	cur := v
	for _, k := range keys {
		next, ok := cur.Get(k)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// AsString renders scalars as text. Objects and arrays report false.
func (v Value) AsString() (string, bool) {
	switch v.kind {
	case KindString:
		return v.str, true
	case KindNumber:
		return v.num.String(), true
	case KindBool:
		return strconv.FormatBool(v.b), true
	}
	return "", false
}

// AsFloat reads numbers and numeric strings.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindNumber:
		f, err := v.num.Float64()
		return f, err == nil
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// AsInt reads numbers and numeric strings, truncating fractions.
func (v Value) AsInt() (int64, bool) {
	if v.kind == KindNumber {
		if i, err := v.num.Int64(); err == nil {
			return i, true
		}
	}
	f, ok := v.AsFloat()
	if !ok || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// AsBool reads booleans plus the usual textual and numeric spellings.
func (v Value) AsBool() (bool, bool) {
	switch v.kind {
	case KindBool:
		return v.b, true
	case KindNumber:
		f, err := v.num.Float64()
		return f != 0, err == nil
	case KindString:
		b, err := strconv.ParseBool(strings.TrimSpace(v.str))
		return b, err == nil
	}
	return false, false
}

// FromAny converts the output of encoding/json (or hand-built maps and
// slices) into a Value. Map keys are sorted since Go maps carry no order.
func FromAny(x interface{}) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case json.Number:
		return Value{kind: KindNumber, num: t}
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case int32:
		return Int(int64(t))
	case uint64:
		return Value{kind: KindNumber, num: json.Number(strconv.FormatUint(t, 10))}
	case []interface{}:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = FromAny(e)
		}
		return Array(items...)
	case []map[string]interface{}:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = FromAny(e)
		}
		return Array(items...)
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			obj.Set(k, FromAny(t[k]))
		}
		return ObjectValue(obj)
	}
	return Null()
}

// Interface converts back to plain Go values (map, slice, string, float64,
// bool, nil) for JSON rendering.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if i, err := v.num.Int64(); err == nil {
			return i
		}
		f, _ := v.num.Float64()
		return f
	case KindString:
		return v.str
	case KindArray:
		out := make([]interface{}, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, v.obj.Len())
		for _, k := range v.obj.Keys() {
			field, _ := v.obj.Get(k)
			out[k] = field.Interface()
		}
		return out
	}
	return nil
}

// MarshalJSON renders objects in their original key order.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind != KindObject {
		return json.Marshal(v.Interface())
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range v.obj.Keys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		sb.Write(kb)
		sb.WriteByte(':')
		field, _ := v.obj.Get(k)
		vb, err := field.MarshalJSON()
		if err != nil {
			return nil, err
		}
		sb.Write(vb)
	}
	sb.WriteByte('}')
	return []byte(sb.String()), nil
}
