// Package jsonval models extraction records as immutable JSON values.
//
// Objects keep their members in document order so that a record decoded from
// disk renders back the way the producer wrote it. Lookups never fail: a
// missing key or a walk through a non-object resolves to the null Value.
package jsonval

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Object
	Array
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Object:
		return "object"
	case Array:
		return "array"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Member is one key/value pair of an object.
type Member struct {
	Key   string
	Value Value
}

// Value is a JSON value. The zero Value is null.
type Value struct {
	kind    Kind
	boolean bool
	text    string // number literal or string contents
	members []Member
	items   []Value
}

// BoolOf returns a boolean Value.
func BoolOf(b bool) Value { return Value{kind: Bool, boolean: b} }

// NumberOf returns a number Value holding literal exactly as written.
func NumberOf(literal string) Value { return Value{kind: Number, text: literal} }

// FloatOf returns a number Value for f. NaN is representable and is never Present.
func FloatOf(f float64) Value {
	return Value{kind: Number, text: strconv.FormatFloat(f, 'f', -1, 64)}
}

// StringOf returns a string Value.
func StringOf(s string) Value { return Value{kind: String, text: s} }

// ObjectOf returns an object Value. A repeated key replaces the earlier value
// in place, which is how encoding/json treats duplicates.
func ObjectOf(members ...Member) Value {
	out := make([]Member, 0, len(members))
	index := make(map[string]int, len(members))
	for _, m := range members {
		if i, dup := index[m.Key]; dup {
			out[i].Value = m.Value
			continue
		}
		index[m.Key] = len(out)
		out = append(out, m)
	}
	return Value{kind: Object, members: out}
}

// ArrayOf returns an array Value.
func ArrayOf(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: Array, items: out}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == Null }

// Bool returns the boolean held by v.
func (v Value) Bool() (bool, bool) { return v.boolean, v.kind == Bool }

// Str returns the string held by v.
func (v Value) Str() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.text, true
}

// Len returns the number of members, items or string bytes; 0 for scalars.
func (v Value) Len() int {
	switch v.kind {
	case Object:
		return len(v.members)
	case Array:
		return len(v.items)
	case String:
		return len(v.text)
	}
	return 0
}

// Members returns a copy of the object members in document order.
func (v Value) Members() []Member {
	out := make([]Member, len(v.members))
	copy(out, v.members)
	return out
}

// Items returns a copy of the array items.
func (v Value) Items() []Value {
	out := make([]Value, len(v.items))
	copy(out, v.items)
	return out
}

// Get returns the member named key. ok is false when v is not an object or
// has no such member.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Object {
		return Value{}, false
	}
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Path walks a dotted path one key at a time and returns the leaf, or null as
// soon as the current value is not an object or lacks the next key.
func (v Value) Path(dotted string) Value {
	cur := v
	for _, key := range strings.Split(dotted, ".") {
		next, ok := cur.Get(key)
		if !ok {
			return Value{}
		}
		cur = next
	}
	return cur
}

// With returns a copy of v with dotted set to x, creating intermediate
// objects. A non-object on the way is replaced by an object.
func (v Value) With(dotted string, x Value) Value {
	key, rest, nested := strings.Cut(dotted, ".")
	base := v
	if base.kind != Object {
		base = Value{kind: Object}
	}
	child := x
	if nested {
		existing, _ := base.Get(key)
		child = existing.With(rest, x)
	}
	members := base.Members()
	for i := range members {
		if members[i].Key == key {
			members[i].Value = child
			return Value{kind: Object, members: members}
		}
	}
	return Value{kind: Object, members: append(members, Member{Key: key, Value: child})}
}

// IsNaN reports whether v is a number that does not hold a real value.
func (v Value) IsNaN() bool {
	if v.kind != Number {
		return false
	}
	f, err := strconv.ParseFloat(v.text, 64)
	return err == nil && math.IsNaN(f)
}

// Text is the plain text form of v: string contents unquoted, number literals
// as written, true/false, compact JSON for containers and "" for null.
func (v Value) Text() string {
	switch v.kind {
	case Bool:
		return strconv.FormatBool(v.boolean)
	case Number, String:
		return v.text
	case Object, Array:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return ""
}

// Present reports whether v carries a usable value: anything except null, the
// empty string and NaN.
func Present(v Value) bool {
	switch v.kind {
	case Null:
		return false
	case String:
		return v.text != ""
	case Number:
		return !v.IsNaN()
	}
	return true
}

// Equal reports whether a and b hold the same value. Number literals are
// compared as written.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Null:
		return true
	case Bool:
		return a.boolean == b.boolean
	case Number, String:
		return a.text == b.text
	case Object:
		if len(a.members) != len(b.members) {
			return false
		}
		for i := range a.members {
			if a.members[i].Key != b.members[i].Key || !Equal(a.members[i].Value, b.members[i].Value) {
				return false
			}
		}
		return true
	case Array:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	}
	return false
}
