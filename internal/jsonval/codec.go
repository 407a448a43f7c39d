package jsonval

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// Non-finite marker strings. U+FDD0 is a noncharacter, so extracted text
// never carries it.
const nonFiniteMark = "\ufdd0"

var nonFinite = []string{"-Infinity", "Infinity", "NaN"}

// Parse decodes a single JSON document, keeping object members in order.
// Bare NaN, Infinity and -Infinity, which some producers emit, decode
// to number literals; NaN is then not Present.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(markNonFinite(data)))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, eris.Wrap(err, "jsonval: decode")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, eris.New("jsonval: trailing data after document")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case nil:
		return Value{}, nil
	case bool:
		return BoolOf(t), nil
	case json.Number:
		return NumberOf(t.String()), nil
	case string:
		if lit, ok := strings.CutPrefix(t, nonFiniteMark); ok && slices.Contains(nonFinite, lit) {
			return NumberOf(lit), nil
		}
		return StringOf(t), nil
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		}
	}
	return Value{}, eris.Errorf("unexpected token %v", tok)
}

// markNonFinite quotes bare non-finite literals outside strings so the
// standard decoder accepts them. Outside strings no other JSON token contains
// these letters.
func markNonFinite(data []byte) []byte {
	if !bytes.Contains(data, []byte("NaN")) && !bytes.Contains(data, []byte("Infinity")) {
		return data
	}

	out := make([]byte, 0, len(data)+16)
	inString, escaped := false, false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			out = append(out, c)
			continue
		}
		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}
		matched := false
		for _, lit := range nonFinite {
			if bytes.HasPrefix(data[i:], []byte(lit)) {
				out = append(out, '"')
				out = append(out, nonFiniteMark...)
				out = append(out, lit...)
				out = append(out, '"')
				i += len(lit) - 1
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, c)
		}
	}
	return out
}

func decodeObject(dec *json.Decoder) (Value, error) {
	var members []Member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, eris.Errorf("object key is %T", tok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return Value{}, err
		}
		members = append(members, Member{Key: key, Value: val})
	}
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}
	return ObjectOf(members...), nil
}

func decodeArray(dec *json.Decoder) (Value, error) {
	items := []Value{}
	for dec.More() {
		val, err := decodeValue(dec)
		if err != nil {
			return Value{}, err
		}
		items = append(items, val)
	}
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}
	return Value{kind: Array, items: items}, nil
}

// MarshalJSON writes v with object members in their stored order. Number
// literals that are not valid JSON (NaN) are written as null.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		if v.boolean {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		if json.Valid([]byte(v.text)) {
			buf.WriteString(v.text)
		} else {
			buf.WriteString("null")
		}
	case String:
		b, err := json.Marshal(v.text)
		if err != nil {
			return err
		}
		buf.Write(b)
	case Object:
		buf.WriteByte('{')
		for i, m := range v.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(m.Key)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := m.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case Array:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return eris.Errorf("jsonval: cannot encode %s", v.kind)
	}
	return nil
}

// UnmarshalJSON decodes data into v, keeping member order.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
