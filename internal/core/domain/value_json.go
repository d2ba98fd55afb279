package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ParseJSON decodes exactly one JSON document into a Value, keeping object
// key order and number literals intact.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if tok, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = fmt.Errorf("unexpected trailing token %v", tok)
		}
		return Value{}, err
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
		return Null(), nil
	case bool:
		return BoolValue(t), nil
	case string:
		return StringValue(t), nil
	case json.Number:
		return parseNumber(string(t))
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		}
	}
	return Value{}, fmt.Errorf("unexpected json token %v", tok)
}

func decodeObject(dec *json.Decoder) (Value, error) {
	m := NewMap()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, fmt.Errorf("object key must be a string, got %v", tok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return Value{}, err
		}
		m.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}
	return MapValue(m), nil
}

func decodeArray(dec *json.Decoder) (Value, error) {
	items := make([]Value, 0)
	for dec.More() {
		item, err := decodeValue(dec)
		if err != nil {
			return Value{}, err
		}
		items = append(items, item)
	}
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}
	return SequenceValue(items...), nil
}

func parseNumber(literal string) (Value, error) {
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return Value{}, fmt.Errorf("parse number %q: %w", literal, err)
	}
	return Value{kind: KindNumber, num: f, str: literal}, nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (m *Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return MapValue(m).MarshalJSON()
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		return writeJSONString(buf, v.str)
	case KindNumber:
		if v.str == "" {
			return errors.New("number without literal")
		}
		buf.WriteString(v.str)
	case KindBoolean:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindDate:
		return writeJSONString(buf, v.t.UTC().Format(time.RFC3339Nano))
	case KindSequence:
		buf.WriteByte('[')
		for i, item := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		first := true
		for key, val := range v.m.All() {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			if err := writeJSONString(buf, key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := val.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown value kind %d", v.kind)
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	encoded, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(encoded)
	return nil
}

// Render returns the JSON text of v for use in messages.
func (v Value) Render() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return v.kind.String()
	}
	return string(b)
}
