package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrInvalidVariable is returned when a typed variable value does not match its declared type.
var ErrInvalidVariable = errors.New("invalid variable")

// Variable type constants. The names follow the engine REST API wire format.
const (
	TypeString  = "String"
	TypeInteger = "Integer"
	TypeLong    = "Long"
	TypeDouble  = "Double"
	TypeBoolean = "Boolean"
	TypeJSON    = "Json"
	TypeNull    = "Null"
)

// TypedValue is a variable value with its declared type, e.g.
// {"type":"Integer","value":1000}.
type TypedValue struct {
	Type  string `json:"type,omitempty"`
	Value any    `json:"value"`
}

// Variables maps variable names to typed values.
type Variables map[string]TypedValue

// Values returns the plain values, keyed by variable name.
func (v Variables) Values() map[string]any {
	out := make(map[string]any, len(v))
	for name, tv := range v {
		out[name] = tv.Value
	}
	return out
}

// NewTypedValue wraps a Go value, inferring its type.
func NewTypedValue(v any) TypedValue {
	tv, err := TypedValue{Value: v}.Normalize()
	if err != nil {
		return TypedValue{Type: TypeJSON, Value: v}
	}
	return tv
}

// DecodeValue decodes a JSON value keeping numbers as json.Number, so
// integers above 2^53 survive until Normalize converts them.
func DecodeValue(data []byte) (any, error) {
	var v any
	if err := DecodeJSON(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeJSON unmarshals data into v with numbers decoded as json.Number.
func DecodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// Normalize infers a missing type and coerces the value to the Go
// representation of its type: int64 for Integer and Long, float64 for
// Double. Integer values must fit in 32 bits.
func (t TypedValue) Normalize() (TypedValue, error) {
	if t.Type == "" {
		t.Type = inferType(t.Value)
	}

	switch t.Type {
	case TypeNull:
		return TypedValue{Type: TypeNull}, nil
	case TypeString:
		s, ok := t.Value.(string)
		if !ok {
			return t, fmt.Errorf("%w: %v is not a String", ErrInvalidVariable, t.Value)
		}
		return TypedValue{Type: TypeString, Value: s}, nil
	case TypeBoolean:
		b, ok := t.Value.(bool)
		if !ok {
			return t, fmt.Errorf("%w: %v is not a Boolean", ErrInvalidVariable, t.Value)
		}
		return TypedValue{Type: TypeBoolean, Value: b}, nil
	case TypeInteger, TypeLong:
		n, ok := toInt64(t.Value)
		if !ok {
			return t, fmt.Errorf("%w: %v is not a valid %s", ErrInvalidVariable, t.Value, t.Type)
		}
		if t.Type == TypeInteger && (n < math.MinInt32 || n > math.MaxInt32) {
			return t, fmt.Errorf("%w: %d out of Integer range", ErrInvalidVariable, n)
		}
		return TypedValue{Type: t.Type, Value: n}, nil
	case TypeDouble:
		f, ok := toFloat(t.Value)
		if !ok {
			return t, fmt.Errorf("%w: %v is not a Double", ErrInvalidVariable, t.Value)
		}
		return TypedValue{Type: TypeDouble, Value: f}, nil
	case TypeJSON:
		return t, nil
	default:
		return t, fmt.Errorf("%w: unknown type %q", ErrInvalidVariable, t.Type)
	}
}

// integerType is Integer for values that fit in 32 bits and Long otherwise.
func integerType(n int64) string {
	if n < math.MinInt32 || n > math.MaxInt32 {
		return TypeLong
	}
	return TypeInteger
}

func inferType(v any) string {
	switch x := v.(type) {
	case nil:
		return TypeNull
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	case int32:
		return TypeInteger
	case int:
		return integerType(int64(x))
	case int64:
		return integerType(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return integerType(n)
		}
		return TypeDouble
	case float32:
		return TypeDouble
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return integerType(int64(x))
		}
		return TypeDouble
	default:
		return TypeJSON
	}
}

// toInt64 converts whole numbers that fit in an int64. json.Number values
// are parsed exactly.
func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case json.Number:
		if n, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return n, true
		}
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case float32:
		return floatToInt64(float64(x))
	case float64:
		return floatToInt64(x)
	default:
		return 0, false
	}
}

func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}
