package model

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"testing"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !crockfordBase32.MatchString(id) {
		t.Errorf("NewID() = %q, does not match Crockford Base32 ULID format", id)
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("NewID() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StateActive, StateCompleted, true},
		{StateActive, StateTerminated, true},
		{StateActive, StateActive, false},
		{StateCompleted, StateActive, false},
		{StateCompleted, StateTerminated, false},
		{StateTerminated, StateCompleted, false},
		{"unknown", StateCompleted, false},
	}
	for _, tt := range tests {
		if got := ValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestProcessInstanceEnded(t *testing.T) {
	for state, want := range map[string]bool{
		StateActive:     false,
		StateCompleted:  true,
		StateTerminated: true,
	} {
		p := &ProcessInstance{State: state}
		if got := p.Ended(); got != want {
			t.Errorf("Ended() with state %q = %v, want %v", state, got, want)
		}
	}
}

func TestJobIncident(t *testing.T) {
	if (&Job{Retries: DefaultJobRetries}).Incident() {
		t.Error("job with retries left reported as incident")
	}
	if !(&Job{Retries: 0}).Incident() {
		t.Error("job without retries not reported as incident")
	}
}

func TestTypedValueNormalize(t *testing.T) {
	tests := []struct {
		in       TypedValue
		wantType string
		want     any
	}{
		{TypedValue{Value: "x"}, TypeString, "x"},
		{TypedValue{Value: true}, TypeBoolean, true},
		{TypedValue{Value: float64(1000)}, TypeInteger, int64(1000)},
		{TypedValue{Value: 2.5}, TypeDouble, 2.5},
		{TypedValue{Value: nil}, TypeNull, nil},
		{TypedValue{Type: TypeInteger, Value: float64(7)}, TypeInteger, int64(7)},
		{TypedValue{Type: TypeDouble, Value: float64(7)}, TypeDouble, float64(7)},
		{TypedValue{Value: int64(3e9)}, TypeLong, int64(3e9)},
		{TypedValue{Value: json.Number("42")}, TypeInteger, int64(42)},
		{TypedValue{Value: json.Number("9007199254740993")}, TypeLong, int64(9007199254740993)},
		{TypedValue{Value: json.Number("0.25")}, TypeDouble, 0.25},
		{TypedValue{Type: TypeLong, Value: json.Number("9007199254740993")}, TypeLong, int64(9007199254740993)},
		{TypedValue{Type: TypeInteger, Value: json.Number("1e3")}, TypeInteger, int64(1000)},
		{TypedValue{Type: TypeInteger, Value: float64(math.MaxInt32)}, TypeInteger, int64(math.MaxInt32)},
	}
	for _, tt := range tests {
		got, err := tt.in.Normalize()
		if err != nil {
			t.Fatalf("Normalize(%+v): %v", tt.in, err)
		}
		if got.Type != tt.wantType {
			t.Errorf("Normalize(%+v).Type = %q, want %q", tt.in, got.Type, tt.wantType)
		}
		if got.Value != tt.want {
			t.Errorf("Normalize(%+v).Value = %#v, want %#v", tt.in, got.Value, tt.want)
		}
	}
}

func TestTypedValueNormalizeRejectsMismatch(t *testing.T) {
	bad := []TypedValue{
		{Type: TypeInteger, Value: 1.5},
		{Type: TypeInteger, Value: "1"},
		{Type: TypeBoolean, Value: "true"},
		{Type: TypeString, Value: 3},
		{Type: "Date", Value: "2026-01-01"},
		{Type: TypeInteger, Value: 3e9},
		{Type: TypeInteger, Value: 1e20},
		{Type: TypeInteger, Value: json.Number("3000000000")},
		{Type: TypeLong, Value: 1e20},
		{Type: TypeLong, Value: json.Number("99999999999999999999")},
		{Type: TypeLong, Value: json.Number("1.5")},
	}
	for _, tv := range bad {
		if _, err := tv.Normalize(); !errors.Is(err, ErrInvalidVariable) {
			t.Errorf("Normalize(%+v) error = %v, want ErrInvalidVariable", tv, err)
		}
	}
}

func TestVariablesValues(t *testing.T) {
	vars := Variables{
		"amount":   NewTypedValue(int64(100)),
		"approved": NewTypedValue(false),
	}
	values := vars.Values()
	if values["amount"] != int64(100) {
		t.Errorf("amount = %#v, want 100", values["amount"])
	}
	if values["approved"] != false {
		t.Errorf("approved = %#v, want false", values["approved"])
	}
}

func TestDecodeValueKeepsLargeIntegers(t *testing.T) {
	raw, err := json.Marshal(int64(9007199254740993))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	v, err := DecodeValue(raw)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	tv, err := TypedValue{Type: TypeLong, Value: v}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if tv.Value != int64(9007199254740993) {
		t.Errorf("value = %#v, want 9007199254740993", tv.Value)
	}
}
