package model

import (
	"fmt"
	"math"
	"strings"
)

// Kind identifies the payload carried by a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindInt
	KindInt2
	KindInt3
	KindInt4
	KindInt8
	KindInt16
	KindFloat
	KindFloat2
	KindFloat3
	KindFloat4
	KindBool
	KindString
	// KindAny is only meaningful during composition, where it matches every kind.
	KindAny
)

var kindNames = map[Kind]string{
	KindNone:   "none",
	KindInt:    "int",
	KindInt2:   "int2",
	KindInt3:   "int3",
	KindInt4:   "int4",
	KindInt8:   "int8",
	KindInt16:  "int16",
	KindFloat:  "float",
	KindFloat2: "float2",
	KindFloat3: "float3",
	KindFloat4: "float4",
	KindBool:   "bool",
	KindString: "string",
	KindAny:    "any",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown value kind: %d", uint8(k))
	}
	return []byte(name), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for kind, candidate := range kindNames {
		if candidate == name {
			return kind, nil
		}
	}
	return KindNone, fmt.Errorf("unknown value kind: %q", name)
}

// IsInt reports whether the kind is a scalar or vector integer.
func (k Kind) IsInt() bool {
	return k >= KindInt && k <= KindInt16
}

// IsFloat reports whether the kind is a scalar or vector float.
func (k Kind) IsFloat() bool {
	return k >= KindFloat && k <= KindFloat4
}

// Components is the number of numeric lanes for the kind, 0 for non-numeric kinds.
func (k Kind) Components() int {
	switch k {
	case KindInt, KindFloat:
		return 1
	case KindInt2, KindFloat2:
		return 2
	case KindInt3, KindFloat3:
		return 3
	case KindInt4, KindFloat4:
		return 4
	case KindInt8:
		return 8
	case KindInt16:
		return 16
	default:
		return 0
	}
}

// IntBits is the lane width of an integer kind.
func (k Kind) IntBits() int {
	switch k {
	case KindInt, KindInt2:
		return 64
	case KindInt3, KindInt4:
		return 32
	case KindInt8:
		return 16
	case KindInt16:
		return 8
	default:
		return 0
	}
}

// Accepts reports whether a value of kind other satisfies k during composition.
func (k Kind) Accepts(other Kind) bool {
	return k == KindAny || other == KindAny || k == other
}

// Value is the tagged payload exchanged between operations and stored in
// operation parameters.
type Value struct {
	Kind   Kind      `json:"kind"`
	Ints   []int64   `json:"ints,omitempty"`
	Floats []float64 `json:"floats,omitempty"`
	Bool   bool      `json:"bool,omitempty"`
	Str    string    `json:"str,omitempty"`
}

func None() Value {
	return Value{Kind: KindNone}
}

func Int(v int64) Value {
	return Value{Kind: KindInt, Ints: []int64{v}}
}

func Float(v float64) Value {
	return Value{Kind: KindFloat, Floats: []float64{v}}
}

func Bool(v bool) Value {
	return Value{Kind: KindBool, Bool: v}
}

func String(v string) Value {
	return Value{Kind: KindString, Str: v}
}

// IntVector builds an integer vector value; lanes are truncated to the kind's width.
func IntVector(kind Kind, lanes ...int64) (Value, error) {
	if !kind.IsInt() {
		return Value{}, fmt.Errorf("kind %s is not an integer kind", kind)
	}
	if len(lanes) != kind.Components() {
		return Value{}, fmt.Errorf("kind %s expects %d lanes, got %d", kind, kind.Components(), len(lanes))
	}
	ints := make([]int64, len(lanes))
	for i, lane := range lanes {
		ints[i] = TruncateInt(kind, lane)
	}
	return Value{Kind: kind, Ints: ints}, nil
}

// FloatVector builds a float vector value; 32-bit kinds are rounded to float32.
func FloatVector(kind Kind, lanes ...float64) (Value, error) {
	if !kind.IsFloat() {
		return Value{}, fmt.Errorf("kind %s is not a float kind", kind)
	}
	if len(lanes) != kind.Components() {
		return Value{}, fmt.Errorf("kind %s expects %d lanes, got %d", kind, kind.Components(), len(lanes))
	}
	floats := make([]float64, len(lanes))
	for i, lane := range lanes {
		floats[i] = RoundFloat(kind, lane)
	}
	return Value{Kind: kind, Floats: floats}, nil
}

// TruncateInt converts v to the lane width of kind with two's complement wrap.
func TruncateInt(kind Kind, v int64) int64 {
	switch kind.IntBits() {
	case 32:
		return int64(int32(v))
	case 16:
		return int64(int16(v))
	case 8:
		return int64(int8(v))
	default:
		return v
	}
}

// SaturateInt converts f to the nearest integer representable in the lane
// width of kind, clamping at the bounds. NaN maps to 0.
func SaturateInt(kind Kind, f float64) int64 {
	if math.IsNaN(f) {
		return 0
	}
	bits := kind.IntBits()
	if bits == 0 {
		bits = 64
	}
	hi := float64(int64(1)<<(bits-1) - 1)
	lo := -float64(int64(1) << (bits - 1))
	if bits == 64 {
		hi = math.MaxInt64
		lo = math.MinInt64
	}
	if f >= hi {
		if bits == 64 {
			return math.MaxInt64
		}
		return int64(hi)
	}
	if f <= lo {
		if bits == 64 {
			return math.MinInt64
		}
		return int64(lo)
	}
	return int64(f)
}

// RoundFloat applies the lane precision of kind.
func RoundFloat(kind Kind, v float64) float64 {
	switch kind {
	case KindFloat3, KindFloat4:
		return float64(float32(v))
	default:
		return v
	}
}

func (v Value) IsNone() bool {
	return v.Kind == KindNone
}

// Float64 returns the scalar numeric payload.
func (v Value) Float64() (float64, bool) {
	switch v.Kind {
	case KindFloat:
		if len(v.Floats) == 0 {
			return 0, false
		}
		return v.Floats[0], true
	case KindInt:
		if len(v.Ints) == 0 {
			return 0, false
		}
		return float64(v.Ints[0]), true
	default:
		return 0, false
	}
}

// Int64 returns the scalar integer payload.
func (v Value) Int64() (int64, bool) {
	if v.Kind != KindInt || len(v.Ints) == 0 {
		return 0, false
	}
	return v.Ints[0], true
}

func (v Value) Clone() Value {
	out := Value{Kind: v.Kind, Bool: v.Bool, Str: v.Str}
	if v.Ints != nil {
		out.Ints = append([]int64(nil), v.Ints...)
	}
	if v.Floats != nil {
		out.Floats = append([]float64(nil), v.Floats...)
	}
	return out
}

func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind || v.Bool != other.Bool || v.Str != other.Str {
		return false
	}
	if len(v.Ints) != len(other.Ints) || len(v.Floats) != len(other.Floats) {
		return false
	}
	for i := range v.Ints {
		if v.Ints[i] != other.Ints[i] {
			return false
		}
	}
	for i := range v.Floats {
		if v.Floats[i] != other.Floats[i] {
			return false
		}
	}
	return true
}

// Validate checks that the payload matches the kind's lane layout.
func (v Value) Validate() error {
	switch {
	case v.Kind.IsInt():
		if len(v.Ints) != v.Kind.Components() {
			return fmt.Errorf("%s value has %d lanes, want %d", v.Kind, len(v.Ints), v.Kind.Components())
		}
	case v.Kind.IsFloat():
		if len(v.Floats) != v.Kind.Components() {
			return fmt.Errorf("%s value has %d lanes, want %d", v.Kind, len(v.Floats), v.Kind.Components())
		}
	case v.Kind == KindAny:
		return fmt.Errorf("any is not a concrete value kind")
	}
	return nil
}

func (v Value) String() string {
	switch {
	case v.Kind == KindNone:
		return "none"
	case v.Kind == KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case v.Kind == KindString:
		return fmt.Sprintf("%q", v.Str)
	case v.Kind == KindInt && len(v.Ints) == 1:
		return fmt.Sprintf("%d", v.Ints[0])
	case v.Kind == KindFloat && len(v.Floats) == 1:
		return fmt.Sprintf("%g", v.Floats[0])
	case v.Kind.IsInt():
		return fmt.Sprintf("%s%v", v.Kind, v.Ints)
	case v.Kind.IsFloat():
		return fmt.Sprintf("%s%v", v.Kind, v.Floats)
	default:
		return v.Kind.String()
	}
}
