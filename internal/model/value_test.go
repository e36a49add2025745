package model

import (
	"encoding/json"
	"math"
	"testing"
)

func TestKindTextRoundTrip(t *testing.T) {
	for kind := KindNone; kind <= KindAny; kind++ {
		text, err := kind.MarshalText()
		if err != nil {
			t.Fatalf("marshal %d: %v", kind, err)
		}
		var parsed Kind
		if err := parsed.UnmarshalText(text); err != nil {
			t.Fatalf("unmarshal %s: %v", text, err)
		}
		if parsed != kind {
			t.Fatalf("kind mismatch: got=%s want=%s", parsed, kind)
		}
	}
	if _, err := ParseKind("quaternion"); err == nil {
		t.Fatal("expected unknown kind error")
	}
}

func TestValueJSONUsesKindNames(t *testing.T) {
	data, err := json.Marshal(Float(1.5))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"kind":"float","floats":[1.5]}` {
		t.Fatalf("unexpected encoding: %s", data)
	}

	var decoded Value
	if err := json.Unmarshal([]byte(`{"kind":"int3","ints":[1,2,3]}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Kind != KindInt3 || len(decoded.Ints) != 3 {
		t.Fatalf("unexpected decoded value: %+v", decoded)
	}
}

func TestIntVectorTruncatesToLaneWidth(t *testing.T) {
	v, err := IntVector(KindInt16, 127, 128, -129, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)
	if err != nil {
		t.Fatalf("int vector: %v", err)
	}
	if v.Ints[0] != 127 || v.Ints[1] != -128 || v.Ints[2] != 127 {
		t.Fatalf("unexpected lanes: %v", v.Ints[:3])
	}
	if _, err := IntVector(KindInt2, 1); err == nil {
		t.Fatal("expected lane count error")
	}
}

func TestSaturateIntClampsAtBounds(t *testing.T) {
	cases := []struct {
		kind Kind
		in   float64
		want int64
	}{
		{KindInt, 1e300, math.MaxInt64},
		{KindInt, -1e300, math.MinInt64},
		{KindInt4, 1e12, math.MaxInt32},
		{KindInt8, -1e9, math.MinInt16},
		{KindInt16, 300, math.MaxInt8},
		{KindInt, math.NaN(), 0},
		{KindInt, 42.9, 42},
	}
	for _, tc := range cases {
		if got := SaturateInt(tc.kind, tc.in); got != tc.want {
			t.Fatalf("saturate %s(%g): got=%d want=%d", tc.kind, tc.in, got, tc.want)
		}
	}
}

func TestValueCloneIsIndependent(t *testing.T) {
	original, _ := FloatVector(KindFloat2, 1, 2)
	clone := original.Clone()
	clone.Floats[0] = 9
	if original.Floats[0] != 1 {
		t.Fatalf("clone aliases original: %v", original.Floats)
	}
	if original.Equal(clone) {
		t.Fatal("expected values to differ after mutation")
	}
}

func TestValidateRejectsBadLayout(t *testing.T) {
	if err := (Value{Kind: KindFloat3, Floats: []float64{1}}).Validate(); err == nil {
		t.Fatal("expected lane layout error")
	}
	if err := Int(3).Validate(); err != nil {
		t.Fatalf("validate int: %v", err)
	}
}
