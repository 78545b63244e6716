package nanjson

import (
	"encoding/json"
	"math"
	"testing"
)

func TestMarshalNaNAsNull(t *testing.T) {
	raw, err := json.Marshal([]Float{1.5, Float(math.NaN()), -2})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != "[1.5,null,-2]" {
		t.Fatalf("marshalled = %s", raw)
	}
}

func TestUnmarshalNullAsNaN(t *testing.T) {
	var got []Float
	if err := json.Unmarshal([]byte(`[0.25, null, 7]`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got[0] != 0.25 || got[2] != 7 {
		t.Fatalf("values = %v", got)
	}
	if !math.IsNaN(float64(got[1])) {
		t.Fatalf("null must decode to NaN, got %v", got[1])
	}
}

func TestSliceRoundTrip(t *testing.T) {
	in := []float64{1, math.NaN(), 3}
	out := ToSlice(FromSlice(in))
	if out[0] != 1 || out[2] != 3 || !math.IsNaN(out[1]) {
		t.Fatalf("round trip = %v", out)
	}
}
