package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseJSONKeepsKeyOrder(t *testing.T) {
	raw := `{"zeta":1,"alpha":{"b":true,"a":null},"mid":[1.50,"x"]}`

	v, err := ParseJSON([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := v.Render(); got != raw {
		t.Fatalf("expected %s, got %s", raw, got)
	}

	m, ok := v.AsMap()
	if !ok {
		t.Fatalf("expected map, got %s", v.Kind())
	}
	keys := m.Keys()
	if len(keys) != 3 || keys[0] != "zeta" || keys[1] != "alpha" || keys[2] != "mid" {
		t.Fatalf("unexpected key order %v", keys)
	}
}

func TestParseJSONRejectsTrailingData(t *testing.T) {
	if _, err := ParseJSON([]byte(`{"a":1} {"b":2}`)); err == nil {
		t.Fatal("expected trailing document to be rejected")
	}
	if _, err := ParseJSON([]byte(`{"a":`)); err == nil {
		t.Fatal("expected truncated document to be rejected")
	}
}

func TestValueEqual(t *testing.T) {
	a, _ := ParseJSON([]byte(`{"x":1,"y":[true,"s"]}`))
	b, _ := ParseJSON([]byte(`{"y":[true,"s"],"x":1.0}`))
	if !a.Equal(b) {
		t.Fatal("expected maps to be equal regardless of key order")
	}
	if StringValue("1").Equal(NumberValue(1)) {
		t.Fatal("string and number must not be equal")
	}
	if !Null().Equal(Value{}) {
		t.Fatal("zero value must equal null")
	}
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !DateValue(at).Equal(DateValue(at.In(time.FixedZone("x", 3600)))) {
		t.Fatal("expected same instant to be equal")
	}
}

func TestMapSetKeepsPosition(t *testing.T) {
	var m Map
	m.Set("a", NumberValue(1))
	m.Set("b", NumberValue(2))
	m.Set("a", NumberValue(3))

	if got := MapValue(&m).Render(); got != `{"a":3,"b":2}` {
		t.Fatalf("unexpected rendering %s", got)
	}

	var nilMap *Map
	if nilMap.Len() != 0 || nilMap.Has("a") {
		t.Fatal("nil map must behave as empty")
	}
}

func TestValueJSONInStruct(t *testing.T) {
	type wrapper struct {
		Payload Value `json:"payload"`
	}

	var w wrapper
	if err := json.Unmarshal([]byte(`{"payload":{"b":1,"a":2}}`), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"payload":{"b":1,"a":2}}` {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestDateValueRendersUTC(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("plus2", 2*3600))
	if got := DateValue(at).Render(); got != `"2024-05-01T10:00:00Z"` {
		t.Fatalf("unexpected date rendering %s", got)
	}
}
