package syncx

import (
	"testing"
)

func TestCursorRoundTrip(t *testing.T) {
	original := Cursor{
		Table: "items",
		Order: OrderBy{{Field: "updatedAt", Desc: true}},
		Last: Position{
			Keys: map[string]any{"updatedAt": float64(1730635200000)},
			ID:   "01J9GYNHM2V3B7T8RQ5Z4KWX6D",
		},
	}

	encoded := EncodeCursor(original)
	if encoded == "" {
		t.Fatal("EncodeCursor() returned empty string for valid cursor")
	}

	decoded, ok := DecodeCursor(encoded)
	if !ok {
		t.Fatal("DecodeCursor() failed for valid cursor")
	}
	if decoded.Table != original.Table {
		t.Errorf("Table = %v, want %v", decoded.Table, original.Table)
	}
	if !decoded.Order.Equal(original.Order) {
		t.Errorf("Order = %v, want %v", decoded.Order, original.Order)
	}
	if decoded.Last.ID != original.Last.ID {
		t.Errorf("Last.ID = %v, want %v", decoded.Last.ID, original.Last.ID)
	}
	if got := decoded.Last.Keys["updatedAt"]; got != float64(1730635200000) {
		t.Errorf("Last.Keys[updatedAt] = %v, want %v", got, float64(1730635200000))
	}
}

func TestEncodeCursorZeroValue(t *testing.T) {
	if got := EncodeCursor(Cursor{}); got != "" {
		t.Errorf("EncodeCursor(zero) = %q, want empty", got)
	}
}

func TestDecodeCursorMalformed(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{name: "empty string", encoded: ""},
		{name: "invalid base64", encoded: "not-base64!!!"},
		{name: "not json", encoded: "bm90LWpzb24"},
		{name: "json but wrong shape", encoded: "WzEsMiwzXQ"},
		{name: "missing last id", encoded: "eyJ0YWJsZSI6InQiLCJvcmRlckJ5Ijp7fSwibGFzdCI6eyJrZXlzIjp7fX19"},
		{name: "truncated", encoded: "eyJ0YWJsZSI6Iml0ZW1z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := DecodeCursor(tt.encoded); ok {
				t.Errorf("DecodeCursor(%q) ok = true, want false", tt.encoded)
			}
		})
	}
}

func TestDecodeCursorPreservesOrderDirections(t *testing.T) {
	c := Cursor{
		Table: "t",
		Order: OrderBy{{Field: "rank"}, {Field: "updatedAt", Desc: true}},
		Last:  Position{Keys: map[string]any{"rank": float64(3), "updatedAt": float64(9)}, ID: "x1"},
	}

	decoded, ok := DecodeCursor(EncodeCursor(c))
	if !ok {
		t.Fatal("DecodeCursor() failed")
	}
	want := OrderBy{{Field: "rank"}, {Field: "updatedAt", Desc: true}}
	if !decoded.Order.Equal(want) {
		t.Errorf("Order = %v, want %v", decoded.Order, want)
	}
}

func TestRFC3339(t *testing.T) {
	tests := []struct {
		name string
		ms   int64
		want string
	}{
		{name: "normal timestamp", ms: 1730635200000, want: "2024-11-03T12:00:00Z"},
		{name: "epoch", ms: 0, want: "1970-01-01T00:00:00Z"},
		{name: "with milliseconds", ms: 1730635200123, want: "2024-11-03T12:00:00.123Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RFC3339(tt.ms); got != tt.want {
				t.Errorf("RFC3339() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNowMs(t *testing.T) {
	before := NowMs()
	after := NowMs()

	if after < before {
		t.Error("NowMs() went backwards in time")
	}
}
