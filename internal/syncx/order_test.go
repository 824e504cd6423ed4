package syncx

import (
	"encoding/json"
	"testing"
)

func TestOrderByUnmarshalPreservesOrder(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want OrderBy
	}{
		{
			name: "single desc",
			in:   `{"updatedAt":"desc"}`,
			want: OrderBy{{Field: "updatedAt", Desc: true}},
		},
		{
			name: "two keys keep declaration order",
			in:   `{"rank":"asc","updatedAt":"desc"}`,
			want: OrderBy{{Field: "rank"}, {Field: "updatedAt", Desc: true}},
		},
		{
			name: "reversed declaration order",
			in:   `{"updatedAt":"desc","rank":"asc"}`,
			want: OrderBy{{Field: "updatedAt", Desc: true}, {Field: "rank"}},
		},
		{name: "empty object", in: `{}`, want: nil},
		{name: "null", in: `null`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got OrderBy
			if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
				t.Fatalf("Unmarshal(%s) error: %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestOrderByUnmarshalRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "array", in: `["updatedAt"]`},
		{name: "bad direction", in: `{"updatedAt":"down"}`},
		{name: "non-string direction", in: `{"updatedAt":1}`},
		{name: "bare string", in: `"updatedAt"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got OrderBy
			if err := json.Unmarshal([]byte(tt.in), &got); err == nil {
				t.Errorf("Unmarshal(%s) succeeded, want error", tt.in)
			}
		})
	}
}

func TestOrderByMarshalRoundTrip(t *testing.T) {
	in := OrderBy{{Field: "rank"}, {Field: "updatedAt", Desc: true}}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(data) != `{"rank":"asc","updatedAt":"desc"}` {
		t.Errorf("Marshal = %s", data)
	}

	var out OrderBy
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("round trip = %v, want %v", out, in)
	}
}

func TestOrderByEqual(t *testing.T) {
	a := OrderBy{{Field: "updatedAt", Desc: true}}
	b := OrderBy{{Field: "updatedAt", Desc: true}}
	c := OrderBy{{Field: "updatedAt"}}
	d := OrderBy{{Field: "updatedAt", Desc: true}, {Field: "rank"}}

	if !a.Equal(b) {
		t.Error("identical orderings not equal")
	}
	if a.Equal(c) {
		t.Error("different directions reported equal")
	}
	if a.Equal(d) {
		t.Error("different lengths reported equal")
	}
}
