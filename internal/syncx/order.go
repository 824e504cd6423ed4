package syncx

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OrderTerm is one sort key of a window query.
type OrderTerm struct {
	Field string
	Desc  bool
}

// OrderBy is an ordered list of sort keys. On the wire it is a JSON object
// whose key order is significant ({"updatedAt":"desc"}), so it carries its
// own (un)marshaler instead of relying on Go maps.
type OrderBy []OrderTerm

// DefaultOrder is the window ordering applied when a request names none:
// updatedAt descending, with the id ASC tiebreak applied by the adapter.
func DefaultOrder() OrderBy {
	return OrderBy{{Field: "updatedAt", Desc: true}}
}

// Equal reports whether two orderings name the same fields in the same
// order with the same directions.
func (o OrderBy) Equal(other OrderBy) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if o[i] != other[i] {
			return false
		}
	}
	return true
}

// MarshalJSON renders the ordering as an object with keys in term order.
func (o OrderBy) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, t := range o {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(t.Field)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		if t.Desc {
			b.WriteString(`:"desc"`)
		} else {
			b.WriteString(`:"asc"`)
		}
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON reads an ordered object, preserving key order via the token
// stream. null and {} both decode to an empty ordering.
func (o *OrderBy) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*o = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("orderBy must be an object")
	}

	var terms OrderBy
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		field, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("orderBy key must be a string")
		}
		dirTok, err := dec.Token()
		if err != nil {
			return err
		}
		dir, ok := dirTok.(string)
		if !ok {
			return fmt.Errorf("orderBy direction for %q must be a string", field)
		}
		switch dir {
		case "asc":
			terms = append(terms, OrderTerm{Field: field})
		case "desc":
			terms = append(terms, OrderTerm{Field: field, Desc: true})
		default:
			return fmt.Errorf("orderBy direction for %q must be asc or desc", field)
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = terms
	return nil
}
