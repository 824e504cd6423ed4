package engine

import (
	"github.com/erauner12/syncline/internal/storage"
	"github.com/erauner12/syncline/internal/syncerr"
	"github.com/erauner12/syncline/internal/syncx"
)

// FieldKind constrains the JSON type a column accepts.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindNumber FieldKind = "number"
	KindBool   FieldKind = "bool"
	KindObject FieldKind = "object"
	KindArray  FieldKind = "array"
)

// RowSchema is an optional per-table validator. Validation is partial: only
// fields present in the payload are checked against Fields, and Required
// names must be present on insert. Absence of a schema means any shape is
// accepted.
type RowSchema struct {
	Fields   map[string]FieldKind
	Required []string
}

// RegisterSchema installs a validator for table. Call before serving starts.
func (e *Engine) RegisterSchema(table string, s RowSchema) {
	e.schemas[table] = s
}

func (e *Engine) validateInsert(table string, row storage.Row) error {
	s, ok := e.schemas[table]
	if !ok {
		return nil
	}
	for _, name := range s.Required {
		if _, present := row[name]; !present {
			return syncerr.New(syncerr.CodeBadRequest, "missing required field", map[string]any{
				"field":      name,
				"constraint": "required",
			})
		}
	}
	return s.checkKinds(row)
}

func (e *Engine) validateSet(table string, set storage.Row) error {
	s, ok := e.schemas[table]
	if !ok {
		return nil
	}
	return s.checkKinds(set)
}

func (s RowSchema) checkKinds(fields storage.Row) error {
	for name, value := range fields {
		kind, declared := s.Fields[name]
		if !declared || value == nil {
			continue
		}
		if !kindMatches(kind, value) {
			return syncerr.New(syncerr.CodeBadRequest, "field has wrong type", map[string]any{
				"field":      name,
				"constraint": string(kind),
			})
		}
	}
	return nil
}

func kindMatches(kind FieldKind, v any) bool {
	switch kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindNumber:
		_, ok := syncx.AsFloat64(v)
		return ok
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindObject:
		_, ok := v.(map[string]any)
		return ok
	case KindArray:
		_, ok := v.([]any)
		return ok
	}
	return true
}
