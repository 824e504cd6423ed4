package syncerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "coded error", err: New(CodeConflict, "version mismatch", nil), want: CodeConflict},
		{name: "wrapped coded error", err: fmt.Errorf("outer: %w", New(CodeNotFound, "missing", nil)), want: CodeNotFound},
		{name: "plain error", err: errors.New("boom"), want: CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapKeepsExistingCode(t *testing.T) {
	orig := New(CodeConflict, "pk collision", map[string]any{"pk": "i1"})

	wrapped := Wrap(orig, CodeInternal, "adapter failed")
	if CodeOf(wrapped) != CodeConflict {
		t.Errorf("Wrap rewrote code: %v", CodeOf(wrapped))
	}

	coded, ok := As(wrapped)
	if !ok {
		t.Fatal("As() failed")
	}
	if coded.Details["pk"] != "i1" {
		t.Errorf("details lost: %v", coded.Details)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, CodeInternal, "x") != nil {
		t.Error("Wrap(nil) != nil")
	}
	if Internal(nil) != nil {
		t.Error("Internal(nil) != nil")
	}
}

func TestInternalPreservesMessage(t *testing.T) {
	err := Internal(errors.New("pool exhausted"))

	coded, ok := As(err)
	if !ok {
		t.Fatal("As() failed")
	}
	if coded.Code != CodeInternal {
		t.Errorf("code = %v", coded.Code)
	}
	if coded.Message != "pool exhausted" {
		t.Errorf("message = %q", coded.Message)
	}
	if !errors.Is(err, err) {
		t.Error("errors.Is identity failed")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{code: CodeBadRequest, want: http.StatusBadRequest},
		{code: CodeNotFound, want: http.StatusNotFound},
		{code: CodeConflict, want: http.StatusConflict},
		{code: CodeInternal, want: http.StatusInternalServerError},
		{code: Code("UNKNOWN"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := HTTPStatus(tt.code); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
