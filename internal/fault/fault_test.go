package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindMapping(t *testing.T) {
	cases := []struct {
		err    error
		kind   Kind
		wire   string
		status int
	}{
		{Bad("no such role"), KindBadRequest, "BAD_REQUEST", http.StatusBadRequest},
		{Unauthorized("", nil), KindUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized},
		{Forbidden(), KindForbidden, "FORBIDDEN", http.StatusForbidden},
		{Database(errors.New("boom")), KindDatabase, "DATABASE", http.StatusInternalServerError},
		{ByteConversion("bad discriminant", nil), KindByteConversion, "BYTE_CONVERSION", http.StatusInternalServerError},
		{Internal("wiring", nil), KindInternal, "INTERNAL", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.kind {
			t.Fatalf("KindOf(%v) = %v, want %v", tc.err, got, tc.kind)
		}
		if got := tc.kind.SimplifiedString(); got != tc.wire {
			t.Fatalf("SimplifiedString(%v) = %q, want %q", tc.kind, got, tc.wire)
		}
		if got := tc.kind.StatusCode(); got != tc.status {
			t.Fatalf("StatusCode(%v) = %d, want %d", tc.kind, got, tc.status)
		}
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Fatalf("KindOf(plain) = %v", got)
	}
	if got := MessageOf(errors.New("plain")); got != "internal error" {
		t.Fatalf("MessageOf(plain) = %q", got)
	}
}

func TestWrappedErrorsUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Database(cause)
	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause lost")
	}
	wrapped := fmt.Errorf("store: %w", err)
	if KindOf(wrapped) != KindDatabase {
		t.Fatal("kind lost through wrapping")
	}
}
