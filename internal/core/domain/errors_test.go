package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundOrForbiddenMessage(t *testing.T) {
	if got := ErrNotFoundOrForbidden.Error(); got != "Record not found or access denied" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{nil, "ok"},
		{ErrConnectivity, "connectivity"},
		{fmt.Errorf("probe: %w", ErrConnectivity), "connectivity"},
		{&ErrSchemaViolation{Errors: []string{"missing table records"}}, "schema_violation"},
		{ErrValidation, "validation"},
		{ErrInvalidTable, "validation"},
		{ErrInvalidOrdering, "validation"},
		{ErrPermissionDenied, "permission_denied"},
		{ErrIntegrityViolation, "integrity_violation"},
		{ErrNotFoundOrForbidden, "not_found_or_forbidden"},
		{ErrEncryption, "encryption"},
		{ErrNotFound, "not_found"},
		{errors.New("disk exploded"), "internal"},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.kind {
			t.Fatalf("KindOf(%v) = %q, want %q", tc.err, got, tc.kind)
		}
	}
}

func TestSchemaViolationMessage(t *testing.T) {
	e := &ErrSchemaViolation{Errors: []string{"a", "b"}}
	if e.Error() != "schema violation: a; b" {
		t.Fatalf("unexpected message: %q", e.Error())
	}
	if (&ErrSchemaViolation{}).Error() != "schema violation" {
		t.Fatalf("unexpected empty message")
	}
}

func TestValidateLogicalTable(t *testing.T) {
	for _, name := range []string{"inventory", "user.accounts", "a-b_c:1"} {
		if err := ValidateLogicalTable(name); err != nil {
			t.Fatalf("%q rejected: %v", name, err)
		}
	}
	for _, name := range []string{"", "has space", "semi;colon", "quote'"} {
		if err := ValidateLogicalTable(name); !errors.Is(err, ErrInvalidTable) {
			t.Fatalf("%q accepted", name)
		}
	}
}
