package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
)

type stubSchemaRepo struct {
	schemas map[string]domain.TableSchema
}

func newStubSchemaRepo() *stubSchemaRepo {
	return &stubSchemaRepo{schemas: make(map[string]domain.TableSchema)}
}

func (r *stubSchemaRepo) Upsert(_ context.Context, ts domain.TableSchema) (domain.TableSchema, error) {
	r.schemas[ts.LogicalTable] = ts
	return ts, nil
}

func (r *stubSchemaRepo) Get(_ context.Context, logicalTable string) (domain.TableSchema, error) {
	ts, ok := r.schemas[logicalTable]
	if !ok {
		return domain.TableSchema{}, domain.ErrNotFound
	}
	return ts, nil
}

func (r *stubSchemaRepo) Delete(_ context.Context, logicalTable string) (bool, error) {
	if _, ok := r.schemas[logicalTable]; !ok {
		return false, nil
	}
	delete(r.schemas, logicalTable)
	return true, nil
}

const accountSchema = `{
	"type": "object",
	"required": ["username"],
	"properties": {
		"username": {"type": "string", "minLength": 1},
		"age": {"type": "integer", "minimum": 0}
	}
}`

func TestSchemaUpsertRejectsInvalidInput(t *testing.T) {
	svc := NewSchemaService(newStubSchemaRepo())

	if _, err := svc.Upsert(context.Background(), "bad name!", json.RawMessage(`{}`)); !errors.Is(err, domain.ErrInvalidTable) {
		t.Fatalf("expected invalid table error, got %v", err)
	}
	if _, err := svc.Upsert(context.Background(), "accounts", json.RawMessage(`{not json`)); err == nil {
		t.Fatal("expected error for malformed json")
	}
	if _, err := svc.Upsert(context.Background(), "accounts", json.RawMessage(`{"type": 12}`)); err == nil {
		t.Fatal("expected error for invalid schema document")
	}
}

func TestSchemaValidatePassesWithoutConfiguredSchema(t *testing.T) {
	svc := NewSchemaService(newStubSchemaRepo())

	if err := svc.Validate(context.Background(), "inventory", json.RawMessage(`{"anything": true}`)); err != nil {
		t.Fatalf("validation without a schema must pass: %v", err)
	}
}

func TestSchemaValidateEnforcesConfiguredSchema(t *testing.T) {
	svc := NewSchemaService(newStubSchemaRepo())

	if _, err := svc.Upsert(context.Background(), "accounts", json.RawMessage(accountSchema)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if err := svc.Validate(context.Background(), "accounts", json.RawMessage(`{"username": "bob", "age": 30}`)); err != nil {
		t.Fatalf("conforming payload rejected: %v", err)
	}

	err := svc.Validate(context.Background(), "accounts", json.RawMessage(`{"age": -1}`))
	var violation *domain.ErrSchemaViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected schema violation, got %v", err)
	}
	if len(violation.Errors) == 0 {
		t.Fatal("violation carries no details")
	}
}

func TestSchemaDeleteStopsEnforcement(t *testing.T) {
	svc := NewSchemaService(newStubSchemaRepo())

	if _, err := svc.Upsert(context.Background(), "accounts", json.RawMessage(accountSchema)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := svc.Validate(context.Background(), "accounts", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected violation before delete")
	}

	deleted, err := svc.Delete(context.Background(), "accounts")
	if err != nil || !deleted {
		t.Fatalf("delete failed: %v (deleted=%v)", err, deleted)
	}
	if err := svc.Validate(context.Background(), "accounts", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("validation after delete must pass: %v", err)
	}

	deleted, err = svc.Delete(context.Background(), "accounts")
	if err != nil || deleted {
		t.Fatalf("second delete must be a no-op: %v (deleted=%v)", err, deleted)
	}
}

func TestSchemaUpsertReplacesCachedSchema(t *testing.T) {
	svc := NewSchemaService(newStubSchemaRepo())

	if _, err := svc.Upsert(context.Background(), "accounts", json.RawMessage(accountSchema)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	// Populate the cache.
	if err := svc.Validate(context.Background(), "accounts", json.RawMessage(`{"username": "bob"}`)); err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	if _, err := svc.Upsert(context.Background(), "accounts", json.RawMessage(`{"type": "object", "required": ["email"]}`)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := svc.Validate(context.Background(), "accounts", json.RawMessage(`{"username": "bob"}`)); err == nil {
		t.Fatal("stale cached schema still enforced after upsert")
	}
}
