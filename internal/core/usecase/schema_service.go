package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
	"github.com/atvirokodosprendimai/recordvault/internal/core/ports"
)

// SchemaService manages optional per-logical-table JSON schemas and
// validates submitted payloads against them. Without a configured schema a
// payload only has to be a field map.
type SchemaService struct {
	repo  ports.TableSchemaRepository
	cache sync.Map // logical table → *santhosh.Schema
}

func NewSchemaService(repo ports.TableSchemaRepository) *SchemaService {
	return &SchemaService{repo: repo}
}

func (s *SchemaService) Upsert(ctx context.Context, logicalTable string, schemaJSON json.RawMessage) (domain.TableSchema, error) {
	if err := domain.ValidateLogicalTable(logicalTable); err != nil {
		return domain.TableSchema{}, err
	}
	if !json.Valid(schemaJSON) {
		return domain.TableSchema{}, errors.New("schema must be valid json")
	}
	if _, err := compileSchema(schemaJSON); err != nil {
		return domain.TableSchema{}, fmt.Errorf("invalid json schema: %w", err)
	}
	s.cache.Delete(logicalTable)
	return s.repo.Upsert(ctx, domain.TableSchema{
		LogicalTable: logicalTable,
		Schema:       schemaJSON,
	})
}

func (s *SchemaService) Get(ctx context.Context, logicalTable string) (domain.TableSchema, error) {
	if err := domain.ValidateLogicalTable(logicalTable); err != nil {
		return domain.TableSchema{}, err
	}
	return s.repo.Get(ctx, logicalTable)
}

func (s *SchemaService) Delete(ctx context.Context, logicalTable string) (bool, error) {
	if err := domain.ValidateLogicalTable(logicalTable); err != nil {
		return false, err
	}
	s.cache.Delete(logicalTable)
	return s.repo.Delete(ctx, logicalTable)
}

// Validate checks data against the logical table's schema. If none is
// configured the data passes. Returns *domain.ErrSchemaViolation on failure.
func (s *SchemaService) Validate(ctx context.Context, logicalTable string, data json.RawMessage) error {
	if cached, ok := s.cache.Load(logicalTable); ok {
		return runValidation(cached.(*santhosh.Schema), data)
	}

	ts, err := s.repo.Get(ctx, logicalTable)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load table schema: %w", err)
	}

	compiled, err := compileSchema(ts.Schema)
	if err != nil {
		return fmt.Errorf("compile table schema: %w", err)
	}
	s.cache.Store(logicalTable, compiled)
	return runValidation(compiled, data)
}

func compileSchema(schemaJSON json.RawMessage) (*santhosh.Schema, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

func runValidation(sch *santhosh.Schema, data json.RawMessage) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return &domain.ErrSchemaViolation{Errors: collectValidationErrors(ve)}
		}
		return &domain.ErrSchemaViolation{Errors: []string{err.Error()}}
	}
	return nil
}

func collectValidationErrors(ve *santhosh.ValidationError) []string {
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectValidationErrors(cause)...)
	}
	if len(ve.Causes) == 0 {
		msgs = append(msgs, ve.Error())
	}
	return msgs
}
