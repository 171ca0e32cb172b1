package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
	"github.com/atvirokodosprendimai/recordvault/internal/core/ports"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 1000

	// encryptedPlaceholder stands in for a sensitive value in the CREATE
	// audit view: field names are recorded, encrypted values never are.
	encryptedPlaceholder = "[encrypted]"
)

// DefaultSensitiveFields is the built-in sensitive-field policy.
var DefaultSensitiveFields = []string{"password", "token", "secret", "private_key"}

// SensitivePolicy decides, by name, which submitted fields get encrypted.
// A field is sensitive when its lowercased name contains any policy name.
type SensitivePolicy struct {
	names []string
}

func NewSensitivePolicy(names []string) SensitivePolicy {
	if len(names) == 0 {
		names = DefaultSensitiveFields
	}
	lowered := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			lowered = append(lowered, n)
		}
	}
	return SensitivePolicy{names: lowered}
}

func (p SensitivePolicy) Sensitive(field string) bool {
	f := strings.ToLower(field)
	for _, n := range p.names {
		if strings.Contains(f, n) {
			return true
		}
	}
	return false
}

// RecordService implements the encrypted record store: generic CRUD, search
// and statistics over arbitrary logical tables, with one audit entry per
// mutation written in the same transaction as the mutation itself.
type RecordService struct {
	repo    ports.RecordRepository
	cipher  ports.SymmetricCipher
	schemas *SchemaService
	policy  SensitivePolicy
	log     zerolog.Logger
}

func NewRecordService(repo ports.RecordRepository, cipher ports.SymmetricCipher, schemas *SchemaService, policy SensitivePolicy, log zerolog.Logger) *RecordService {
	return &RecordService{repo: repo, cipher: cipher, schemas: schemas, policy: policy, log: log}
}

// Insert stores a new record. The payload is split into cleartext and
// sensitive-by-name fields; sensitive fields are encrypted independently.
// Exactly one CREATE audit entry is appended with the insert.
func (s *RecordService) Insert(ctx context.Context, logicalTable string, payload any, owner *int64, metadata map[string]any) (domain.InsertResult, error) {
	if err := domain.ValidateLogicalTable(logicalTable); err != nil {
		return domain.InsertResult{}, err
	}
	fields, err := asFieldMap(payload)
	if err != nil {
		return domain.InsertResult{}, err
	}
	if err := s.validateAgainstSchema(ctx, logicalTable, fields); err != nil {
		return domain.InsertResult{}, err
	}

	clear, encrypted, err := s.split(fields)
	if err != nil {
		return domain.InsertResult{}, err
	}

	after := copyFields(clear)
	for name := range encrypted {
		after[name] = encryptedPlaceholder
	}

	stored, err := s.repo.Insert(ctx, domain.Record{
		LogicalTable: logicalTable,
		OwnerID:      owner,
		Payload:      clear,
		Encrypted:    encrypted,
		Metadata:     metadata,
	}, domain.AuditEntry{
		EventID:      uuid.NewString(),
		Principal:    owner,
		Action:       domain.AuditCreate,
		LogicalTable: logicalTable,
		After:        after,
	})
	if err != nil {
		return domain.InsertResult{}, err
	}

	return domain.InsertResult{ID: stored.ID, LogicalTable: logicalTable, CreatedAt: stored.CreatedAt}, nil
}

// Get returns one page of decrypted records plus the total count for the
// (logicalTable, owner) scope. A nil owner is the administrative view across
// all owners.
func (s *RecordService) Get(ctx context.Context, q domain.RecordQuery) ([]domain.RecordView, int64, error) {
	if err := domain.ValidateLogicalTable(q.LogicalTable); err != nil {
		return nil, 0, err
	}
	if err := q.Order.Validate(); err != nil {
		return nil, 0, err
	}
	q.Page = normalizePage(q.Page)

	recs, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	views := make([]domain.RecordView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, s.view(rec))
	}
	return views, total, nil
}

// Update replaces the cleartext payload and merges newly supplied encrypted
// fields over the previously stored ciphertexts: sensitive fields absent
// from this call keep their prior value. The ownership check and the
// mutation are one conditioned operation against the store.
func (s *RecordService) Update(ctx context.Context, id int64, payload any, owner *int64) (domain.RecordView, error) {
	fields, err := asFieldMap(payload)
	if err != nil {
		return domain.RecordView{}, err
	}

	updated, err := s.repo.UpdateOwned(ctx, id, owner, func(prev domain.Record) (domain.Record, domain.AuditEntry, error) {
		if err := s.validateAgainstSchema(ctx, prev.LogicalTable, fields); err != nil {
			return domain.Record{}, domain.AuditEntry{}, err
		}

		clear, encrypted, err := s.split(fields)
		if err != nil {
			return domain.Record{}, domain.AuditEntry{}, err
		}

		merged := make(map[string]string, len(prev.Encrypted)+len(encrypted))
		for name, ct := range prev.Encrypted {
			merged[name] = ct
		}
		for name, ct := range encrypted {
			merged[name] = ct
		}
		// A field that moved to the cleartext side under the current policy
		// must not linger as ciphertext: the key sets stay disjoint.
		for name := range clear {
			delete(merged, name)
		}

		next := prev
		next.Payload = clear
		next.Encrypted = merged

		return next, domain.AuditEntry{
			EventID:      uuid.NewString(),
			Principal:    owner,
			Action:       domain.AuditUpdate,
			LogicalTable: prev.LogicalTable,
			Before:       s.view(prev).Fields,
			After:        s.view(next).Fields,
		}, nil
	})
	if err != nil {
		return domain.RecordView{}, err
	}
	return s.view(updated), nil
}

// Delete removes a record under the same ownership condition as Update and
// appends one DELETE audit entry carrying the prior decrypted view.
func (s *RecordService) Delete(ctx context.Context, id int64, owner *int64) error {
	return s.repo.DeleteOwned(ctx, id, owner, func(prev domain.Record) (domain.AuditEntry, error) {
		return domain.AuditEntry{
			EventID:      uuid.NewString(),
			Principal:    owner,
			Action:       domain.AuditDelete,
			LogicalTable: prev.LogicalTable,
			Before:       s.view(prev).Fields,
		}, nil
	})
}

// Search returns records whose decrypted fields case-insensitively contain
// every supplied substring. An empty criteria map returns all records in
// scope; no match is an empty result, not an error. Matching happens over
// decrypted views, so encrypted fields are searchable too.
func (s *RecordService) Search(ctx context.Context, logicalTable string, criteria map[string]string, owner *int64, page domain.Page) ([]domain.RecordView, error) {
	if err := domain.ValidateLogicalTable(logicalTable); err != nil {
		return nil, err
	}

	recs, _, err := s.repo.List(ctx, domain.RecordQuery{
		LogicalTable: logicalTable,
		Owner:        owner,
		Order:        domain.Ordering{Field: "id"},
	})
	if err != nil {
		return nil, err
	}

	matched := make([]domain.RecordView, 0, len(recs))
	for _, rec := range recs {
		view := s.view(rec)
		if matchesCriteria(view, criteria) {
			matched = append(matched, view)
		}
	}

	page = normalizePage(page)
	if page.Offset >= len(matched) {
		return []domain.RecordView{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[page.Offset:end], nil
}

// Statistics is computed from current live state on every call.
func (s *RecordService) Statistics(ctx context.Context, logicalTable string, owner *int64) (domain.TableStats, error) {
	if err := domain.ValidateLogicalTable(logicalTable); err != nil {
		return domain.TableStats{}, err
	}
	return s.repo.Stats(ctx, logicalTable, owner)
}

// Export returns the decrypted, id-ordered record list ready for external
// serialization. Producing CSV/XML text is the caller's concern.
func (s *RecordService) Export(ctx context.Context, logicalTable string, owner *int64, limit int, includeMetadata bool) ([]domain.RecordView, error) {
	if err := domain.ValidateLogicalTable(logicalTable); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}

	recs, _, err := s.repo.List(ctx, domain.RecordQuery{
		LogicalTable: logicalTable,
		Owner:        owner,
		Page:         domain.Page{Limit: limit},
		Order:        domain.Ordering{Field: "id"},
	})
	if err != nil {
		return nil, err
	}

	views := make([]domain.RecordView, 0, len(recs))
	for _, rec := range recs {
		view := s.view(rec)
		if !includeMetadata {
			view.Metadata = nil
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *RecordService) validateAgainstSchema(ctx context.Context, logicalTable string, fields map[string]any) error {
	if s.schemas == nil {
		return nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return s.schemas.Validate(ctx, logicalTable, raw)
}

// split separates a submitted field map into the cleartext subset and the
// independently encrypted sensitive subset.
func (s *RecordService) split(fields map[string]any) (map[string]any, map[string]string, error) {
	clear := make(map[string]any, len(fields))
	encrypted := make(map[string]string)
	for name, value := range fields {
		if !s.policy.Sensitive(name) {
			clear[name] = value
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: field %q: %v", domain.ErrValidation, name, err)
		}
		ct, err := s.cipher.Encrypt(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("encrypt field %q: %w", name, err)
		}
		encrypted[name] = ct
	}
	return clear, encrypted, nil
}

// view decrypts a stored record. A ciphertext that fails to decrypt is
// omitted from Fields and reported in DegradedFields; everything else is
// returned normally.
func (s *RecordService) view(rec domain.Record) domain.RecordView {
	view := domain.RecordView{
		ID:           rec.ID,
		LogicalTable: rec.LogicalTable,
		OwnerID:      rec.OwnerID,
		Fields:       copyFields(rec.Payload),
		Metadata:     rec.Metadata,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}

	names := make([]string, 0, len(rec.Encrypted))
	for name := range rec.Encrypted {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		view.EncryptedFields = append(view.EncryptedFields, name)
		plaintext, err := s.cipher.Decrypt(rec.Encrypted[name])
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("logical_table", rec.LogicalTable).
				Int64("record_id", rec.ID).
				Str("field", name).
				Msg("field decryption failed, omitting from view")
			view.DegradedFields = append(view.DegradedFields, name)
			continue
		}
		var value any
		if err := json.Unmarshal(plaintext, &value); err != nil {
			// Pre-JSON ciphertexts decrypt to the raw string.
			value = string(plaintext)
		}
		view.Fields[name] = value
	}
	return view
}

func matchesCriteria(view domain.RecordView, criteria map[string]string) bool {
	for field, substr := range criteria {
		value, ok := view.Fields[field]
		if !ok {
			return false
		}
		if !strings.Contains(strings.ToLower(stringify(value)), strings.ToLower(substr)) {
			return false
		}
	}
	return true
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return strings.Trim(string(raw), `"`)
	}
}

func asFieldMap(payload any) (map[string]any, error) {
	fields, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", domain.ErrValidation, payload)
	}
	return fields, nil
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func normalizePage(p domain.Page) domain.Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
