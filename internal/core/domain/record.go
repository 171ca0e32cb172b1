package domain

import (
	"regexp"
	"time"
)

var tablePattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

// Record is the stored shape of a logical record. Payload holds the
// cleartext fields, Encrypted the ciphertext of sensitive-named fields.
// The two key sets are disjoint; their union is the record's complete
// logical field set.
type Record struct {
	ID           int64
	LogicalTable string
	OwnerID      *int64
	Payload      map[string]any
	Encrypted    map[string]string
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RecordView is a record as callers see it: every encrypted field decrypted
// back into Fields. EncryptedFields names the fields that were stored
// encrypted; DegradedFields those whose ciphertext failed to decrypt and
// were therefore omitted from Fields.
type RecordView struct {
	ID              int64
	LogicalTable    string
	OwnerID         *int64
	Fields          map[string]any
	EncryptedFields []string
	DegradedFields  []string
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InsertResult is the caller-facing receipt for a successful Insert.
type InsertResult struct {
	ID           int64
	LogicalTable string
	CreatedAt    time.Time
}

type Page struct {
	Limit  int
	Offset int
}

type Ordering struct {
	Field      string
	Descending bool
}

// RecordQuery scopes a read. A nil Owner is the administrative, unscoped
// view across all owners; that is intentional, not a missing filter.
type RecordQuery struct {
	LogicalTable string
	Owner        *int64
	Page         Page
	Order        Ordering
}

// TableStats is computed from live state on each call, never cached.
type TableStats struct {
	TotalRecords         int64
	DistinctOwners       int64
	EarliestCreatedAt    time.Time
	LatestCreatedAt      time.Time
	AverageUpdateLatency time.Duration
	StorageSizeEstimate  int64
}

func ValidateLogicalTable(name string) error {
	if name == "" || !tablePattern.MatchString(name) {
		return ErrInvalidTable
	}
	return nil
}

// OrderableFields maps the logical ordering names callers may use to the
// physical columns behind them.
var OrderableFields = map[string]string{
	"id":        "id",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"owner":     "owner_id",
}

func (o Ordering) Validate() error {
	if o.Field == "" {
		return nil
	}
	if _, ok := OrderableFields[o.Field]; !ok {
		return ErrInvalidOrdering
	}
	return nil
}
