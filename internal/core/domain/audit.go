package domain

import "time"

type AuditAction string

const (
	AuditCreate AuditAction = "CREATE"
	AuditUpdate AuditAction = "UPDATE"
	AuditDelete AuditAction = "DELETE"
)

// AuditEntry is one append-only row in the audit trail. Before and After are
// cleartext-shaped field maps: nil Before for CREATE, nil After for DELETE.
// The engine never updates or deletes entries.
type AuditEntry struct {
	ID           int64
	EventID      string
	Principal    *int64
	Action       AuditAction
	LogicalTable string
	RecordID     int64
	Before       map[string]any
	After        map[string]any
	CreatedAt    time.Time
}

// AuditFilter combines arbitrary optional filters; the zero value returns
// everything in range.
type AuditFilter struct {
	Principal    *int64
	Action       AuditAction
	LogicalTable string
	AfterID      int64
	Limit        int
}

func (a AuditAction) Valid() bool {
	switch a {
	case AuditCreate, AuditUpdate, AuditDelete:
		return true
	}
	return false
}
