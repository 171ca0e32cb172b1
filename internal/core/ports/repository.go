package ports

import (
	"context"

	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
)

// RecordRepository persists records and writes their audit entries in the
// same transaction: a mutation is never visible without its audit entry.
//
// UpdateOwned and DeleteOwned condition the load on id+owner inside the
// write transaction, so check-then-act cannot race a concurrent mutation;
// a missing row and a wrong owner are both domain.ErrNotFoundOrForbidden.
// The mutate callback receives the prior state and returns the new state
// plus the audit entry to append; its RecordID is filled in by the
// repository.
type RecordRepository interface {
	Insert(ctx context.Context, rec domain.Record, audit domain.AuditEntry) (domain.Record, error)
	List(ctx context.Context, q domain.RecordQuery) ([]domain.Record, int64, error)
	UpdateOwned(ctx context.Context, id int64, owner *int64, mutate func(prev domain.Record) (domain.Record, domain.AuditEntry, error)) (domain.Record, error)
	DeleteOwned(ctx context.Context, id int64, owner *int64, makeAudit func(prev domain.Record) (domain.AuditEntry, error)) error
	Stats(ctx context.Context, logicalTable string, owner *int64) (domain.TableStats, error)
}
