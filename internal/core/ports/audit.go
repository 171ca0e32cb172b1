package ports

import (
	"context"

	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
)

// AuditRepository reads the append-only trail. Appends happen inside the
// record repository's transactions, never through this interface.
type AuditRepository interface {
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error)
	CountForRecord(ctx context.Context, logicalTable string, recordID int64) (int64, error)
}
