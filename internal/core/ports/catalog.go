package ports

import (
	"context"

	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
)

// Catalog is the diagnostics subsystem's view of the live store: metadata
// probes plus the repair actions AutoFix and RepairIndexes need. Reads never
// mutate; repair actions are individually idempotent.
type Catalog interface {
	Ping(ctx context.Context) (domain.ConnectionHealth, error)
	Tables(ctx context.Context) ([]string, error)
	Columns(ctx context.Context, table string) ([]domain.ColumnInfo, error)
	Indexes(ctx context.Context, table string) ([]string, error)

	CreateTable(ctx context.Context, spec domain.TableSpec) error
	CreateIndex(ctx context.Context, spec domain.IndexSpec) error
	Reindex(ctx context.Context, table string) error
	RefreshStatistics(ctx context.Context) error

	Capabilities(ctx context.Context) (map[string]bool, error)
	Performance(ctx context.Context) (domain.PerformanceReport, error)
	CountOrphans(ctx context.Context) (map[string]int64, error)
	DeleteOrphans(ctx context.Context, logicalTable string) (int64, error)
}
