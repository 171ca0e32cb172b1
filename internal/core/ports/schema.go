package ports

import (
	"context"

	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
)

type TableSchemaRepository interface {
	Upsert(ctx context.Context, schema domain.TableSchema) (domain.TableSchema, error)
	Get(ctx context.Context, logicalTable string) (domain.TableSchema, error)
	Delete(ctx context.Context, logicalTable string) (bool, error)
}

type PrincipalRepository interface {
	Upsert(ctx context.Context, p domain.Principal) (domain.Principal, error)
	FindByName(ctx context.Context, name string) (domain.Principal, error)
	Delete(ctx context.Context, id int64) (bool, error)
}
