package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/recordvault/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
	"github.com/atvirokodosprendimai/recordvault/migrations"
)

func newTestDB(t *testing.T) *gormsqlite.DB {
	t.Helper()

	db, err := gormsqlite.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	wdb, err := db.WriteSQLDB()
	if err != nil {
		t.Fatalf("writer sql db: %v", err)
	}
	if err := migrations.Up(context.Background(), wdb); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return db
}

func newAudit(action domain.AuditAction, table string, owner *int64, before, after map[string]any) domain.AuditEntry {
	return domain.AuditEntry{
		EventID:      uuid.NewString(),
		Principal:    owner,
		Action:       action,
		LogicalTable: table,
		Before:       before,
		After:        after,
	}
}

func owned(v int64) *int64 {
	return &v
}

func TestInsertPersistsRecordWithAuditEntry(t *testing.T) {
	db := newTestDB(t)
	repo := NewRecordRepository(db)
	audits := NewAuditRepository(db)
	ctx := context.Background()

	rec, err := repo.Insert(ctx, domain.Record{
		LogicalTable: "inventory",
		OwnerID:      owned(7),
		Payload:      map[string]any{"name": "Test Item", "value": float64(42)},
		Encrypted:    map[string]string{},
	}, newAudit(domain.AuditCreate, "inventory", owned(7), nil, map[string]any{"name": "Test Item"}))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if rec.ID == 0 || rec.CreatedAt.IsZero() {
		t.Fatalf("identity not assigned: %+v", rec)
	}

	got, total, err := repo.List(ctx, domain.RecordQuery{LogicalTable: "inventory", Owner: owned(7), Page: domain.Page{Limit: 10}})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || len(got) != 1 {
		t.Fatalf("expected one record, got %d/%d", len(got), total)
	}
	if got[0].Payload["name"] != "Test Item" || got[0].Payload["value"] != float64(42) {
		t.Fatalf("payload did not round-trip: %v", got[0].Payload)
	}

	entries, err := audits.List(ctx, domain.AuditFilter{LogicalTable: "inventory", Limit: 10})
	if err != nil {
		t.Fatalf("audit list failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Action != domain.AuditCreate || entry.RecordID != rec.ID {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}
	if entry.Before != nil || entry.After["name"] != "Test Item" {
		t.Fatalf("audit views wrong: before=%v after=%v", entry.Before, entry.After)
	}
}

func TestUpdateOwnedRejectsWrongOwnerWithoutAudit(t *testing.T) {
	db := newTestDB(t)
	repo := NewRecordRepository(db)
	audits := NewAuditRepository(db)
	ctx := context.Background()

	rec, err := repo.Insert(ctx, domain.Record{
		LogicalTable: "inventory",
		OwnerID:      owned(7),
		Payload:      map[string]any{"name": "x"},
	}, newAudit(domain.AuditCreate, "inventory", owned(7), nil, map[string]any{"name": "x"}))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	_, err = repo.UpdateOwned(ctx, rec.ID, owned(3), func(prev domain.Record) (domain.Record, domain.AuditEntry, error) {
		t.Fatal("mutate must not run for a non-owner")
		return prev, domain.AuditEntry{}, nil
	})
	if !errors.Is(err, domain.ErrNotFoundOrForbidden) {
		t.Fatalf("expected ownership failure, got %v", err)
	}

	count, err := audits.CountForRecord(ctx, "inventory", rec.ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("rejected update produced audit entries: %d", count)
	}
}

func TestUpdateOwnedPersistsMutationAndAudit(t *testing.T) {
	db := newTestDB(t)
	repo := NewRecordRepository(db)
	audits := NewAuditRepository(db)
	ctx := context.Background()

	rec, err := repo.Insert(ctx, domain.Record{
		LogicalTable: "inventory",
		OwnerID:      owned(7),
		Payload:      map[string]any{"name": "x"},
	}, newAudit(domain.AuditCreate, "inventory", owned(7), nil, map[string]any{"name": "x"}))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	updated, err := repo.UpdateOwned(ctx, rec.ID, owned(7), func(prev domain.Record) (domain.Record, domain.AuditEntry, error) {
		next := prev
		next.Payload = map[string]any{"name": "y"}
		audit := newAudit(domain.AuditUpdate, "inventory", owned(7), prev.Payload, next.Payload)
		return next, audit, nil
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Payload["name"] != "y" {
		t.Fatalf("mutation not applied: %v", updated.Payload)
	}
	if !updated.UpdatedAt.After(rec.UpdatedAt) && !updated.UpdatedAt.Equal(rec.UpdatedAt) {
		t.Fatalf("updated_at went backwards: %v -> %v", rec.UpdatedAt, updated.UpdatedAt)
	}

	got, _, err := repo.List(ctx, domain.RecordQuery{LogicalTable: "inventory", Owner: owned(7), Page: domain.Page{Limit: 10}})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if got[0].Payload["name"] != "y" {
		t.Fatalf("mutation not persisted: %v", got[0].Payload)
	}

	entries, err := audits.List(ctx, domain.AuditFilter{Action: domain.AuditUpdate, Limit: 10})
	if err != nil {
		t.Fatalf("audit list failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Before["name"] != "x" || entries[0].After["name"] != "y" {
		t.Fatalf("unexpected update audit: %+v", entries)
	}
}

func TestUpdateOwnedNilOwnerMatchesOnlyUnownedRows(t *testing.T) {
	db := newTestDB(t)
	repo := NewRecordRepository(db)
	ctx := context.Background()

	ownedRec, err := repo.Insert(ctx, domain.Record{
		LogicalTable: "inventory",
		OwnerID:      owned(7),
		Payload:      map[string]any{"name": "owned"},
	}, newAudit(domain.AuditCreate, "inventory", owned(7), nil, nil))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	unownedRec, err := repo.Insert(ctx, domain.Record{
		LogicalTable: "inventory",
		Payload:      map[string]any{"name": "unowned"},
	}, newAudit(domain.AuditCreate, "inventory", nil, nil, nil))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	noop := func(prev domain.Record) (domain.Record, domain.AuditEntry, error) {
		return prev, newAudit(domain.AuditUpdate, "inventory", nil, prev.Payload, prev.Payload), nil
	}

	if _, err := repo.UpdateOwned(ctx, ownedRec.ID, nil, noop); !errors.Is(err, domain.ErrNotFoundOrForbidden) {
		t.Fatalf("nil owner must not reach owned rows, got %v", err)
	}
	if _, err := repo.UpdateOwned(ctx, unownedRec.ID, nil, noop); err != nil {
		t.Fatalf("nil owner must reach unowned rows: %v", err)
	}
}

func TestDeleteOwnedRemovesRecordAndAudits(t *testing.T) {
	db := newTestDB(t)
	repo := NewRecordRepository(db)
	audits := NewAuditRepository(db)
	ctx := context.Background()

	rec, err := repo.Insert(ctx, domain.Record{
		LogicalTable: "inventory",
		OwnerID:      owned(7),
		Payload:      map[string]any{"name": "x"},
	}, newAudit(domain.AuditCreate, "inventory", owned(7), nil, map[string]any{"name": "x"}))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := repo.DeleteOwned(ctx, rec.ID, owned(3), func(prev domain.Record) (domain.AuditEntry, error) {
		return newAudit(domain.AuditDelete, "inventory", owned(3), prev.Payload, nil), nil
	}); !errors.Is(err, domain.ErrNotFoundOrForbidden) {
		t.Fatalf("expected ownership failure, got %v", err)
	}

	if err := repo.DeleteOwned(ctx, rec.ID, owned(7), func(prev domain.Record) (domain.AuditEntry, error) {
		return newAudit(domain.AuditDelete, "inventory", owned(7), prev.Payload, nil), nil
	}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	_, total, err := repo.List(ctx, domain.RecordQuery{LogicalTable: "inventory", Owner: owned(7), Page: domain.Page{Limit: 10}})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 0 {
		t.Fatalf("record still present after delete: %d", total)
	}

	entries, err := audits.List(ctx, domain.AuditFilter{Action: domain.AuditDelete, Limit: 10})
	if err != nil {
		t.Fatalf("audit list failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Before["name"] != "x" || entries[0].After != nil {
		t.Fatalf("unexpected delete audit: %+v", entries)
	}
}

func TestListOrderingAndPagination(t *testing.T) {
	db := newTestDB(t)
	repo := NewRecordRepository(db)
	ctx := context.Background()

	var ids []int64
	for _, name := range []string{"a", "b", "c"} {
		rec, err := repo.Insert(ctx, domain.Record{
			LogicalTable: "inventory",
			OwnerID:      owned(7),
			Payload:      map[string]any{"name": name},
		}, newAudit(domain.AuditCreate, "inventory", owned(7), nil, nil))
		if err != nil {
			t.Fatalf("insert failed: %v", err)
		}
		ids = append(ids, rec.ID)
	}

	got, total, err := repo.List(ctx, domain.RecordQuery{
		LogicalTable: "inventory",
		Owner:        owned(7),
		Page:         domain.Page{Limit: 2},
		Order:        domain.Ordering{Field: "id", Descending: true},
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 3 {
		t.Fatalf("total must count beyond the page: %d", total)
	}
	if len(got) != 2 || got[0].ID != ids[2] || got[1].ID != ids[1] {
		t.Fatalf("unexpected page: %+v", got)
	}

	got, _, err = repo.List(ctx, domain.RecordQuery{
		LogicalTable: "inventory",
		Owner:        owned(7),
		Page:         domain.Page{Limit: 2, Offset: 2},
		Order:        domain.Ordering{Field: "id", Descending: true},
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != ids[0] {
		t.Fatalf("unexpected second page: %+v", got)
	}
}

func TestStatsAggregatesPerScope(t *testing.T) {
	db := newTestDB(t)
	repo := NewRecordRepository(db)
	ctx := context.Background()

	for _, tc := range []struct {
		table string
		owner *int64
	}{
		{"inventory", owned(7)},
		{"inventory", owned(7)},
		{"inventory", owned(8)},
		{"accounts", owned(7)},
	} {
		if _, err := repo.Insert(ctx, domain.Record{
			LogicalTable: tc.table,
			OwnerID:      tc.owner,
			Payload:      map[string]any{"name": "x"},
		}, newAudit(domain.AuditCreate, tc.table, tc.owner, nil, nil)); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	stats, err := repo.Stats(ctx, "inventory", nil)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalRecords != 3 || stats.DistinctOwners != 2 {
		t.Fatalf("unexpected unscoped stats: %+v", stats)
	}
	if stats.EarliestCreatedAt.IsZero() || stats.LatestCreatedAt.IsZero() {
		t.Fatalf("created-at range missing: %+v", stats)
	}
	if stats.StorageSizeEstimate == 0 {
		t.Fatalf("storage estimate missing: %+v", stats)
	}

	stats, err = repo.Stats(ctx, "inventory", owned(7))
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalRecords != 2 || stats.DistinctOwners != 1 {
		t.Fatalf("unexpected scoped stats: %+v", stats)
	}
}
