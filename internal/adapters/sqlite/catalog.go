package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os/user"
	"regexp"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/recordvault/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// errProbeRollback aborts a capability-probe transaction after the probes
// ran; the rollback keeps probes side-effect free.
var errProbeRollback = errors.New("capability probe rollback")

// Catalog exposes SQLite's live catalog metadata and the repair actions the
// diagnostics subsystem runs. DDL goes through the single-connection writer;
// metadata reads go through the read pool.
type Catalog struct {
	db *gormsqlite.DB
}

func NewCatalog(db *gormsqlite.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) Ping(ctx context.Context) (domain.ConnectionHealth, error) {
	start := time.Now()
	if err := c.db.Ping(ctx); err != nil {
		return domain.ConnectionHealth{}, err
	}
	latency := time.Since(start)

	var version string
	err := c.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Raw("SELECT sqlite_version()").Scan(&version).Error
	})
	if err != nil {
		return domain.ConnectionHealth{}, err
	}

	// SQLite has no session user; the process owner is what governs access
	// to the database file.
	current := "unknown"
	if u, err := user.Current(); err == nil {
		current = u.Username
	}

	return domain.ConnectionHealth{
		Latency:         latency,
		ServerVersion:   version,
		CurrentUser:     current,
		CurrentDatabase: c.db.Path,
	}, nil
}

func (c *Catalog) Tables(ctx context.Context) ([]string, error) {
	var names []string
	err := c.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Raw(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`,
		).Scan(&names).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

func (c *Catalog) Columns(ctx context.Context, table string) ([]domain.ColumnInfo, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}

	var rows []struct {
		Name    string `gorm:"column:name"`
		Type    string `gorm:"column:type"`
		NotNull int    `gorm:"column:notnull"`
	}
	err := c.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Raw(`PRAGMA table_info(` + quoteIdent(table) + `)`).Scan(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("inspect columns of %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: table %s", domain.ErrNotFound, table)
	}

	cols := make([]domain.ColumnInfo, 0, len(rows))
	for _, row := range rows {
		cols = append(cols, domain.ColumnInfo{
			Name:     row.Name,
			Type:     row.Type,
			Nullable: row.NotNull == 0,
		})
	}
	return cols, nil
}

func (c *Catalog) Indexes(ctx context.Context, table string) ([]string, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}

	var rows []struct {
		Name   string `gorm:"column:name"`
		Origin string `gorm:"column:origin"`
	}
	err := c.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Raw(`PRAGMA index_list(` + quoteIdent(table) + `)`).Scan(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("inspect indexes of %s: %w", table, err)
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		// Implicit PK/unique-constraint indexes are not declared in the
		// descriptor, so they don't count as drift either way.
		if row.Origin != "c" || strings.HasPrefix(row.Name, "sqlite_autoindex") {
			continue
		}
		names = append(names, row.Name)
	}
	return names, nil
}

// CreateTable renders the canonical DDL from the descriptor entry and runs
// it. IF NOT EXISTS keeps the action idempotent under concurrent repair.
func (c *Catalog) CreateTable(ctx context.Context, spec domain.TableSpec) error {
	if err := validIdent(spec.Name); err != nil {
		return err
	}

	lines := make([]string, 0, len(spec.Columns))
	for _, col := range spec.Columns {
		if err := validIdent(col.Name); err != nil {
			return err
		}
		line := quoteIdent(col.Name) + " " + col.Type
		switch {
		case col.PrimaryKey && col.AutoIncrement:
			line += " PRIMARY KEY AUTOINCREMENT"
		case col.PrimaryKey:
			line += " PRIMARY KEY"
		case !col.Nullable:
			line += " NOT NULL"
		}
		if col.Unique && !col.PrimaryKey {
			line += " UNIQUE"
		}
		lines = append(lines, line)
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(spec.Name), strings.Join(lines, ", "))
	err := c.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Exec(ddl).Error
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	return nil
}

func (c *Catalog) CreateIndex(ctx context.Context, spec domain.IndexSpec) error {
	if err := validIdent(spec.Name); err != nil {
		return err
	}
	if err := validIdent(spec.Table); err != nil {
		return err
	}
	cols := make([]string, 0, len(spec.Columns))
	for _, col := range spec.Columns {
		if err := validIdent(col); err != nil {
			return err
		}
		cols = append(cols, quoteIdent(col))
	}

	ddl := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		quoteIdent(spec.Name), quoteIdent(spec.Table), strings.Join(cols, ", "))
	err := c.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Exec(ddl).Error
	})
	if err != nil {
		return fmt.Errorf("create index %s: %w", spec.Name, err)
	}
	return nil
}

func (c *Catalog) Reindex(ctx context.Context, table string) error {
	if err := validIdent(table); err != nil {
		return err
	}
	err := c.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Exec(`REINDEX ` + quoteIdent(table)).Error
	})
	if err != nil {
		return fmt.Errorf("reindex %s: %w", table, err)
	}
	return nil
}

func (c *Catalog) RefreshStatistics(ctx context.Context) error {
	err := c.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Exec(`ANALYZE`).Error
	})
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	return nil
}

// Capabilities runs one boolean probe per capability. Row probes execute
// real statements against the identity table inside a transaction that is
// always rolled back.
func (c *Catalog) Capabilities(ctx context.Context) (map[string]bool, error) {
	caps := map[string]bool{
		domain.CapConnect:     c.db.Ping(ctx) == nil,
		domain.CapSelect:      false,
		domain.CapInsert:      false,
		domain.CapUpdate:      false,
		domain.CapDelete:      false,
		domain.CapCreateTable: false,
	}

	var n int64
	if err := c.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Raw(`SELECT COUNT(*) FROM principals`).Scan(&n).Error
	}); err == nil {
		caps[domain.CapSelect] = true
	}

	probeName := fmt.Sprintf("__capability_probe_%d", time.Now().UnixNano())
	err := c.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Exec(
			`INSERT INTO principals (name, active, created_at) VALUES (?, 0, ?)`,
			probeName, time.Now().UTC(),
		).Error; err != nil {
			return errProbeRollback
		}
		caps[domain.CapInsert] = true

		if err := tx.Exec(`UPDATE principals SET active = 0 WHERE name = ?`, probeName).Error; err != nil {
			return errProbeRollback
		}
		caps[domain.CapUpdate] = true

		if err := tx.Exec(`DELETE FROM principals WHERE name = ?`, probeName).Error; err != nil {
			return errProbeRollback
		}
		caps[domain.CapDelete] = true

		return errProbeRollback
	})
	if err != nil && !errors.Is(err, errProbeRollback) {
		return nil, fmt.Errorf("probe row capabilities: %w", err)
	}

	err = c.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Exec(`CREATE TABLE IF NOT EXISTS __capability_probe (id INTEGER)`).Error; err != nil {
			return errProbeRollback
		}
		caps[domain.CapCreateTable] = true
		return errProbeRollback
	})
	if err != nil && !errors.Is(err, errProbeRollback) {
		return nil, fmt.Errorf("probe create-table capability: %w", err)
	}

	return caps, nil
}

// Performance is best-effort by design: SQLite has no slow-statement
// facility, so SlowOperations stays empty and that is not an error.
func (c *Catalog) Performance(ctx context.Context) (domain.PerformanceReport, error) {
	var pageCount, pageSize int64
	err := c.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Raw(`PRAGMA page_count`).Scan(&pageCount).Error; err != nil {
			return err
		}
		return tx.Raw(`PRAGMA page_size`).Scan(&pageSize).Error
	})
	if err != nil {
		return domain.PerformanceReport{}, fmt.Errorf("read storage size: %w", err)
	}

	return domain.PerformanceReport{
		ActiveConnections: c.db.ConnectionsInUse(),
		StorageSizeBytes:  pageCount * pageSize,
		SlowOperations:    []domain.SlowOperation{},
	}, nil
}

func (c *Catalog) CountOrphans(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		LogicalTable string `gorm:"column:logical_table"`
		N            int64  `gorm:"column:n"`
	}
	err := c.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Raw(`
			SELECT logical_table, COUNT(*) AS n
			FROM records
			WHERE owner_id IS NOT NULL
			  AND owner_id NOT IN (SELECT id FROM principals)
			GROUP BY logical_table`,
		).Scan(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("count orphaned records: %w", err)
	}

	orphans := make(map[string]int64, len(rows))
	for _, row := range rows {
		orphans[row.LogicalTable] = row.N
	}
	return orphans, nil
}

func (c *Catalog) DeleteOrphans(ctx context.Context, logicalTable string) (int64, error) {
	var deleted int64
	err := c.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Exec(`
			DELETE FROM records
			WHERE logical_table = ?
			  AND owner_id IS NOT NULL
			  AND owner_id NOT IN (SELECT id FROM principals)`,
			logicalTable)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete orphaned records from %s: %w", logicalTable, err)
	}
	return deleted, nil
}

func validIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: %q is not a valid identifier", domain.ErrInvalidTable, name)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}
