package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
	"github.com/atvirokodosprendimai/recordvault/internal/core/ports"
)

// Sub-check names as they appear in DiagnosticsReport.Checks.
const (
	CheckSchema      = "schema"
	CheckPermissions = "permissions"
	CheckPerformance = "performance"
	CheckIntegrity   = "integrity"
)

// DiagnosticsService probes the live store against the static descriptor and
// repairs drift. All reads are safe to run concurrently with everything,
// including AutoFix; AutoFix takes no schema lock and is idempotent, so
// re-running it is the recovery mechanism for concurrent drift.
//
// Sub-checks return their report together with an error when the report
// contains a violation (drift, denied capability, orphans); the report is
// populated either way so composite callers can keep partial results.
type DiagnosticsService struct {
	catalog ports.Catalog
	desc    domain.Descriptor
	log     zerolog.Logger
}

func NewDiagnosticsService(catalog ports.Catalog, desc domain.Descriptor, log zerolog.Logger) *DiagnosticsService {
	return &DiagnosticsService{catalog: catalog, desc: desc, log: log}
}

// Probe checks basic connectivity. Failure is fatal to any composite call.
func (s *DiagnosticsService) Probe(ctx context.Context) (domain.ConnectionHealth, error) {
	health, err := s.catalog.Ping(ctx)
	if err != nil {
		return domain.ConnectionHealth{}, fmt.Errorf("%w: %v", domain.ErrConnectivity, err)
	}
	return health, nil
}

// ValidateSchema compares live catalog metadata to the descriptor. Pure
// read, never mutates. Detected drift is returned as a schema violation
// alongside the full report.
func (s *DiagnosticsService) ValidateSchema(ctx context.Context) (domain.SchemaReport, error) {
	report, err := s.schemaReport(ctx)
	if err != nil {
		return domain.SchemaReport{}, err
	}
	if report.Clean() {
		return report, nil
	}

	var details []string
	for _, t := range report.MissingTables {
		details = append(details, "missing table "+t)
	}
	for _, idx := range report.MissingIndexes {
		details = append(details, "missing index "+idx.Name+" on "+idx.Table)
	}
	return report, &domain.ErrSchemaViolation{Errors: details}
}

// CheckPermissions succeeds iff every capability probe is true.
func (s *DiagnosticsService) CheckPermissions(ctx context.Context) (domain.PermissionReport, error) {
	caps, err := s.catalog.Capabilities(ctx)
	if err != nil {
		return domain.PermissionReport{}, fmt.Errorf("probe capabilities: %w", err)
	}
	report := domain.PermissionReport{Capabilities: caps}
	if !report.AllGranted() {
		var denied []string
		for name, ok := range caps {
			if !ok {
				denied = append(denied, name)
			}
		}
		sort.Strings(denied)
		return report, fmt.Errorf("%w: %s", domain.ErrPermissionDenied, strings.Join(denied, ", "))
	}
	return report, nil
}

// CheckPerformance is best-effort: a store without a slow-statement facility
// reports an empty SlowOperations list and the check still succeeds.
func (s *DiagnosticsService) CheckPerformance(ctx context.Context) (domain.PerformanceReport, error) {
	report, err := s.catalog.Performance(ctx)
	if err != nil {
		return domain.PerformanceReport{}, fmt.Errorf("collect performance stats: %w", err)
	}
	return report, nil
}

// CheckIntegrity counts orphaned rows per logical table. Pure read; orphans
// are reported as an integrity violation alongside the counts.
func (s *DiagnosticsService) CheckIntegrity(ctx context.Context) (domain.IntegrityReport, error) {
	orphans, err := s.catalog.CountOrphans(ctx)
	if err != nil {
		return domain.IntegrityReport{}, fmt.Errorf("count orphans: %w", err)
	}

	report := domain.IntegrityReport{OrphansPerTable: orphans}
	for _, n := range orphans {
		report.TotalOrphans += n
	}
	if report.TotalOrphans > 0 {
		return report, fmt.Errorf("%w: %d orphaned rows", domain.ErrIntegrityViolation, report.TotalOrphans)
	}
	return report, nil
}

// RunDiagnostics composes the four checks. Probe is the mandatory
// precondition: if it fails the whole call fails with a connectivity error
// and no sub-check runs. Every other failure is captured per check and the
// composite call still returns the partial results.
func (s *DiagnosticsService) RunDiagnostics(ctx context.Context) (domain.DiagnosticsReport, error) {
	conn, err := s.Probe(ctx)
	if err != nil {
		return domain.DiagnosticsReport{}, err
	}

	report := domain.DiagnosticsReport{
		Health:     domain.HealthOK,
		Connection: conn,
		Checks:     make(map[string]domain.CheckOutcome, 4),
		RanAt:      time.Now().UTC(),
	}

	schema, err := s.ValidateSchema(ctx)
	report.Schema = &schema
	report.Checks[CheckSchema] = outcome(err)

	perms, err := s.CheckPermissions(ctx)
	report.Permissions = &perms
	report.Checks[CheckPermissions] = outcome(err)

	perf, err := s.CheckPerformance(ctx)
	report.Performance = &perf
	report.Checks[CheckPerformance] = outcome(err)

	integrity, err := s.CheckIntegrity(ctx)
	report.Integrity = &integrity
	report.Checks[CheckIntegrity] = outcome(err)

	for _, c := range report.Checks {
		if !c.OK {
			report.Health = domain.HealthIssues
			break
		}
	}
	return report, nil
}

// AutoFix runs the deterministic repair sequence: create missing tables,
// create missing indexes, delete orphaned rows. Each step is best-effort; a
// failed step is recorded in the returned descriptions and later steps still
// run. With no intervening drift a second consecutive run returns an empty
// list.
func (s *DiagnosticsService) AutoFix(ctx context.Context) ([]string, error) {
	if _, err := s.Probe(ctx); err != nil {
		return nil, err
	}

	fixes := []string{}

	report, err := s.schemaReport(ctx)
	if err != nil {
		fixes = append(fixes, fmt.Sprintf("Failed to inspect schema: %v", err))
	} else {
		for _, name := range report.MissingTables {
			spec, ok := s.desc.Table(name)
			if !ok {
				continue
			}
			if err := s.catalog.CreateTable(ctx, spec); err != nil {
				fixes = append(fixes, fmt.Sprintf("Failed to create table %s: %v", name, err))
				continue
			}
			s.log.Info().Str("table", name).Msg("autofix created missing table")
			fixes = append(fixes, fmt.Sprintf("Created missing table: %s", name))
		}

		for _, idx := range s.missingIndexes(ctx) {
			if err := s.catalog.CreateIndex(ctx, idx); err != nil {
				fixes = append(fixes, fmt.Sprintf("Failed to create index %s: %v", idx.Name, err))
				continue
			}
			s.log.Info().Str("index", idx.Name).Str("table", idx.Table).Msg("autofix created missing index")
			fixes = append(fixes, fmt.Sprintf("Created missing index: %s", idx.Name))
		}
	}

	orphans, err := s.catalog.CountOrphans(ctx)
	if err != nil {
		fixes = append(fixes, fmt.Sprintf("Failed to check integrity: %v", err))
		return fixes, nil
	}
	tables := make([]string, 0, len(orphans))
	for table, n := range orphans {
		if n > 0 {
			tables = append(tables, table)
		}
	}
	sort.Strings(tables)
	for _, table := range tables {
		n, err := s.catalog.DeleteOrphans(ctx, table)
		if err != nil {
			fixes = append(fixes, fmt.Sprintf("Failed to delete orphaned rows from table %s: %v", table, err))
			continue
		}
		s.log.Info().Str("table", table).Int64("rows", n).Msg("autofix deleted orphaned rows")
		fixes = append(fixes, fmt.Sprintf("Deleted %d orphaned rows from table %s", n, table))
	}

	return fixes, nil
}

// RepairIndexes rebuilds every index on every descriptor table and then
// refreshes store-level statistics. A single table's failure never aborts
// the rest.
func (s *DiagnosticsService) RepairIndexes(ctx context.Context) ([]domain.IndexRepair, error) {
	if _, err := s.Probe(ctx); err != nil {
		return nil, err
	}

	outcomes := make([]domain.IndexRepair, 0, len(s.desc.Tables))
	for _, table := range s.desc.TableNames() {
		if err := s.catalog.Reindex(ctx, table); err != nil {
			s.log.Warn().Err(err).Str("table", table).Msg("reindex failed")
			outcomes = append(outcomes, domain.IndexRepair{Table: table, Error: err.Error()})
			continue
		}
		outcomes = append(outcomes, domain.IndexRepair{Table: table, OK: true})
	}

	if err := s.catalog.RefreshStatistics(ctx); err != nil {
		s.log.Warn().Err(err).Msg("statistics refresh failed")
	}
	return outcomes, nil
}

// schemaReport inspects the live catalog without judging drift.
func (s *DiagnosticsService) schemaReport(ctx context.Context) (domain.SchemaReport, error) {
	live, err := s.catalog.Tables(ctx)
	if err != nil {
		return domain.SchemaReport{}, fmt.Errorf("list tables: %w", err)
	}

	liveSet := make(map[string]bool, len(live))
	for _, t := range live {
		liveSet[t] = true
	}

	report := domain.SchemaReport{
		ExistingTables:  live,
		PerTableColumns: make(map[string][]domain.ColumnInfo),
	}

	for _, spec := range s.desc.Tables {
		if !liveSet[spec.Name] {
			report.MissingTables = append(report.MissingTables, spec.Name)
			continue
		}
		cols, err := s.catalog.Columns(ctx, spec.Name)
		if err != nil {
			return domain.SchemaReport{}, fmt.Errorf("inspect columns of %s: %w", spec.Name, err)
		}
		report.PerTableColumns[spec.Name] = cols

		liveIdx, err := s.catalog.Indexes(ctx, spec.Name)
		if err != nil {
			return domain.SchemaReport{}, fmt.Errorf("inspect indexes of %s: %w", spec.Name, err)
		}
		idxSet := make(map[string]bool, len(liveIdx))
		for _, name := range liveIdx {
			idxSet[name] = true
		}
		for _, idx := range spec.Indexes {
			if !idxSet[idx.Name] {
				report.MissingIndexes = append(report.MissingIndexes, idx)
			}
		}
	}
	return report, nil
}

// missingIndexes enumerates required indexes absent from the live catalog,
// including those of tables created moments ago by AutoFix step 1.
func (s *DiagnosticsService) missingIndexes(ctx context.Context) []domain.IndexSpec {
	var missing []domain.IndexSpec
	for _, spec := range s.desc.Tables {
		live, err := s.catalog.Indexes(ctx, spec.Name)
		if err != nil {
			continue
		}
		idxSet := make(map[string]bool, len(live))
		for _, name := range live {
			idxSet[name] = true
		}
		for _, idx := range spec.Indexes {
			if !idxSet[idx.Name] {
				missing = append(missing, idx)
			}
		}
	}
	return missing
}

func outcome(err error) domain.CheckOutcome {
	if err != nil {
		return domain.CheckOutcome{Error: err.Error()}
	}
	return domain.CheckOutcome{OK: true}
}
