package domain

import "time"

type Health string

const (
	HealthOK     Health = "healthy"
	HealthIssues Health = "issues_detected"
)

// ConnectionHealth is the result of a successful Probe.
type ConnectionHealth struct {
	Latency         time.Duration
	ServerVersion   string
	CurrentUser     string
	CurrentDatabase string
}

type ColumnInfo struct {
	Name     string
	Type     string
	Nullable bool
}

// SchemaReport compares the live catalog to the descriptor. Pure read.
type SchemaReport struct {
	ExistingTables  []string
	MissingTables   []string
	PerTableColumns map[string][]ColumnInfo
	MissingIndexes  []IndexSpec
}

func (r SchemaReport) Clean() bool {
	return len(r.MissingTables) == 0 && len(r.MissingIndexes) == 0
}

// Capability names probed by CheckPermissions.
const (
	CapConnect     = "connect"
	CapSelect      = "select"
	CapInsert      = "insert"
	CapUpdate      = "update"
	CapDelete      = "delete"
	CapCreateTable = "create_table"
)

type PermissionReport struct {
	Capabilities map[string]bool
}

func (r PermissionReport) AllGranted() bool {
	for _, ok := range r.Capabilities {
		if !ok {
			return false
		}
	}
	return true
}

type SlowOperation struct {
	Statement string
	Calls     int64
	MeanTime  time.Duration
}

// PerformanceReport is best-effort: a store without a slow-statement
// facility reports an empty SlowOperations list and still succeeds.
type PerformanceReport struct {
	ActiveConnections int
	StorageSizeBytes  int64
	SlowOperations    []SlowOperation
}

// IntegrityReport counts rows whose owner reference points at a principal
// that no longer exists, per logical table.
type IntegrityReport struct {
	OrphansPerTable map[string]int64
	TotalOrphans    int64
}

// CheckOutcome captures one sub-check's result under the partial-results
// policy: a failed check is recorded here, never propagated as the
// composite call's error.
type CheckOutcome struct {
	OK    bool
	Error string
}

type DiagnosticsReport struct {
	Health      Health
	Connection  ConnectionHealth
	Schema      *SchemaReport
	Permissions *PermissionReport
	Performance *PerformanceReport
	Integrity   *IntegrityReport
	Checks      map[string]CheckOutcome
	RanAt       time.Time
}

// IndexRepair is one table's outcome from RepairIndexes.
type IndexRepair struct {
	Table string
	OK    bool
	Error string
}
