package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/recordvault/internal/adapters/cipher"
	sqliteadapter "github.com/atvirokodosprendimai/recordvault/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/recordvault/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
	"github.com/atvirokodosprendimai/recordvault/internal/core/ports"
	"github.com/atvirokodosprendimai/recordvault/internal/core/usecase"
	"github.com/atvirokodosprendimai/recordvault/migrations"
)

type Config struct {
	DBPath             string
	EncryptionKey      []byte
	SensitiveFields    []string
	BootstrapPrincipal string
}

// Engine wires the storage-and-integrity core. The store handle is an
// explicit dependency of every service, never ambient state.
type Engine struct {
	Records     *usecase.RecordService
	Audit       *usecase.AuditService
	Schemas     *usecase.SchemaService
	Diagnostics *usecase.DiagnosticsService
	Principals  ports.PrincipalRepository

	db  *gormsqlite.DB
	log zerolog.Logger
}

func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Engine, error) {
	db, err := gormsqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	migCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(migCtx, writeSQLDB); err != nil {
		_ = db.Close()
		return nil, err
	}

	symmetric, err := cipher.NewXChaCha(cfg.EncryptionKey)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	recordRepo := sqliteadapter.NewRecordRepository(db)
	auditRepo := sqliteadapter.NewAuditRepository(db)
	schemaRepo := sqliteadapter.NewSchemaRepository(db)
	principalRepo := sqliteadapter.NewPrincipalRepository(db)
	catalog := sqliteadapter.NewCatalog(db)

	schemaService := usecase.NewSchemaService(schemaRepo)
	policy := usecase.NewSensitivePolicy(cfg.SensitiveFields)

	engine := &Engine{
		Records:     usecase.NewRecordService(recordRepo, symmetric, schemaService, policy, log),
		Audit:       usecase.NewAuditService(auditRepo),
		Schemas:     schemaService,
		Diagnostics: usecase.NewDiagnosticsService(catalog, domain.DefaultDescriptor(), log),
		Principals:  principalRepo,
		db:          db,
		log:         log,
	}

	if cfg.BootstrapPrincipal != "" {
		bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, 5*time.Second)
		p, err := principalRepo.Upsert(bootstrapCtx, domain.Principal{
			Name:   cfg.BootstrapPrincipal,
			Active: true,
		})
		bootstrapCancel()
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap principal: %w", err)
		}
		log.Info().Int64("principal_id", p.ID).Str("name", p.Name).Msg("bootstrap principal ready")
	}

	return engine, nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}
