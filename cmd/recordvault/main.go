package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/recordvault/internal/app"
	"github.com/atvirokodosprendimai/recordvault/internal/config"
	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
	"github.com/atvirokodosprendimai/recordvault/internal/logx"
)

func main() {
	cmd := &cli.Command{
		Name:  "recordvault",
		Usage: "SQLite-backed encrypted record store with schema diagnostics",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Sources: cli.EnvVars("RECORDVAULT_CONFIG"),
				Usage:   "Path to YAML or JSON config file",
			},
			&cli.StringFlag{
				Name:  "db-path",
				Usage: "SQLite file path (overrides config)",
			},
			&cli.StringFlag{
				Name:    "key",
				Sources: cli.EnvVars("RECORDVAULT_KEY"),
				Usage:   "32-byte encryption key, hex or base64 (overrides config)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "trace, debug, info, warn or error",
			},
			&cli.BoolFlag{
				Name:  "console",
				Usage: "Human-readable log output",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "doctor",
				Usage: "Run the full diagnostic suite and print the report",
				Action: withEngine(func(ctx context.Context, c *cli.Command, e *app.Engine) error {
					report, err := e.Diagnostics.RunDiagnostics(ctx)
					if err != nil {
						return err
					}
					return printJSON(report)
				}),
			},
			{
				Name:  "autofix",
				Usage: "Repair schema drift and delete orphaned rows",
				Action: withEngine(func(ctx context.Context, c *cli.Command, e *app.Engine) error {
					fixes, err := e.Diagnostics.AutoFix(ctx)
					if err != nil {
						return err
					}
					return printJSON(fixes)
				}),
			},
			{
				Name:  "repair-indexes",
				Usage: "Rebuild all indexes and refresh statistics",
				Action: withEngine(func(ctx context.Context, c *cli.Command, e *app.Engine) error {
					outcomes, err := e.Diagnostics.RepairIndexes(ctx)
					if err != nil {
						return err
					}
					return printJSON(outcomes)
				}),
			},
			{
				Name:  "export",
				Usage: "Print decrypted records of one logical table as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "table", Required: true, Usage: "Logical table to export"},
					&cli.IntFlag{Name: "owner", Usage: "Restrict to one owner principal id"},
					&cli.IntFlag{Name: "limit", Value: 1000, Usage: "Maximum records"},
					&cli.BoolFlag{Name: "metadata", Usage: "Include record metadata"},
				},
				Action: withEngine(func(ctx context.Context, c *cli.Command, e *app.Engine) error {
					var owner *int64
					if c.IsSet("owner") {
						v := c.Int("owner")
						owner = &v
					}
					views, err := e.Records.Export(ctx, c.String("table"), owner, int(c.Int("limit")), c.Bool("metadata"))
					if err != nil {
						return err
					}
					return printJSON(views)
				}),
			},
			{
				Name:  "principal",
				Usage: "Manage owner principals",
				Commands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "Create or reactivate a principal by name",
						ArgsUsage: "<name>",
						Action: withEngine(func(ctx context.Context, c *cli.Command, e *app.Engine) error {
							if c.Args().Len() != 1 {
								return fmt.Errorf("usage: principal add <name>")
							}
							p, err := e.Principals.Upsert(ctx, domain.Principal{Name: c.Args().First(), Active: true})
							if err != nil {
								return err
							}
							return printJSON(p)
						}),
					},
					{
						Name:      "show",
						Usage:     "Print a principal by name",
						ArgsUsage: "<name>",
						Action: withEngine(func(ctx context.Context, c *cli.Command, e *app.Engine) error {
							if c.Args().Len() != 1 {
								return fmt.Errorf("usage: principal show <name>")
							}
							p, err := e.Principals.FindByName(ctx, c.Args().First())
							if err != nil {
								return err
							}
							return printJSON(p)
						}),
					},
					{
						Name:      "remove",
						Usage:     "Delete a principal; its records become orphans until autofix",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "id", Required: true, Usage: "Principal id"},
						},
						Action: withEngine(func(ctx context.Context, c *cli.Command, e *app.Engine) error {
							deleted, err := e.Principals.Delete(ctx, c.Int("id"))
							if err != nil {
								return err
							}
							return printJSON(map[string]bool{"deleted": deleted})
						}),
					},
				},
			},
			{
				Name:  "audit",
				Usage: "List audit trail entries, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "table", Usage: "Restrict to one logical table"},
					&cli.StringFlag{Name: "action", Usage: "CREATE, UPDATE or DELETE"},
					&cli.IntFlag{Name: "principal", Usage: "Restrict to one principal id"},
					&cli.IntFlag{Name: "before-id", Usage: "Return entries with id below this"},
					&cli.IntFlag{Name: "limit", Value: 100, Usage: "Maximum entries"},
				},
				Action: withEngine(func(ctx context.Context, c *cli.Command, e *app.Engine) error {
					filter := domain.AuditFilter{
						Action:       domain.AuditAction(c.String("action")),
						LogicalTable: c.String("table"),
						AfterID:      c.Int("before-id"),
						Limit:        int(c.Int("limit")),
					}
					if c.IsSet("principal") {
						v := c.Int("principal")
						filter.Principal = &v
					}
					entries, err := e.Audit.List(ctx, filter)
					if err != nil {
						return err
					}
					return printJSON(entries)
				}),
			},
			{
				Name:  "schema",
				Usage: "Manage per-logical-table JSON Schemas",
				Commands: []*cli.Command{
					{
						Name:      "set",
						Usage:     "Register or replace the schema for a logical table",
						ArgsUsage: "<table> <schema-file>",
						Action: withEngine(func(ctx context.Context, c *cli.Command, e *app.Engine) error {
							if c.Args().Len() != 2 {
								return fmt.Errorf("usage: schema set <table> <schema-file>")
							}
							doc, err := os.ReadFile(c.Args().Get(1))
							if err != nil {
								return fmt.Errorf("read schema file: %w", err)
							}
							saved, err := e.Schemas.Upsert(ctx, c.Args().Get(0), doc)
							if err != nil {
								return err
							}
							return printJSON(saved)
						}),
					},
					{
						Name:      "get",
						Usage:     "Print the schema configured for a logical table",
						ArgsUsage: "<table>",
						Action: withEngine(func(ctx context.Context, c *cli.Command, e *app.Engine) error {
							if c.Args().Len() != 1 {
								return fmt.Errorf("usage: schema get <table>")
							}
							schema, err := e.Schemas.Get(ctx, c.Args().First())
							if err != nil {
								return err
							}
							return printJSON(schema)
						}),
					},
					{
						Name:      "delete",
						Usage:     "Remove the schema for a logical table",
						ArgsUsage: "<table>",
						Action: withEngine(func(ctx context.Context, c *cli.Command, e *app.Engine) error {
							if c.Args().Len() != 1 {
								return fmt.Errorf("usage: schema delete <table>")
							}
							deleted, err := e.Schemas.Delete(ctx, c.Args().First())
							if err != nil {
								return err
							}
							return printJSON(map[string]bool{"deleted": deleted})
						}),
					},
				},
			},
			{
				Name:  "watch",
				Usage: "Run diagnostics periodically until interrupted",
				Action: withEngine(func(ctx context.Context, c *cli.Command, e *app.Engine) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					log := logx.New(cfg.Log.Level, cfg.Log.Console)

					sched, err := app.StartScheduler(e.Diagnostics, cfg.Diagnostics.Schedule, cfg.Diagnostics.AutoFix, log)
					if err != nil {
						return fmt.Errorf("start scheduler: %w", err)
					}
					defer func() { _ = sched.Close() }()

					sigCh := make(chan os.Signal, 1)
					signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
					defer signal.Stop(sigCh)

					select {
					case <-ctx.Done():
					case sig := <-sigCh:
						log.Info().Str("signal", sig.String()).Msg("shutting down")
					}
					return nil
				}),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Command) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if v := c.String("db-path"); v != "" {
		cfg.DBPath = v
	}
	if v := c.String("key"); v != "" {
		cfg.EncryptionKey = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if c.Bool("console") {
		cfg.Log.Console = true
	}
	return cfg, nil
}

func withEngine(fn func(ctx context.Context, c *cli.Command, e *app.Engine) error) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		key, err := cfg.Key()
		if err != nil {
			return err
		}
		log := logx.New(cfg.Log.Level, cfg.Log.Console)

		engine, err := app.New(ctx, app.Config{
			DBPath:             cfg.DBPath,
			EncryptionKey:      key,
			SensitiveFields:    cfg.SensitiveFields,
			BootstrapPrincipal: cfg.BootstrapPrincipal,
		}, log)
		if err != nil {
			return fmt.Errorf("initialize engine: %w", err)
		}
		defer func() {
			if closeErr := engine.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("close engine")
			}
		}()

		return fn(ctx, c, engine)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
