package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/migrate/internal/config"
	"github.com/ehr/migrate/internal/domain/historical"
	"github.com/ehr/migrate/internal/journal"
	"github.com/ehr/migrate/internal/load"
	"github.com/ehr/migrate/internal/pipeline"
	"github.com/ehr/migrate/internal/platform/db"
	"github.com/ehr/migrate/internal/platform/fhir"
	"github.com/ehr/migrate/internal/report"
	"github.com/ehr/migrate/internal/resolve"
	"github.com/ehr/migrate/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "ehr-migrate",
		Short:         "Clinical data migration into a FHIR EHR",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Bool("console", false, "Human readable log output")

	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(mapCmd())
	rootCmd.AddCommand(journalCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads the config and builds the root logger.
func setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	console, _ := cmd.Flags().GetBool("console")
	return cfg, newLogger(cfg, console), nil
}

func newLogger(cfg *config.Config, console bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if console || cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func newClient(cfg *config.Config, logger zerolog.Logger) (*fhir.Client, error) {
	tokens := &fhir.ClientCredentials{
		TokenURL:     cfg.TokenURL(),
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		HTTPClient:   &http.Client{Timeout: cfg.HTTPTimeout},
	}
	if cfg.ClientPrivateKeyFile != "" {
		key, err := fhir.LoadPrivateKey(cfg.ClientPrivateKeyFile)
		if err != nil {
			return nil, err
		}
		tokens.PrivateKey = key
	}
	return fhir.NewClient(cfg.FHIRBaseURL, tokens,
		fhir.WithTimeout(cfg.HTTPTimeout),
		fhir.WithAPIBaseURL(cfg.APIBaseURL),
		fhir.WithLogger(logger),
	), nil
}

// journals opens journal stores on the configured backend.
type journals struct {
	cfg  *config.Config
	pool *pgxpool.Pool
	run  string
}

func openJournals(ctx context.Context, cfg *config.Config, run string) (*journals, error) {
	j := &journals{cfg: cfg, run: run}
	if cfg.JournalBackend != config.JournalBackendPostgres {
		return j, nil
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.DefaultSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	j.pool = pool
	return j, nil
}

func (j *journals) open(resource string) (journal.Store, error) {
	if j.pool != nil {
		return journal.NewPGStore(j.pool, resource, j.run), nil
	}
	fs, err := journal.NewFileStore(j.cfg.ResultsDir, resource, j.cfg.DelimiterRune())
	if err != nil {
		return nil, err
	}
	return fs, nil
}

func (j *journals) Close() {
	if j.pool != nil {
		j.pool.Close()
	}
}

func newPipeline(cfg *config.Config, logger zerolog.Logger, def resourceDef, codes map[string]*resolve.CodeMap, builder load.Builder, opts ...pipeline.Option) *pipeline.Pipeline {
	base := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithResultsDir(cfg.ResultsDir),
		pipeline.WithDelimiter(cfg.DelimiterRune()),
	}
	return pipeline.New(def.schema(codes), builder, append(base, opts...)...)
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <resource>",
		Short: "Validate an export and write its error report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			def, err := lookupResource(args[0])
			if err != nil {
				return err
			}
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				file = sourceFile(cfg.DataDir, def.name)
			}

			codes, err := loadCodeMaps(cfg.MappingsDir, def)
			if err != nil {
				return err
			}
			p := newPipeline(cfg, logger, def, codes, nil)
			rep, err := p.Validate(file)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d rows, %d valid, %d rejected\n", def.name, rep.Total, len(rep.Rows), rep.Rejected)
			return nil
		},
	}
	cmd.Flags().String("file", "", "Export file (default DATA_DIR/<resource>.csv)")
	return cmd
}

func loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <resource>",
		Short: "Validate an export and load the valid rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateForLoad(); err != nil {
				return err
			}
			def, err := lookupResource(args[0])
			if err != nil {
				return err
			}
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				file = sourceFile(cfg.DataDir, def.name)
			}
			skipInvalid, _ := cmd.Flags().GetBool("skip-invalid")
			cutoffFlag, _ := cmd.Flags().GetString("cutoff")
			cutoff, err := parseCutoff(cutoffFlag)
			if err != nil {
				return err
			}
			noDupCheck, _ := cmd.Flags().GetBool("no-duplicate-check")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			codes, err := loadCodeMaps(cfg.MappingsDir, def)
			if err != nil {
				return err
			}
			res, err := resolve.Load(resolve.Files{
				Patients:  mappingFile(cfg.MappingsDir, patientMapFile),
				Providers: mappingFile(cfg.MappingsDir, providerMapFile),
				Locations: mappingFile(cfg.MappingsDir, locationMapFile),
				Notes:     filepath.Join(cfg.ResultsDir, noteCacheFile),
				Codes:     codeFiles(cfg.MappingsDir, def),
			}, resolve.WithDefaults(cfg.DefaultProvider, cfg.DefaultLocation))
			if err != nil {
				return err
			}
			counts := res.Counts()
			logger.Info().
				Int("patients", counts[resolve.KindPatient]).
				Int("providers", counts[resolve.KindProvider]).
				Int("locations", counts[resolve.KindLocation]).
				Int("code_maps", counts["code_maps"]).
				Msg("mappings loaded")

			client, err := newClient(cfg, logger)
			if err != nil {
				return err
			}
			notes := historical.New(res, client, historical.Settings{
				NoteTypeName: cfg.NoteTypeName,
				ProviderKey:  cfg.DefaultProvider,
				LocationKey:  cfg.DefaultLocation,
				ServiceTime:  cfg.NoteServiceTime,
			})
			builder := def.builder(deps{
				resolver:     res,
				client:       client,
				notes:        notes,
				sourceSystem: cfg.SourceSystem,
				cutoff:       cutoff,
				noDupCheck:   noDupCheck,
			})

			runID := uuid.NewString()
			js, err := openJournals(ctx, cfg, runID)
			if err != nil {
				return err
			}
			defer js.Close()
			store, err := js.open(def.name)
			if err != nil {
				return err
			}
			defer store.Close()

			p := newPipeline(cfg, logger, def, codes, builder,
				pipeline.WithLoader(store, client),
				pipeline.WithEngineOptions(load.WithRunID(runID)),
			)
			rep, err := p.Validate(file)
			if err != nil {
				return err
			}
			if !rep.OK() && !skipInvalid {
				return fmt.Errorf("%d of %d rows failed validation, review %s or pass --skip-invalid",
					rep.Rejected, rep.Total, p.ReportPath())
			}

			sum, err := p.Load(ctx, rep.Rows)
			if sum != nil {
				fmt.Printf("%s: %d done, %d ignored, %d errored, %d skipped of %d\n",
					def.name, sum.Done, sum.Ignored, sum.Errored, sum.Skipped, sum.Total)
			}
			return err
		},
	}
	cmd.Flags().String("file", "", "Export file (default DATA_DIR/<resource>.csv)")
	cmd.Flags().Bool("skip-invalid", false, "Load the valid rows even when some rows fail validation")
	cmd.Flags().String("cutoff", "", "Ignore appointments starting after this date or time")
	cmd.Flags().Bool("no-duplicate-check", false, "Do not search for existing appointments before creating")
	return cmd
}

func mapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Build identifier maps from the target system",
	}

	patientsCmd := &cobra.Command{
		Use:   "patients",
		Short: "Map source patient identifiers to target patient ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateForLoad(); err != nil {
				return err
			}
			system, _ := cmd.Flags().GetString("system")
			if system == "" {
				system = cfg.SourceSystem
			}
			if system == "" {
				return fmt.Errorf("--system or SOURCE_SYSTEM is required")
			}
			pageSize, _ := cmd.Flags().GetInt("page-size")
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				out = filepath.Join(cfg.MappingsDir, patientMapFile+".json")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := newClient(cfg, logger)
			if err != nil {
				return err
			}
			m, err := resolve.BuildPatientMap(ctx, client, system, pageSize)
			if err != nil {
				return err
			}
			if err := resolve.WriteJSONFile(out, m); err != nil {
				return err
			}
			logger.Info().Int("patients", len(m)).Str("file", out).Msg("patient map written")
			return nil
		},
	}
	patientsCmd.Flags().String("system", "", "Identifier system of source patient ids (default SOURCE_SYSTEM)")
	patientsCmd.Flags().Int("page-size", 100, "Search page size")
	patientsCmd.Flags().String("out", "", "Output file (default MAPPINGS_DIR/patient_id_map.json)")
	cmd.AddCommand(patientsCmd)

	return cmd
}

func journalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "journal [resource...]",
		Short: "Summarize the journals of resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				names = resourceNames()
			}

			ctx := context.Background()
			js, err := openJournals(ctx, cfg, "")
			if err != nil {
				return err
			}
			defer js.Close()

			summaries := make([]*report.ResourceSummary, 0, len(names))
			for _, n := range names {
				def, err := lookupResource(n)
				if err != nil {
					return err
				}
				sum, err := summarize(ctx, js, cfg.ResultsDir, def.name)
				if err != nil {
					return err
				}
				summaries = append(summaries, sum)
			}
			return report.Print(os.Stdout, summaries...)
		},
	}
}

func summarize(ctx context.Context, js *journals, resultsDir, resource string) (*report.ResourceSummary, error) {
	store, err := js.open(resource)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	sum, err := report.Summarize(ctx, resource, store)
	if err != nil {
		return nil, err
	}
	if err := sum.AddValidation(pipeline.ReportPath(resultsDir, resource)); err != nil {
		return nil, err
	}
	return sum, nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve journal summaries over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = cfg.ReportAddr
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			js, err := openJournals(ctx, cfg, "")
			if err != nil {
				return err
			}
			defer js.Close()

			opts := []report.ServerOption{
				report.WithLogger(logger),
				report.WithReportPath(func(resource string) string {
					return pipeline.ReportPath(cfg.ResultsDir, resource)
				}),
			}
			if js.pool != nil {
				opts = append(opts, report.WithDatabase(js.pool))
			}
			return report.NewServer(resourceNames(), js.open, opts...).Start(ctx, addr)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default REPORT_ADDR)")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres journal schema",
	}

	withMigrator := func(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator, schema string) error) error {
		schema, _ := cmd.Flags().GetString("schema")
		cfg, _, err := setup(cmd)
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}

		ctx := context.Background()
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, schema, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, db.NewMigrator(pool, migrations.FS), schema)
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				fmt.Printf("Running migrations on schema: %s\n", schema)
				count, err := m.Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("schema", db.DefaultSchema, "Target schema for the journal tables")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				statuses, err := m.Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("Migration status for schema: %s\n", schema)
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("schema", db.DefaultSchema, "Target schema for the journal tables")
	cmd.AddCommand(statusCmd)

	return cmd
}
