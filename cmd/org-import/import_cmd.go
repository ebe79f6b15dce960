package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/org-import/modules/orgimport/infrastructure/persistence"
	"github.com/iota-uz/org-import/modules/orgimport/services"
	"github.com/iota-uz/org-import/modules/orgimport/services/duplicates"
	"github.com/iota-uz/org-import/modules/orgimport/services/progress"
	"github.com/iota-uz/org-import/pkg/composables"
	"github.com/iota-uz/org-import/pkg/configuration"
)

type importOptions struct {
	file         string
	tenantID     uuid.UUID
	apply        bool
	allowPartial bool
	autoResolve  bool
	showProgress bool
	maxPasses    int
	concurrency  int
	strategy     duplicates.Strategy
}

func (o importOptions) serviceOptions(base configuration.ImportOptions) services.Options {
	opts := services.Options{
		MaxRowsPerSheet:       base.MaxRowsPerSheet,
		MaxWavePasses:         base.MaxWavePasses,
		WaveConcurrency:       base.WaveConcurrency,
		AllowPartial:          base.AllowPartial || o.allowPartial,
		AutoResolveDuplicates: base.AutoResolveDuplicates || o.autoResolve,
	}
	if o.maxPasses > 0 {
		opts.MaxWavePasses = o.maxPasses
	}
	if o.concurrency > 0 {
		opts.WaveConcurrency = o.concurrency
	}
	return opts
}

func newImportCmd() *cobra.Command {
	var opts importOptions
	var tenant, strategy string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import departments and positions from an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "Workbook to import (required)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant UUID (required)")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Write to the database (default is dry-run)")
	cmd.Flags().BoolVar(&opts.allowPartial, "allow-partial", false, "Import valid rows and skip blocked subtrees")
	addPipelineFlags(cmd, &opts, &strategy)

	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("tenant")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(strings.TrimSpace(tenant))
		if err != nil {
			return withCode(exitUsage, fmt.Errorf("invalid --tenant: %w", err))
		}
		opts.tenantID = id
		return parseStrategy(strategy, &opts)
	}
	return cmd
}

func addPipelineFlags(cmd *cobra.Command, opts *importOptions, strategy *string) {
	cmd.Flags().BoolVar(&opts.autoResolve, "auto-resolve", false, "Resolve duplicate codes with the recommended strategy")
	cmd.Flags().StringVar(strategy, "strategy", "", "Resolve every duplicate group with keep-first, keep-last, merge or keep-all")
	cmd.Flags().IntVar(&opts.maxPasses, "max-passes", 0, "Maximum dependency passes (default from ORG_IMPORT_MAX_WAVE_PASSES)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Concurrent inserts per wave (default from ORG_IMPORT_WAVE_CONCURRENCY)")
	cmd.Flags().BoolVar(&opts.showProgress, "progress", false, "Print progress to stderr")
}

func parseStrategy(v string, opts *importOptions) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	s := duplicates.Strategy(v)
	if !s.Valid() {
		return withCode(exitUsage, fmt.Errorf("invalid --strategy %q", v))
	}
	opts.strategy = s
	return nil
}

func runImport(ctx context.Context, opts importOptions, out, errOut io.Writer) error {
	conf, err := configuration.Load(configuration.DefaultEnvFiles)
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("load configuration: %w", err))
	}
	defer conf.Unload()

	pool, err := connect(ctx, conf)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx = composables.WithPool(ctx, pool)
	ctx = composables.WithTenantID(ctx, opts.tenantID)
	ctx = composables.WithActor(ctx, composables.SystemActor)
	if err := persistence.EnsureSchema(ctx); err != nil {
		return withCode(exitDB, fmt.Errorf("ensure schema: %w", err))
	}
	return execute(ctx, persistence.NewImportRepository(), conf.Logger(), opts, opts.serviceOptions(conf.Import), out, errOut)
}

// execute runs the pipeline against store and prints the outcome as one JSON line.
func execute(ctx context.Context, store services.Store, logger *logrus.Logger, opts importOptions, svcOpts services.Options, out, errOut io.Writer) error {
	payload, err := readFile(opts.file)
	if err != nil {
		return err
	}
	tracker := progress.NewTracker(progress.WithTickInterval(0))
	defer tracker.Close()
	if opts.showProgress {
		defer tracker.Subscribe(progressPrinter(errOut))()
	}

	svc := services.NewImportService(store, logger, svcOpts)
	result, runErr := svc.Run(ctx, services.Request{
		RunID:             uuid.New(),
		FileName:          opts.file,
		Payload:           payload,
		DuplicateStrategy: opts.strategy,
		DryRun:            !opts.apply,
		AllowPartial:      opts.allowPartial,
	}, tracker)
	if result != nil {
		if err := writeJSONLine(out, result); err != nil {
			return err
		}
	}
	if runErr != nil {
		return serviceExit(runErr)
	}
	return nil
}

func connect(ctx context.Context, conf *configuration.Configuration) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		return nil, withCode(exitDB, fmt.Errorf("connect db: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, withCode(exitDB, fmt.Errorf("ping db: %w", err))
	}
	return pool, nil
}

// offlineStore backs validation runs that are not checked against a tenant.
type offlineStore struct{}

var errOffline = errors.New("offline validation does not write")

func (offlineStore) ListDepartmentCodes(context.Context) (map[string]uuid.UUID, error) {
	return map[string]uuid.UUID{}, nil
}

func (offlineStore) ListPositionCodes(context.Context) (map[string]uuid.UUID, error) {
	return map[string]uuid.UUID{}, nil
}

func (offlineStore) InsertDepartment(context.Context, services.DepartmentInsert) (uuid.UUID, error) {
	return uuid.Nil, errOffline
}

func (offlineStore) InsertPosition(context.Context, services.PositionInsert) (uuid.UUID, error) {
	return uuid.Nil, errOffline
}
