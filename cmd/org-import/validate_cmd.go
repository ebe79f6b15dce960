package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/org-import/modules/orgimport/infrastructure/persistence"
	"github.com/iota-uz/org-import/pkg/composables"
	"github.com/iota-uz/org-import/pkg/configuration"
)

func newValidateCmd() *cobra.Command {
	var opts importOptions
	var tenant, strategy string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a workbook without writing anything",
		Long: "Check a workbook without writing anything. With --tenant, references are also " +
			"resolved against the codes that tenant already has.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "Workbook to validate (required)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant UUID whose existing codes satisfy references")
	addPipelineFlags(cmd, &opts, &strategy)
	_ = cmd.MarkFlagRequired("file")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if v := strings.TrimSpace(tenant); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return withCode(exitUsage, fmt.Errorf("invalid --tenant: %w", err))
			}
			opts.tenantID = id
		}
		return parseStrategy(strategy, &opts)
	}
	return cmd
}

func runValidate(ctx context.Context, opts importOptions, out, errOut io.Writer) error {
	opts.apply = false
	conf, err := configuration.Load(configuration.DefaultEnvFiles)
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("load configuration: %w", err))
	}
	defer conf.Unload()

	if opts.tenantID == uuid.Nil {
		return execute(ctx, offlineStore{}, conf.Logger(), opts, opts.serviceOptions(conf.Import), out, errOut)
	}

	pool, err := connect(ctx, conf)
	if err != nil {
		return err
	}
	defer pool.Close()
	ctx = composables.WithPool(ctx, pool)
	ctx = composables.WithTenantID(ctx, opts.tenantID)
	return execute(ctx, persistence.NewImportRepository(), conf.Logger(), opts, opts.serviceOptions(conf.Import), out, errOut)
}
