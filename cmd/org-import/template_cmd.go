package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iota-uz/org-import/modules/orgimport/infrastructure/spreadsheet"
)

func newTemplateCmd() *cobra.Command {
	var (
		output   string
		examples bool
	)
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write an empty import workbook with the expected headers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplate(output, examples)
		},
	}
	cmd.Flags().StringVar(&output, "output", "org-import-template.xlsx", "Path of the workbook to write")
	cmd.Flags().BoolVar(&examples, "examples", false, "Include example rows")
	return cmd
}

func runTemplate(output string, examples bool) error {
	if strings.TrimSpace(output) == "" {
		return withCode(exitUsage, fmt.Errorf("--output is required"))
	}
	payload, err := spreadsheet.Template(spreadsheet.TemplateOptions{IncludeExamples: examples})
	if err != nil {
		return fmt.Errorf("build template: %w", err)
	}
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return withCode(exitUsage, fmt.Errorf("mkdir %s: %w", dir, err))
		}
	}
	if err := os.WriteFile(output, payload, 0o644); err != nil {
		return withCode(exitUsage, fmt.Errorf("write %s: %w", output, err))
	}
	return nil
}
