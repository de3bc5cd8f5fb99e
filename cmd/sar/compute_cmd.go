package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/iota-uz/sar/modules/registry/domain/issue"
	"github.com/iota-uz/sar/modules/registry/services"
)

const (
	runFileName    = "run.json"
	viewFileName   = "view.json"
	issuesFileName = "issues.json"
)

type computeOptions struct {
	outputDir   string
	maxIssues   int
	failOnError bool
}

type issuesFile struct {
	RunID       string        `json:"run_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Summary     issue.Summary `json:"summary"`
	Issues      []issue.Issue `json:"issues"`
}

type computeSummary struct {
	Status  string        `json:"status"`
	RunID   string        `json:"run_id"`
	Summary issue.Summary `json:"summary"`
	Files   []string      `json:"files"`
}

func newComputeCmd(root *rootOptions) *cobra.Command {
	var opts computeOptions

	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Validate the registry and write the flattened view and issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.maxIssues < 0 {
				return withCode(exitUsage, fmt.Errorf("invalid --max-issues: %d", opts.maxIssues))
			}
			if opts.maxIssues == 0 {
				opts.maxIssues = root.conf.Registry.MaxIssues
			}
			if err := ensureDir(opts.outputDir); err != nil {
				return err
			}

			registry, err := root.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			run, err := registry.Compute(cmd.Context())
			if err != nil {
				return registryError(err)
			}

			files, err := writeRunFiles(opts.outputDir, run, opts.maxIssues)
			if err != nil {
				return err
			}
			status := "ok"
			if run.Summary.Errors > 0 {
				status = "invalid"
			}
			if err := writeJSONLine(cmd.OutOrStdout(), computeSummary{
				Status:  status,
				RunID:   run.ID.String(),
				Summary: run.Summary,
				Files:   files,
			}); err != nil {
				return err
			}
			if opts.failOnError && run.Summary.Errors > 0 {
				return withCode(exitValidation, fmt.Errorf("registry has %d error(s)", run.Summary.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.outputDir, "output", ".", "directory for run.json, view.json and issues.json")
	cmd.Flags().IntVar(&opts.maxIssues, "max-issues", 0, "cap issues.json at this many issues (0 = SAR_MAX_ISSUES or no cap)")
	cmd.Flags().BoolVar(&opts.failOnError, "fail-on-error", false, "exit with code 2 when any error-severity issue is found")
	return cmd
}

func writeRunFiles(dir string, run *services.Run, maxIssues int) ([]string, error) {
	issues := make([]issue.Issue, len(run.Issues))
	copy(issues, run.Issues)
	issue.Sort(issues)
	out := issuesFile{
		RunID:       run.ID.String(),
		GeneratedAt: run.GeneratedAt,
		Summary:     run.Summary,
	}
	out.Issues, out.Summary.Truncated = issue.Truncate(issues, maxIssues)

	files := []struct {
		name string
		v    any
	}{
		{runFileName, run},
		{viewFileName, run.View},
		{issuesFileName, out},
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		p := filepath.Join(dir, f.name)
		if err := writeJSONFile(p, f.v); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
