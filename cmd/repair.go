package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/autofix"
	"github.com/xkilldash9x/codedoc/internal/config"
	"github.com/xkilldash9x/codedoc/internal/observability"
	"github.com/xkilldash9x/codedoc/internal/service"
)

// ErrNotRepaired is returned when at least one file ended without a passing
// candidate.
var ErrNotRepaired = errors.New("not every file was repaired")

type repairOptions struct {
	language    string
	root        string
	tests       string
	runner      string
	maxAttempts int
	concurrency int
	apply       bool
	out         string
	format      string
	noDiff      bool
}

func newRepairCmd(factory service.ComponentFactory) *cobra.Command {
	opts := repairOptions{}

	cmd := &cobra.Command{
		Use:   "repair <file>...",
		Short: "Repair source files with the model until the project's tests pass",
		Long: `repair runs static analysis on each file, asks the model for a fix, and
validates every candidate against the project's test command in a sandbox.
Failing test output is fed back into the next attempt until a candidate passes
or the attempt budget is spent. The original file is only touched with --apply.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			applyRepairOverrides(cmd, cfg, opts)
			return runRepair(ctx, cfg, observability.GetLogger(), factory, args, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Language tag (default: from file extension)")
	cmd.Flags().StringVar(&opts.root, "root", "", "Project root copied into the test sandbox (default: the file's directory)")
	cmd.Flags().StringVarP(&opts.tests, "tests", "t", "", "Test command run in the sandbox (overrides oracle.command)")
	cmd.Flags().StringVar(&opts.runner, "runner", "", "Test runner: local or docker (overrides oracle.runner)")
	cmd.Flags().IntVarP(&opts.maxAttempts, "max-attempts", "n", 0, "Attempts per file (overrides repair.max_attempts)")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "j", 0, "Files repaired in parallel (overrides repair.concurrency)")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Write the accepted fix back to the file")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Write the result artifact here (a directory when repairing several files)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Artifact format: json or yaml (default: repair.artifact_format)")
	cmd.Flags().BoolVar(&opts.noDiff, "no-diff", false, "Do not print the diff")

	return cmd
}

func applyRepairOverrides(cmd *cobra.Command, cfg *config.Config, opts repairOptions) {
	if cmd.Flags().Changed("max-attempts") {
		cfg.SetRepairMaxAttempts(opts.maxAttempts)
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.SetRepairConcurrency(opts.concurrency)
	}
	if cmd.Flags().Changed("tests") {
		cfg.SetOracleCommand(opts.tests)
	}
	if cmd.Flags().Changed("runner") {
		cfg.SetOracleRunner(opts.runner)
	}
}

// runRepair repairs every path concurrently and reports the results in
// argument order.
func runRepair(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	factory service.ComponentFactory,
	paths []string,
	opts repairOptions,
	out io.Writer,
) error {
	repairCfg := cfg.Repair()
	budget := autofix.Budget{MaxAttempts: repairCfg.MaxAttempts, AttemptTimeout: repairCfg.AttemptTimeout}
	format := opts.format
	if format == "" {
		format = repairCfg.ArtifactFormat
	}

	units := make([]autofix.SourceUnit, 0, len(paths))
	for _, p := range paths {
		u, err := loadUnit(p, opts)
		if err != nil {
			return err
		}
		units = append(units, u)
	}

	comps, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize repair components: %w", err)
	}
	defer comps.Shutdown()

	logger.Info("Starting repair",
		zap.Int("files", len(units)),
		zap.Int("max_attempts", budget.MaxAttempts),
		zap.Int("concurrency", repairCfg.Concurrency),
	)

	// Sessions are independent: one failing to start must not cancel the rest.
	results := make([]*schemas.Result, len(units))
	var g errgroup.Group
	g.SetLimit(max(1, repairCfg.Concurrency))
	for i, u := range units {
		g.Go(func() error {
			r, err := comps.Manager.Run(ctx, u, budget)
			if err != nil {
				return fmt.Errorf("%s: %w", u.Path, err)
			}
			results[i] = r
			return nil
		})
	}
	runErr := g.Wait()

	p := newPrinter(out)
	failed := 0
	for i, r := range results {
		if r == nil {
			failed++
			continue
		}
		p.result(r, !opts.noDiff)
		if r.Status != schemas.ResultSuccess {
			failed++
		}
		if opts.apply {
			if err := applyResult(units[i], r); err != nil {
				return err
			}
			if r.Status == schemas.ResultSuccess && r.Candidate != nil && *r.Candidate != units[i].Content {
				logger.Info("Applied fix", zap.String("path", units[i].Path))
			}
		}
		if opts.out != "" {
			dest := artifactPath(opts.out, len(units) > 1, r, format)
			if err := writeArtifact(dest, format, r); err != nil {
				return err
			}
			logger.Debug("Artifact written", zap.String("path", dest))
		}
	}

	if runErr != nil {
		return runErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d file(s) failed", ErrNotRepaired, failed, len(units))
	}
	return nil
}

func loadUnit(path string, opts repairOptions) (autofix.SourceUnit, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return autofix.SourceUnit{}, fmt.Errorf("failed to resolve '%s': %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return autofix.SourceUnit{}, fmt.Errorf("failed to read '%s': %w", path, err)
	}
	u := autofix.SourceUnit{Path: abs, Language: opts.language, Content: string(data)}
	if opts.root != "" {
		if u.ProjectRoot, err = filepath.Abs(opts.root); err != nil {
			return autofix.SourceUnit{}, fmt.Errorf("failed to resolve root '%s': %w", opts.root, err)
		}
	}
	return u, nil
}

// applyResult writes an accepted candidate over the source file, keeping its
// permissions. Anything but success leaves the file alone.
func applyResult(u autofix.SourceUnit, r *schemas.Result) error {
	if r.Status != schemas.ResultSuccess || r.Candidate == nil || *r.Candidate == u.Content {
		return nil
	}
	info, err := os.Stat(u.Path)
	if err != nil {
		return fmt.Errorf("failed to stat '%s': %w", u.Path, err)
	}
	if err := os.WriteFile(u.Path, []byte(*r.Candidate), info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to apply fix to '%s': %w", u.Path, err)
	}
	return nil
}

func artifactPath(out string, multi bool, r *schemas.Result, format string) string {
	if !multi {
		return out
	}
	ext := autofix.FormatJSON
	if f := strings.ToLower(format); f == autofix.FormatYAML || f == "yml" {
		ext = autofix.FormatYAML
	}
	id := r.SessionID
	if len(id) > 8 {
		id = id[:8]
	}
	return filepath.Join(out, fmt.Sprintf("%s.%s.%s", filepath.Base(r.Path), id, ext))
}

func writeArtifact(dest, format string, r *schemas.Result) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return autofix.WriteArtifact(dest, format, r)
}
