package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/codedoc/internal/autofix"
	"github.com/xkilldash9x/codedoc/internal/config"
	"github.com/xkilldash9x/codedoc/internal/detector"
	"github.com/xkilldash9x/codedoc/internal/observability"
	"github.com/xkilldash9x/codedoc/internal/reporting"
	"github.com/xkilldash9x/codedoc/internal/service"
)

type fileReport struct {
	Path        string           `json:"path" yaml:"path"`
	Report      *detector.Report `json:"report" yaml:"report"`
	Review      string           `json:"review,omitempty" yaml:"review,omitempty"`
	ReviewError string           `json:"review_error,omitempty" yaml:"review_error,omitempty"`
}

func newAnalyzeCmd(factory service.ComponentFactory) *cobra.Command {
	var (
		language string
		format   string
		linters  []string
		review   bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <file>...",
		Short: "Run static analysis and report findings and a quality score",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			detCfg := cfg.Detector()
			if cmd.Flags().Changed("linters") {
				detCfg.Linters = linters
			}
			logger := observability.GetLogger()

			var reviewer *autofix.Reviewer
			if review {
				if strings.EqualFold(format, "sarif") {
					return fmt.Errorf("--review cannot be combined with sarif output")
				}
				llm, err := factory.CreateLLM(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer llm.Close()
				reviewer = autofix.NewReviewer(logger, llm, cfg.Repair().InferenceTimeout)
			}
			return runAnalyze(ctx, detCfg, logger, reviewer, args, language, format, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Language tag (default: from file extension)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json, yaml or sarif")
	cmd.Flags().StringSliceVar(&linters, "linters", nil, "External linters to run (ruff, black, flake8, govet)")
	cmd.Flags().BoolVar(&review, "review", false, "Also ask the fast model for a Markdown review of each file")
	return cmd
}

// runAnalyze analyzes paths and writes the reports to out. A nil reviewer
// skips the model review.
func runAnalyze(ctx context.Context, cfg config.DetectorConfig, logger *zap.Logger, reviewer *autofix.Reviewer, paths []string, language, format string, out io.Writer) error {
	format = strings.ToLower(format)
	switch format {
	case "text", "json", "yaml", "yml", "sarif":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	det := detector.NewDetector(cfg, logger)
	reports := make([]fileReport, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read '%s': %w", path, err)
		}
		rep, err := det.Analyze(ctx, path, language, string(data))
		if err != nil {
			return fmt.Errorf("failed to analyze '%s': %w", path, err)
		}
		logger.Debug("Analyzed file", zap.String("path", path), zap.Int("findings", len(rep.Findings)), zap.Int("score", rep.Score))
		fr := fileReport{Path: path, Report: rep}
		if reviewer != nil {
			unit := autofix.SourceUnit{Path: path, Language: string(rep.Language), Content: string(data)}
			if fr.Review, err = reviewer.Review(ctx, unit, rep.Findings); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn("Model review failed, reporting static analysis only.", zap.String("path", path), zap.Error(err))
				fr.ReviewError = err.Error()
			}
		}
		reports = append(reports, fr)
	}

	switch format {
	case "sarif":
		rep, err := reporting.New(format, reporting.NopCloser(out), Version, logger)
		if err != nil {
			return err
		}
		for _, r := range reports {
			if err := rep.Write(r.Path, r.Report.Findings); err != nil {
				return err
			}
		}
		return rep.Close()
	case "json":
		data, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case "yaml", "yml":
		data, err := yaml.Marshal(reports)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	p := newPrinter(out)
	for i, r := range reports {
		if i > 0 {
			p.println("")
		}
		p.report(r.Path, r.Report)
		switch {
		case r.Review != "":
			p.println("")
			p.review(r.Review)
		case r.ReviewError != "":
			p.println("")
			p.println(p.dim.Render("Review unavailable: " + r.ReviewError))
		}
	}
	return nil
}
