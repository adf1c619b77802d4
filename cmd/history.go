package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/autofix"
	"github.com/xkilldash9x/codedoc/internal/config"
	"github.com/xkilldash9x/codedoc/internal/observability"
	"github.com/xkilldash9x/codedoc/internal/service"
)

var errArchiveDisabled = errors.New("session archive is disabled (store.driver is none)")

func openArchive(ctx context.Context, cfg *config.Config) (schemas.SessionStore, error) {
	s, err := service.InitializeStore(ctx, cfg.Store(), observability.GetLogger())
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errArchiveDisabled
	}
	return s, nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse archived repair sessions",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			s, err := openArchive(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			rows, err := s.ListResults(ctx, limit)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions archived yet.")
				return nil
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("SESSION", "STATUS", "ATTEMPTS", "CREATED", "PATH")
			for _, r := range rows {
				t.Row(r.SessionID, string(r.Status), fmt.Sprint(r.AttemptCount), r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Path)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of sessions to list")

	var format string
	show := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one archived session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			s, err := openArchive(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.GetResult(ctx, args[0])
			if err != nil {
				return err
			}
			if format != "" && format != "text" {
				data, err := autofix.NewArtifact(&rec.Result).Encode(format)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			p := newPrinter(cmd.OutOrStdout())
			p.result(&rec.Result, true)
			p.println(p.title.Render("Findings"))
			p.findings(rec.Result.Findings)
			return nil
		},
	}
	show.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json or yaml")

	cmd.AddCommand(list, show)
	return cmd
}
