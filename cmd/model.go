package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/codedoc/internal/modelserver"
	"github.com/xkilldash9x/codedoc/internal/observability"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage local GGUF models",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List models in the models directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			models, err := modelserver.New(cfg.Server(), observability.GetLogger()).ListModels()
			if err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout())
			if len(models) == 0 {
				p.println(p.warn.Render(fmt.Sprintf("No models found in %s.", cfg.Server().ModelsDir)))
				return nil
			}
			p.println(p.title.Render(fmt.Sprintf("Found %d model(s):", len(models))))
			for _, m := range models {
				p.println(fmt.Sprintf("  %s (%.2f GB)", m.Name, float64(m.Size)/(1<<30)))
			}
			return nil
		},
	})
	return cmd
}
