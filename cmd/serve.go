package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/codedoc/internal/modelserver"
	"github.com/xkilldash9x/codedoc/internal/observability"
)

func newServeCmd() *cobra.Command {
	var (
		port      int
		gpuLayers int
		ctxSize   int
	)

	cmd := &cobra.Command{
		Use:   "serve [model.gguf]",
		Short: "Start the local inference server in the background",
		Long: `serve launches llama.cpp's OpenAI-compatible server for a GGUF model from the
models directory. Without a model argument the configured default is used,
falling back to the first model found.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			serverCfg := cfg.Server()
			if cmd.Flags().Changed("port") {
				serverCfg.Port = port
			}
			if cmd.Flags().Changed("gpu-layers") {
				serverCfg.GPULayers = gpuLayers
			}
			if cmd.Flags().Changed("ctx") {
				serverCfg.ContextSize = ctxSize
			}
			model := ""
			if len(args) == 1 {
				model = args[0]
			}

			srv := modelserver.New(serverCfg, observability.GetLogger())
			proc, err := srv.Start(cmd.Context(), model)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if proc.AlreadyRunning {
				fmt.Fprintf(out, "Server already running at %s\n", proc.URL)
				return nil
			}
			fmt.Fprintf(out, "Server online at %s (pid %d, model %s)\n", proc.URL, proc.PID, proc.Model)
			fmt.Fprintf(out, "Logs: %s\n", proc.LogPath)
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides server.port)")
	cmd.Flags().IntVar(&gpuLayers, "gpu-layers", 0, "Layers to offload to the GPU (overrides server.gpu_layers)")
	cmd.Flags().IntVar(&ctxSize, "ctx", 0, "Context window size (overrides server.context_size)")
	return cmd
}

func newKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill",
		Short: "Stop the background inference server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			pid, err := modelserver.New(cfg.Server(), observability.GetLogger()).Stop()
			if errors.Is(err, modelserver.ErrNotRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "No server is running.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server stopped (pid %d).\n", pid)
			return nil
		},
	}
}

// newServerCmd groups server inspection commands.
func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Inspect the local inference server",
	}

	var follow bool
	logs := &cobra.Command{
		Use:   "logs",
		Short: "Print the server log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			srv := modelserver.New(cfg.Server(), observability.GetLogger())
			return srv.StreamLogs(cmd.Context(), cmd.OutOrStdout(), follow)
		},
	}
	logs.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")

	status := &cobra.Command{
		Use:   "status",
		Short: "Report whether the server is answering",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			srv := modelserver.New(cfg.Server(), observability.GetLogger())
			out := cmd.OutOrStdout()
			if !srv.IsRunning(cmd.Context()) {
				fmt.Fprintf(out, "Server is not answering at %s\n", srv.BaseURL())
				return nil
			}
			if pid, err := srv.ReadPID(); err == nil {
				fmt.Fprintf(out, "Server running at %s (pid %d)\n", srv.BaseURL(), pid)
				return nil
			}
			fmt.Fprintf(out, "Server running at %s\n", srv.BaseURL())
			return nil
		},
	}

	cmd.AddCommand(logs, status)
	return cmd
}
