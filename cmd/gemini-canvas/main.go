package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shouni/gemini-canvas-kit/pkg/tui"
)

var version = "dev"

// globalFlags はすべてのコマンドで共通のフラグです。
type globalFlags struct {
	configPath string
	logLevel   string
	outputDir  string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "gemini-canvas",
		Short: "Infinite canvas for Gemini image generation",
		Long: `gemini-canvas is a terminal canvas for generating images with Gemini.
Drag the background to pan, scroll to zoom and drag cards to arrange them.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, flags, runtimeOptions{quietLogs: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			return tui.Run(ctx, rt.studio, tui.Options{
				OutputDir: flags.outputDir,
				SaveKey:   rt.creds.Save,
			})
		},
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default: $GEMINI_CANVAS_CONFIG or the user config dir)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVarP(&flags.outputDir, "out", "o", ".", "directory for saved images and exports")

	cmd.AddCommand(
		newGenerateCommand(flags),
		newSessionsCommand(flags),
		newKeyCommand(flags),
		newConfigCommand(flags),
	)
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
