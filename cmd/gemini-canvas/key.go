package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shouni/gemini-canvas-kit/pkg/credential"
)

func newKeyCommand(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the Gemini API key stored in the OS keychain",
	}

	var fromStdin bool
	set := &cobra.Command{
		Use:   "set",
		Short: "Store an API key in the keychain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context(), global, runtimeOptions{noStudio: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			if fromStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return err
				}
				return rt.creds.Save(cmd.Context(), strings.TrimSpace(line))
			}
			rt.creds.SetPrompter(credential.NewTerminalPrompter())
			return rt.creds.RequestCredential(cmd.Context())
		},
	}
	set.Flags().BoolVar(&fromStdin, "stdin", false, "read the key from standard input")

	cmd.AddCommand(
		set,
		&cobra.Command{
			Use:   "clear",
			Short: "Remove the stored API key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := newRuntime(cmd.Context(), global, runtimeOptions{noStudio: true})
				if err != nil {
					return err
				}
				defer rt.Close()
				return rt.creds.Reset(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show where the API key is read from",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := newRuntime(cmd.Context(), global, runtimeOptions{noStudio: true})
				if err != nil {
					return err
				}
				defer rt.Close()
				fmt.Fprintln(cmd.OutOrStdout(), rt.creds.Source(cmd.Context()))
				return nil
			},
		},
	)
	return cmd
}
