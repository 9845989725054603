package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/shouni/gemini-canvas-kit/pkg/session"
)

func newSessionsCommand(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Manage saved canvases",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved canvases, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := newRuntime(cmd.Context(), global, runtimeOptions{})
				if err != nil {
					return err
				}
				defer rt.Close()

				list, err := rt.studio.Sessions(cmd.Context())
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.ErrOrStderr(), "no saved canvases")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTITLE\tIMAGES\tUPDATED")
				for _, s := range list {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.Title, s.ImageCount, humanize.Time(s.UpdatedAt))
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a saved canvas",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := newRuntime(cmd.Context(), global, runtimeOptions{})
				if err != nil {
					return err
				}
				defer rt.Close()
				return rt.studio.DeleteSession(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "export <id> <file.json>",
			Short: "Write a saved canvas as JSON",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := newRuntime(cmd.Context(), global, runtimeOptions{})
				if err != nil {
					return err
				}
				defer rt.Close()

				sess, err := rt.sessions.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				f, err := os.Create(args[1])
				if err != nil {
					return err
				}
				if err := session.Export(f, sess); err != nil {
					_ = f.Close()
					return err
				}
				return f.Close()
			},
		},
		&cobra.Command{
			Use:   "import <file.json>",
			Short: "Validate and store a canvas exported as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := newRuntime(cmd.Context(), global, runtimeOptions{})
				if err != nil {
					return err
				}
				defer rt.Close()

				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				sess, err := session.Import(f)
				if err != nil {
					return err
				}
				if err := rt.sessions.Save(cmd.Context(), sess); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%d images)\n", sess.ID, len(sess.Images))
				return nil
			},
		},
		newRenderCommand(global),
	)
	return cmd
}

func newRenderCommand(global *globalFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "render <id>",
		Short: "Export a saved canvas as images, a PDF or one board PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, global, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			sess, err := rt.studio.LoadSession(ctx, args[0])
			if err != nil {
				return err
			}
			base := filepath.Join(global.outputDir, sess.ID)
			switch format {
			case "images":
				paths, err := rt.studio.DownloadAll(ctx, base)
				if err != nil {
					return err
				}
				for _, p := range paths {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			case "pdf":
				return printPath(cmd, base+".pdf", rt.studio.ExportPDF(ctx, base+".pdf"))
			case "board":
				return printPath(cmd, base+".png", rt.studio.ExportBoard(ctx, base+".png"))
			default:
				return fmt.Errorf("unknown format %q (images, pdf, board)", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "board", "images, pdf or board")
	return cmd
}

func printPath(cmd *cobra.Command, path string, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
