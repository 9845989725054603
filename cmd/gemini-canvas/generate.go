package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shouni/gemini-canvas-kit/pkg/domain"
	"github.com/shouni/gemini-canvas-kit/pkg/orchestrator"
)

type generateFlags struct {
	count     int
	aspect    string
	quality   string
	style     string
	negative  string
	reference string
	session   string
	pdf       bool
	board     bool
}

func newGenerateCommand(global *globalFlags) *cobra.Command {
	f := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate images without the canvas UI and save them",
		Example: `  gemini-canvas generate "a lighthouse in a storm" -n 2 --aspect 16:9
  gemini-canvas generate "same scene at dawn" --ref gs://bucket/ref.png --session "Lighthouse"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, global, runtimeOptions{prompt: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			settings, err := f.apply(rt.studio.Settings(), rt.studio.MaxCount(), cmd.Flags().Changed("count"))
			if err != nil {
				return err
			}
			rt.studio.SetSettings(settings)

			prompt := strings.Join(args, " ")
			var batch *orchestrator.Batch
			if f.reference != "" {
				batch, err = rt.studio.GenerateFromReference(prompt, f.reference, 0, 0)
			} else {
				batch, err = rt.studio.Generate(prompt, 0, 0)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Generating %d image(s)...\n", len(batch.IDs))

			res, err := batch.Wait(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%q: %d of %d image(s) in %s\n",
				res.Title, len(res.Completed), len(res.IDs), res.Elapsed.Round(100*time.Millisecond))

			paths, err := rt.studio.DownloadAll(ctx, global.outputDir)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}

			if f.pdf {
				path := filepath.Join(global.outputDir, "contact-sheet.pdf")
				if err := rt.studio.ExportPDF(ctx, path); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			if f.board {
				path := filepath.Join(global.outputDir, "board.png")
				if err := rt.studio.ExportBoard(ctx, path); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			if f.session != "" {
				sess, err := rt.studio.SaveSession(ctx, f.session)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "saved session %s\n", sess.ID)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&f.count, "count", "n", 1, "number of images (1 to generation.max_count)")
	cmd.Flags().StringVar(&f.aspect, "aspect", "", "aspect ratio: 1:1, 16:9, 9:16, 4:3, 3:4")
	cmd.Flags().StringVar(&f.quality, "quality", "", "quality: Standard, HD, 4K")
	cmd.Flags().StringVar(&f.style, "style", "", "style, e.g. Cinematic or Anime")
	cmd.Flags().StringVar(&f.negative, "negative", "", "things to avoid")
	cmd.Flags().StringVar(&f.reference, "ref", "", "reference image URL (http, https or gs)")
	cmd.Flags().StringVar(&f.session, "session", "", "also save the result as a canvas session with this title")
	cmd.Flags().BoolVar(&f.pdf, "pdf", false, "also write a PDF contact sheet")
	cmd.Flags().BoolVar(&f.board, "board", false, "also render the board as one PNG")
	return cmd
}

// apply はフラグの値を設定に反映し、範囲外の値はエラーにします。
func (f *generateFlags) apply(settings domain.Settings, maxCount int, countSet bool) (domain.Settings, error) {
	if countSet {
		if f.count < 1 || f.count > maxCount {
			return settings, fmt.Errorf("%w: --count %d (1 to %d)", domain.ErrInvalidCount, f.count, maxCount)
		}
		settings.NumImages = f.count
	}
	if f.aspect != "" {
		settings.AspectRatio = domain.AspectRatio(f.aspect)
	}
	if f.quality != "" {
		settings.Quality = domain.QualityTier(f.quality)
	}
	if f.style != "" {
		settings.Style = f.style
	}
	if f.negative != "" {
		settings.NegativePrompt = f.negative
	}
	if !settings.AspectRatio.Valid() {
		return settings, fmt.Errorf("unknown aspect ratio %q", f.aspect)
	}
	if !settings.Quality.Valid() {
		return settings, fmt.Errorf("unknown quality %q (Standard, HD, 4K)", f.quality)
	}
	return settings, nil
}
