package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"qaforge/internal/activities"
	"qaforge/internal/bootstrap"
	"qaforge/internal/extract"
	"qaforge/internal/models"
	"qaforge/internal/qa"
	"qaforge/internal/util"
)

func generateCMD() *cobra.Command {
	var (
		params    models.JobParams
		noAnswers bool
		providers string
		outPath   string
	)
	cmd := &cobra.Command{
		Use:   "generate FILE...",
		Short: "Generate questions from local files without the worker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if providers != "" {
				cfg.LLMProviders = providers
				cfg.EmbedProviders = providers
			}
			if noAnswers {
				no := false
				params.IncludeAnswers = &no
			}
			if err := params.Validate(); err != nil {
				return err
			}
			params = params.WithDefaults()

			payloads := make([]activities.FilePayload, 0, len(args))
			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				text, err := extract.Text(extract.MimeFromName(path), content, logger)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				payloads = append(payloads, activities.FilePayload{FileName: filepath.Base(path), Text: text})
			}
			files := activities.BuildFileInputs("local", payloads, cfg.ChunkMaxWords, cfg.ChunkOverlapWords)
			if len(files) == 0 {
				return util.ErrNoExtractableText
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			factory, err := bootstrap.NewPipelineFactory(ctx, cfg, nil, nil, logger)
			if err != nil {
				return err
			}
			pipeline, err := factory.New("")
			if err != nil {
				return err
			}
			out, err := activities.GenerateWithMode(ctx, pipeline, activities.GenerateQuestionsInput{
				Files:      files,
				Total:      params.NumberOfQuestions,
				Difficulty: params.Difficulty,
				Mode:       params.Mode,
			}, func() bool { return ctx.Err() != nil }, logger)
			if err != nil {
				return err
			}
			if out.Cancelled || ctx.Err() != nil {
				return context.Canceled
			}
			final := qa.Finalize(out.Questions, params.NumberOfQuestions, params.Answers())

			if outPath != "" {
				if err := util.WriteJSONAtomic(outPath, final); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d questions to %s\n", len(final), outPath)
				return nil
			}
			printQuestions(cmd.OutOrStdout(), final)
			return nil
		},
	}
	cmd.Flags().IntVarP(&params.NumberOfQuestions, "count", "n", 20, "number of questions")
	cmd.Flags().StringVar(&params.Difficulty, "difficulty", "medium", "easy, medium or hard")
	cmd.Flags().StringVar(&params.Mode, "mode", models.ModeMerged, "merged or per_file")
	cmd.Flags().BoolVar(&noAnswers, "no-answers", false, "leave answers out of the result")
	cmd.Flags().StringVar(&providers, "providers", "", "provider list overriding QAGEN_LLM_PROVIDERS and QAGEN_EMBED_PROVIDERS (e.g. mock)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the questions as JSON to this path")
	return cmd
}

func printQuestions(w io.Writer, items []qa.Question) {
	for i, q := range items {
		fmt.Fprintf(w, "%d. [%s] %s\n", i+1, q.Type, util.DisplaySnippet(q.Question, 300))
		if q.Answer != "" {
			fmt.Fprintf(w, "   answer: %s\n", util.DisplaySnippet(q.Answer, 200))
		}
		if len(q.Sources) > 0 {
			fmt.Fprintf(w, "   sources: %v\n", q.Sources)
		}
	}
}
