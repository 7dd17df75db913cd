package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"qaforge/internal/extract"
	"qaforge/internal/models"
	"qaforge/internal/storage"
	"qaforge/internal/util"
	"qaforge/internal/workflows"
)

func submitCMD() *cobra.Command {
	var (
		params     models.JobParams
		noAnswers  bool
		topicID    string
		title      string
		telegramID int64
		paths      []string
		wait       bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a generation job for a topic and start its workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if noAnswers {
				no := false
				params.IncludeAnswers = &no
			}
			if err := params.Validate(); err != nil {
				return err
			}
			ctx := cmd.Context()

			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			topics := storage.NewTopicRepo(db)
			var userID int64
			if topicID == "" {
				var tg *int64
				if telegramID != 0 {
					tg = &telegramID
				}
				if userID, err = topics.EnsureUser(ctx, tg); err != nil {
					return err
				}
				if topicID, err = topics.Create(ctx, userID, title); err != nil {
					return err
				}
			} else if userID, err = topics.Owner(ctx, topicID); err != nil {
				return err
			}

			files := storage.NewFileRepo(db)
			for _, path := range paths {
				f, err := describeFile(path)
				if err != nil {
					return err
				}
				f.TopicID = topicID
				if _, err := files.Insert(ctx, f); err != nil {
					return err
				}
			}

			jobID := uuid.NewString()
			if err := storage.NewJobRepo(db).Create(ctx, models.Job{
				JobID:   jobID,
				TopicID: topicID,
				UserID:  userID,
				Params:  params,
			}); err != nil {
				return err
			}

			c, err := dialTemporal(cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()
			run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
				ID:                    workflows.JobWorkflowID(jobID),
				TaskQueue:             cfg.TemporalTaskQueue,
				WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
			}, workflows.GenerationJobWorkflow, workflows.GenerationJobInput{JobID: jobID})
			if err != nil {
				return fmt.Errorf("start workflow: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s queued (topic %s, run %s)\n", jobID, topicID, run.GetRunID())
			if !wait {
				return nil
			}
			var res workflows.GenerationJobResult
			if err := run.Get(ctx, &res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s %s", res.JobID, res.Status)
			switch {
			case res.ResultPath != "":
				fmt.Fprintf(cmd.OutOrStdout(), ": %d questions in %s\n", res.Questions, res.ResultPath)
			case res.Error != "":
				fmt.Fprintf(cmd.OutOrStdout(), ": %s\n", res.Error)
			default:
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&topicID, "topic", "", "existing topic id; a new topic is created when empty")
	cmd.Flags().StringVar(&title, "title", "", "title for a new topic")
	cmd.Flags().Int64Var(&telegramID, "telegram-id", 0, "telegram id of the topic owner")
	cmd.Flags().StringArrayVarP(&paths, "file", "f", nil, "file to attach to the topic (repeatable)")
	cmd.Flags().IntVarP(&params.NumberOfQuestions, "count", "n", 20, "number of questions")
	cmd.Flags().StringVar(&params.Difficulty, "difficulty", "medium", "easy, medium or hard")
	cmd.Flags().StringVar(&params.Mode, "mode", models.ModeMerged, "merged or per_file")
	cmd.Flags().BoolVar(&noAnswers, "no-answers", false, "leave answers out of the result")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the workflow to finish")
	return cmd
}

// describeFile builds the files row for a local path. The worker reads the
// file back from the absolute path.
func describeFile(path string) (models.File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return models.File{}, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return models.File{}, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return models.File{}, err
	}
	sum, err := util.SHA256HexFromReader(f)
	if err != nil {
		return models.File{}, err
	}
	return models.File{
		OriginalFilename: filepath.Base(abs),
		MimeType:         extract.MimeFromName(abs),
		SizeBytes:        st.Size(),
		StoragePath:      abs,
		SHA256:           sum,
	}, nil
}

func cancelCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			ctx := cmd.Context()
			jobID := args[0]

			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			changed, err := storage.NewJobRepo(db).Cancel(ctx, jobID)
			if err != nil {
				return err
			}

			c, err := dialTemporal(cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.CancelWorkflow(ctx, workflows.JobWorkflowID(jobID), ""); err != nil {
				var notFound *serviceerror.NotFound
				if !errors.As(err, &notFound) {
					return fmt.Errorf("cancel workflow: %w", err)
				}
			}
			if changed {
				fmt.Fprintf(cmd.OutOrStdout(), "job %s cancelled\n", jobID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "job %s already finished\n", jobID)
			}
			return nil
		},
	}
}

func statusCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Show a job's stage and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			ctx := cmd.Context()
			jobID := args[0]

			c, err := dialTemporal(cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()
			val, err := c.QueryWorkflow(ctx, workflows.JobWorkflowID(jobID), "", workflows.QueryGetProgress)
			if err == nil {
				var p workflows.JobProgress
				if err := val.Get(&p); err != nil {
					return err
				}
				printProgress(cmd, p)
				return nil
			}
			logger.Debug("progress query failed, reading job row")

			// The workflow may have been purged by retention; the job row is
			// still authoritative.
			db, dbErr := openDB(ctx, cfg)
			if dbErr != nil {
				return errors.Join(err, dbErr)
			}
			defer db.Close()
			job, dbErr := storage.NewJobRepo(db).Get(ctx, jobID)
			if dbErr != nil {
				return errors.Join(err, dbErr)
			}
			printProgress(cmd, workflows.JobProgress{
				JobID:    job.JobID,
				Status:   job.Status,
				Stage:    job.Stage,
				Progress: job.Progress,
				Error:    job.ErrorMessage,
			})
			if p := job.ResultPaths["json"]; p != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "result: %s\n", p)
			}
			return nil
		},
	}
}

func printProgress(cmd *cobra.Command, p workflows.JobProgress) {
	fmt.Fprintf(cmd.OutOrStdout(), "job %s: %s", p.JobID, p.Status)
	if p.Stage != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " stage=%s", p.Stage)
	}
	fmt.Fprintf(cmd.OutOrStdout(), " progress=%d%%", p.Progress)
	if p.LLMCalls > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), " llm_calls=%d", p.LLMCalls)
	}
	if p.Error != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " error=%q", p.Error)
	}
	fmt.Fprintln(cmd.OutOrStdout())
}
