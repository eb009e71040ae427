package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"jassist-go/internal/api"
	"jassist-go/internal/database/sqlc"
	"jassist-go/internal/jassist"
	"jassist-go/internal/metrics"
)

// download command
var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download files from the configured remote",
}

var downloadRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run downloads for due accounts, or for one user",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		force, _ := cmd.Flags().GetBool("force")
		forceAll, _ := cmd.Flags().GetBool("force-all")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := newApp("RunDownloads", dryRun)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		if user != "" {
			res, err := a.RunDownloads(ctx, user, force || forceAll)
			if err != nil {
				return err
			}
			printDownloadRun(user, res)
			return nil
		}

		runs, err := a.RunScheduledDownloads(ctx, force || forceAll)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No active accounts configured.")
			return nil
		}
		failed := 0
		for _, run := range runs {
			switch {
			case run.Skipped:
				fmt.Printf("%s: skipped (no schedule)\n", run.UserID)
			case run.Error != "":
				failed++
				fmt.Printf("%s: error: %s\n", run.UserID, run.Error)
			default:
				printDownloadRun(run.UserID, run.Result)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d accounts failed", failed, len(runs))
		}
		return nil
	},
}

func printDownloadRun(user string, res *jassist.DownloadRunResult) {
	fmt.Printf("%s: %s\n", user, res.Message)
	for _, name := range res.WouldDownload {
		fmt.Printf("  would download %s\n", name)
	}
	s := res.Stats
	fmt.Printf("  folders %d  found %d  downloaded %d  deleted %d  transcribed %d  errors %d\n",
		s.FoldersProcessed, s.FilesFound, s.FilesDownloaded, s.FilesDeleted, s.FilesTranscribed, s.Errors)
}

var downloadFileCmd = &cobra.Command{
	Use:   "file FILE_ID",
	Short: "Download one file by its remote id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := newApp("DownloadFile", dryRun)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		res, err := a.DownloadFile(ctx, user, args[0])
		if err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("download failed: %s", res.Error)
		}
		if res.DryRun {
			fmt.Printf("Would download %s\n", res.FileName)
			return nil
		}
		fmt.Printf("Downloaded %s to %s (%d bytes)\n", res.FileName, res.LocalPath, res.FileSize)
		if res.JobID != 0 {
			fmt.Printf("Transcription job #%d: %s\n", res.JobID, res.JobStatus)
		}
		return nil
	},
}

var downloadStatusCmd = &cobra.Command{
	Use:   "status RECORD_ID",
	Short: "Show a download record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("DownloadStatus", false)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.DownloadStatus(args[0])
		if err != nil {
			return err
		}
		if st.Status == jassist.DownloadNotFound {
			return fmt.Errorf("download record %s not found", args[0])
		}
		fmt.Printf("%s  %s  %d bytes  %s\n", st.Status, st.FileName, st.FileSize, st.LocalPath)
		if st.DownloadedAt != nil {
			fmt.Printf("downloaded at %s\n", st.DownloadedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

// transcribe command
var transcribeCmd = &cobra.Command{
	Use:   "transcribe PATH",
	Short: "Transcribe a local audio file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		enqueue, _ := cmd.Flags().GetBool("enqueue")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := newApp("TranscribeFile", dryRun)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		if enqueue {
			// A memory queue dies with this process before any worker sees the task.
			if a.Config().Queue.Type == "memory" {
				return errors.New("--enqueue needs a shared queue; set queue.type = \"asynq\" or submit through the API")
			}
			job, err := a.SubmitTranscription(ctx, user, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Submitted job #%d (%s)\n", job.ID, job.Status)
			return nil
		}

		job, err := a.TranscribeFile(ctx, user, args[0])
		if err != nil {
			return err
		}
		printJob(job)
		if job.Status == jassist.JobFailed {
			return fmt.Errorf("transcription failed: %s", job.ErrorMessage.String)
		}
		return nil
	},
}

func printJob(job *sqlc.TranscriptionJob) {
	fmt.Printf("Job #%d  %s  %s\n", job.ID, job.Status, job.FileName)
	if job.ResultPath.Valid {
		fmt.Printf("  output:  %s\n", job.ResultPath.String)
	}
	if job.WordCount > 0 {
		fmt.Printf("  words:   %d\n", job.WordCount)
	}
	if job.TranscriptSummary.Valid {
		fmt.Printf("  summary: %s\n", job.TranscriptSummary.String)
	}
	if job.ContentLabel != "" {
		fmt.Printf("  label:   %s\n", job.ContentLabel)
	}
	if job.ErrorMessage.Valid {
		fmt.Printf("  error:   %s\n", job.ErrorMessage.String)
	}
}

// classify command
var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Label transcripts with the classification assistant",
}

var classifyJobCmd = &cobra.Command{
	Use:   "job JOB_ID",
	Short: "Classify one completed job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid job id %q", args[0])
		}

		a, err := newApp("ClassifyJob", dryRun)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		job, ok, err := a.ClassifyJob(ctx, id)
		if err != nil {
			return err
		}
		if job == nil {
			return fmt.Errorf("job %d not found", id)
		}
		if !ok {
			return fmt.Errorf("job %d could not be classified", id)
		}
		printJob(job)
		return nil
	},
}

var classifyBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Classify completed jobs in batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		rawIDs, _ := cmd.Flags().GetString("job-ids")
		force, _ := cmd.Flags().GetBool("force")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		limit, _ := cmd.Flags().GetInt("limit")
		batchSize, _ := cmd.Flags().GetInt("batch-size")

		ids, err := parseJobIDs(rawIDs)
		if err != nil {
			return err
		}

		a, err := newApp("ClassifyBatch", dryRun)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		res, err := a.ClassifyBatch(ctx, jassist.BatchOptions{
			JobIDs:    ids,
			Limit:     limit,
			Force:     force,
			BatchSize: batchSize,
		})
		if res != nil {
			fmt.Printf("Batch %s %s: %d total, %d successful, %d failed\n",
				res.BatchID, res.Status, res.Total, res.Successful, res.Failed)
		}
		return err
	},
}

// parseJobIDs parses a comma-separated id list.
func parseJobIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid job id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// usage command
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Report transcription usage for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		start, _ := cmd.Flags().GetString("start")
		end, _ := cmd.Flags().GetString("end")

		r, err := metrics.ParseDateRange(start, end)
		if err != nil {
			return err
		}

		a, err := newApp("UsageReport", false)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Usage(user, r)
		if err != nil {
			return err
		}

		fmt.Printf("Usage for %s\n", user)
		fmt.Printf("  jobs:            %d (%d successful, %d failed)\n", report.TotalJobs, report.SuccessfulJobs, report.FailedJobs)
		fmt.Printf("  audio:           %d files, %.1f s\n", report.TotalAudioFiles, report.TotalDurationSeconds)
		fmt.Printf("  processing time: %.1f s total, %.1f s average\n", report.TotalProcessingTime, report.AverageProcessingTime)
		fmt.Printf("  estimated cost:  $%.4f\n", report.EstimatedTotalCost)
		for model, n := range report.JobsByModel {
			fmt.Printf("  %-16s %d\n", model+":", n)
		}
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the transcription worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Serve", false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		srv := api.NewServer(a.Config().Server, a, a.Logger())
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(ctx) })
		g.Go(func() error {
			err := a.RunWorker(ctx)
			if jassist.IsConfigurationError(err) {
				// The API still serves downloads and classification without transcription.
				a.Logger().Warn("transcription worker disabled", "error", err)
				return nil
			}
			return err
		})
		return g.Wait()
	},
}

// worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued transcriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Worker", false)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Config().Queue.Type == "memory" {
			return errors.New("worker needs a shared queue; set queue.type = \"asynq\" or use serve")
		}

		ctx, cancel := signalContext()
		defer cancel()
		return a.RunWorker(ctx)
	},
}

func init() {
	downloadCmd.AddCommand(downloadRunCmd)
	downloadRunCmd.Flags().String("user", "", "Only run this user's account")
	downloadRunCmd.Flags().Bool("force", false, "Ignore the schedule")
	downloadRunCmd.Flags().Bool("force-all", false, "Run every active account regardless of schedule")
	downloadRunCmd.Flags().Bool("dry-run", false, "List files without downloading")

	downloadCmd.AddCommand(downloadFileCmd)
	downloadFileCmd.Flags().String("user", "", "Account the file belongs to")
	downloadFileCmd.Flags().Bool("dry-run", false, "Check the file without downloading")
	downloadFileCmd.MarkFlagRequired("user")

	downloadCmd.AddCommand(downloadStatusCmd)

	transcribeCmd.Flags().String("user", "", "User the transcription is recorded for")
	transcribeCmd.Flags().Bool("enqueue", false, "Submit to the queue instead of transcribing now")
	transcribeCmd.Flags().Bool("dry-run", false, "Record a job without calling the speech API")
	transcribeCmd.MarkFlagRequired("user")

	classifyCmd.AddCommand(classifyJobCmd)
	classifyJobCmd.Flags().Bool("dry-run", false, "Classify without writing the label")

	classifyCmd.AddCommand(classifyBatchCmd)
	classifyBatchCmd.Flags().String("job-ids", "", "Comma-separated job ids to classify")
	classifyBatchCmd.Flags().Bool("force", false, "Include jobs that already have a label")
	classifyBatchCmd.Flags().Bool("dry-run", false, "Classify without writing labels")
	classifyBatchCmd.Flags().Int("limit", 0, "Maximum number of jobs (0 for all)")
	classifyBatchCmd.Flags().Int("batch-size", jassist.DefaultBatchSize, "Jobs per checkpoint")

	usageCmd.Flags().String("user", "", "User to report on")
	usageCmd.Flags().String("start", "", "First day (YYYY-MM-DD), default start of month")
	usageCmd.Flags().String("end", "", "Last day (YYYY-MM-DD), inclusive")
	usageCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
}
