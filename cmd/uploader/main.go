package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/raceshot/uploader/internal/config"
	"github.com/raceshot/uploader/internal/discovery"
	"github.com/raceshot/uploader/internal/report"
	"github.com/raceshot/uploader/internal/retry"
	"github.com/raceshot/uploader/internal/upload"
	"github.com/raceshot/uploader/pkg/models"
)

func main() {
	var (
		dirFlag       = flag.String("dir", "", "directory to scan recursively for images")
		eventIDFlag   = flag.String("event-id", "", "event id to upload under")
		locationFlag  = flag.String("location", "", "shoot location")
		priceFlag     = flag.Int("price", config.DefaultPrice, "price per photo")
		bibFlag       = flag.String("bib-number", "", "bib number (optional)")
		tokenFlag     = flag.String("token", "", "API token (or RACESHOT_API_TOKEN)")
		longitudeFlag = flag.Float64("longitude", 0, "shoot longitude (optional)")
		latitudeFlag  = flag.Float64("latitude", 0, "shoot latitude (optional)")
		retriesFlag   = flag.Int("max-retries", config.DefaultMaxRetries, "max retries per upload")
		backoffFlag   = flag.Float64("retry-backoff", config.DefaultBackoffFactor, "retry backoff factor in seconds")
		timeoutFlag   = flag.Float64("timeout", config.DefaultTimeout.Seconds(), "per-request timeout in seconds")
		concFlag      = flag.Int("concurrency", config.DefaultConcurrency, "number of parallel uploads")
		batchFlag     = flag.Int("batch-size", config.DefaultBatchSize, "images per request")
		dryRunFlag    = flag.Bool("dry-run", false, "list and validate files without calling the API")
		reuploadFlag  = flag.Bool("reupload-failures", false, "upload only files from the previous failure list")
		envFileFlag   = flag.String("env-file", "", "path to a .env file (default: ./.env when present)")
		outputFlag    = flag.String("output-dir", "", "directory for result files and logs")
	)
	flag.Parse()

	envLoaded, err := config.LoadEnvFile(*envFileFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg := config.FromEnv()

	// Flags set on the command line win over environment values.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dir":
			cfg.Directory = *dirFlag
		case "event-id":
			cfg.EventID = *eventIDFlag
		case "location":
			cfg.Location = *locationFlag
		case "price":
			cfg.Price = *priceFlag
		case "bib-number":
			cfg.BibNumber = *bibFlag
		case "token":
			cfg.Token = *tokenFlag
		case "longitude":
			v := *longitudeFlag
			cfg.Longitude = &v
		case "latitude":
			v := *latitudeFlag
			cfg.Latitude = &v
		case "max-retries":
			cfg.MaxRetries = *retriesFlag
		case "retry-backoff":
			cfg.BackoffFactor = *backoffFlag
		case "timeout":
			cfg.Timeout = time.Duration(*timeoutFlag * float64(time.Second))
		case "concurrency":
			cfg.Concurrency = *concFlag
		case "batch-size":
			cfg.BatchSize = *batchFlag
		case "dry-run":
			cfg.DryRun = *dryRunFlag
		case "reupload-failures":
			cfg.ReuploadFailures = *reuploadFlag
		case "output-dir":
			cfg.OutputDir = *outputFlag
		}
	})

	writer, err := report.NewWriter(cfg.OutputDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, closeLog, err := setupLogging(writer.LogPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	if envLoaded {
		logger.Info("loaded environment file")
	} else {
		logger.Info("no .env file found, continuing with environment variables")
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Per-file failures are reported, not fatal: the run completes with
	// partial success and the failure list captures the rest.
	if _, err := run(ctx, cfg, writer, logger); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

// setupLogging writes structured logs to both stdout and the upload log
// file in the output directory.
func setupLogging(logPath string) (*slog.Logger, func(), error) {
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %s: %w", logPath, err)
	}
	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, f), nil)
	return slog.New(handler), func() { f.Close() }, nil
}

func run(ctx context.Context, cfg config.Config, writer *report.Writer, logger *slog.Logger) (*models.RunReport, error) {
	files, err := selectFiles(cfg, writer, logger)
	if err != nil {
		return nil, err
	}

	keys, err := writer.HistoryKeys(cfg.EventID)
	if err != nil {
		logger.Warn("cannot read upload history, not deduplicating", "error", err)
		keys = nil
	}
	files, skipped := report.FilterUploaded(files, keys)
	if skipped > 0 {
		logger.Info("skipping files already uploaded for this event", "skipped", skipped, "event_id", cfg.EventID)
	}

	logger.Info("starting upload run",
		"files", len(files), "event_id", cfg.EventID, "location", cfg.Location,
		"concurrency", cfg.Concurrency, "batch_size", cfg.BatchSize, "dry_run", cfg.DryRun)

	tasks := buildTasks(cfg, files)

	client := upload.NewClient(cfg.Endpoint, cfg.Token, cfg.Timeout)
	policy := retry.Policy{MaxRetries: cfg.MaxRetries, Factor: cfg.BackoffFactor}
	exec := upload.NewExecutor(client, policy, cfg.DryRun, logger)
	sched := upload.NewScheduler(exec, cfg.Concurrency, cfg.BatchSize)

	progress := func(done, total int, result models.UploadResult) {
		if result.Success {
			logger.Info("progress", "done", done, "total", total, "file", result.FileName, "photo_id", result.PhotoID)
		} else {
			logger.Warn("progress", "done", done, "total", total, "file", result.FileName, "class", string(result.Class), "error", result.Error)
		}
		// Dry-run results are not persisted; the files were never uploaded.
		if cfg.DryRun {
			return
		}
		if err := writer.Append(result, cfg.EventID, cfg.Location); err != nil {
			logger.Error("failed to write result to report files", "file", result.FileName, "error", err)
		}
	}

	agg := upload.NewAggregator(tasks, progress)
	agg.Consume(sched.Run(ctx, tasks))
	rep := agg.Finalize()

	logger.Info("run complete",
		"run_id", rep.RunID, "succeeded", rep.Succeeded, "failed", rep.Failed,
		"total", rep.Total(), "duration", rep.FinishedAt.Sub(rep.StartedAt))
	return rep, nil
}

func selectFiles(cfg config.Config, writer *report.Writer, logger *slog.Logger) ([]string, error) {
	if cfg.ReuploadFailures {
		logger.Info("reupload mode: selecting files from the failure list", "list", writer.FailureListPath())
		files, err := discovery.SelectReuploads(cfg.Directory, writer.FailureListPath(), logger)
		if err != nil {
			return nil, err
		}
		// Start a fresh failure list so this run's failures are recorded
		// without the stale entries.
		if err := writer.ResetFailureList(); err != nil {
			return nil, err
		}
		return files, nil
	}

	files, err := discovery.CollectImages(cfg.Directory)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		logger.Warn("no matching image files found", "dir", cfg.Directory)
	} else {
		logger.Info("discovered image files", "count", len(files))
	}
	return files, nil
}

func buildTasks(cfg config.Config, files []string) []models.UploadTask {
	tasks := make([]models.UploadTask, len(files))
	for i, path := range files {
		tasks[i] = models.UploadTask{
			FilePath:  path,
			FileName:  filepath.Base(path),
			EventID:   cfg.EventID,
			Location:  cfg.Location,
			Price:     cfg.Price,
			BibNumber: cfg.BibNumber,
			Longitude: cfg.Longitude,
			Latitude:  cfg.Latitude,
		}
	}
	return tasks
}
