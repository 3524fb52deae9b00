package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/tilsley/snapsync/apps/snapsync/internal/platform/telemetry"
	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot/execution"
	"github.com/tilsley/snapsync/pkg/logging"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		runID      string
		noProgress bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once in this process",
		Long: `Collect and publish a snapshot once, then print the run report as JSON.

Pipeline failures (unreachable files, failed publish stages) are reported in
the log and the run report; they do not change the exit code.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var progress io.Writer
			if !noProgress {
				progress = cmd.ErrOrStderr()
			}
			return a.runOnce(cmd.Context(), cmd.OutOrStdout(), progress, runID)
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "ID recorded for this run (default: random UUID)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar on stderr")
	return cmd
}

func (a *app) runOnce(ctx context.Context, out, progress io.Writer, runID string) error {
	cfg := a.cfg

	log, closer, err := logging.Setup(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return err
	}
	defer closer.Close() //nolint:errcheck

	tel, err := telemetry.New(ctx, telemetryOptions(cfg))
	if err != nil {
		return fmt.Errorf("telemetry init: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "error", err)
		}
	}()

	svc, err := buildService(cfg, log)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if progress != nil {
		svc.OnProgress(func(done, total int) {
			if bar == nil {
				bar = newProgressBar(progress, total)
			}
			_ = bar.Set(done)
		})
		defer func() {
			if bar != nil {
				_ = bar.Finish()
			}
		}()
	}

	if runID == "" {
		runID = uuid.NewString()
	}
	report, err := svc.Run(ctx, runID)
	if err != nil {
		log.Error("run failed", "run", runID, "error", err)
	}

	runs, events, closeStores := openStores(ctx, cfg, log)
	defer closeStores()
	if err := execution.NewActivities(svc, runs, events, log).RecordRun(ctx, report); err != nil {
		log.Warn("failed to record run", "run", runID, "error", err)
	}

	if cfg.Log.EchoOnFinish && cfg.Log.File != "" {
		content, err := logging.ReadLog(cfg.Log.File)
		if err != nil {
			log.Warn("could not read log file", "error", err)
		} else {
			log.Info("log file contents", "path", cfg.Log.File, "content", content)
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("fetching"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)
}
