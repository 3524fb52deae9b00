package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.temporal.io/sdk/client"
	otelcontrib "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	temporalplatform "github.com/tilsley/snapsync/apps/snapsync/internal/platform/temporal"
	"github.com/tilsley/snapsync/apps/snapsync/internal/platform/telemetry"
	"github.com/tilsley/snapsync/apps/snapsync/internal/platform/validation"
	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot/execution"
	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot/handler"
	"github.com/tilsley/snapsync/pkg/logging"
	"github.com/tilsley/snapsync/schemas"
)

func newServeCmd(a *app) *cobra.Command {
	var withSchedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Temporal worker and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), withSchedule)
		},
	}
	cmd.Flags().BoolVar(&withSchedule, "schedule", false, "ensure the cron schedule exists before serving")
	return cmd
}

func (a *app) serve(ctx context.Context, withSchedule bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
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

	// --- Observability ---

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

	// --- Pipeline + stores ---

	svc, err := buildService(cfg, log)
	if err != nil {
		return err
	}
	runs, events, closeStores := openStores(ctx, cfg, log)
	defer closeStores()

	// --- Platform: Temporal ---

	tc, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(log),
	})
	if err != nil {
		return fmt.Errorf("temporal client init: %w", err)
	}
	defer tc.Close()

	engine := temporalplatform.NewEngine(tc, temporalplatform.WithActivityTimeout(cfg.Temporal.ActivityTimeout))
	if withSchedule {
		if err := engine.EnsureSchedule(ctx, cfg.Temporal.ScheduleID, cfg.Temporal.Cron); err != nil {
			return err
		}
		log.Info("schedule ensured", "id", cfg.Temporal.ScheduleID, "cron", cfg.Temporal.Cron)
	}

	// --- Temporal Worker ---

	// One activity at a time keeps source.fetch_delay a per-worker rate limit.
	workerOpts := worker.Options{MaxConcurrentActivityExecutionSize: 1}
	if cfg.Telemetry.Enabled {
		tracingInterceptor, err := otelcontrib.NewTracingInterceptor(otelcontrib.TracerOptions{})
		if err != nil {
			return fmt.Errorf("temporal tracing interceptor init: %w", err)
		}
		workerOpts.Interceptors = []interceptor.WorkerInterceptor{tracingInterceptor}
	}

	w := worker.New(tc, temporalplatform.TaskQueue(), workerOpts)
	w.RegisterWorkflowWithOptions(execution.SnapshotSync, workflow.RegisterOptions{
		Name: execution.WorkflowName,
	})
	w.RegisterActivity(execution.NewActivities(svc, runs, events, log))
	if err := w.Start(); err != nil {
		return fmt.Errorf("temporal worker start: %w", err)
	}
	defer w.Stop()
	log.Info("temporal worker started", "taskQueue", temporalplatform.TaskQueue())

	// --- HTTP ---

	validator, err := validation.New(schemas.OpenAPISpec)
	if err != nil {
		return fmt.Errorf("openapi validation middleware init: %w", err)
	}
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(cfg.Telemetry.ServiceName), validator)
	handler.RegisterRoutes(router, engine, runs, log, handler.WithEventLog(events))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info("starting snapsync", "port", cfg.Server.Port)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
