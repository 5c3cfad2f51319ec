package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/coda-batch/internal/config"
	"github.com/phrazzld/coda-batch/internal/credentials"
	"github.com/phrazzld/coda-batch/internal/events"
	"github.com/phrazzld/coda-batch/internal/platform/coda"
	"github.com/phrazzld/coda-batch/internal/redact"
	"github.com/phrazzld/coda-batch/internal/service"
	"github.com/phrazzld/coda-batch/internal/task"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "coda"
	shutdownTimeout  = 10 * time.Second
)

// application holds the dependencies of one command invocation and
// releases them in cleanup.
type application struct {
	config *config.Config
	logger *slog.Logger
	out    printer

	pool     *task.Pool
	registry *prometheus.Registry
	emitter  *events.InMemoryEventEmitter

	pages     service.PageService
	documents service.DocumentService

	metricsFile string
}

func newApplication(cfg *config.Config, apiKey string, opts *options, logger *slog.Logger, out printer) (*application, error) {
	order, err := task.ParseDequeueOrder(cfg.Pool.Order)
	if err != nil {
		return nil, err
	}

	pool := task.NewPool(task.PoolConfig{
		MaxConcurrency: cfg.Pool.MaxConcurrency,
		MaxAwaiting:    cfg.Pool.MaxAwaiting,
		Order:          order,
	}, logger)

	app := &application{
		config:      cfg,
		logger:      logger,
		out:         out,
		pool:        pool,
		registry:    prometheus.NewRegistry(),
		emitter:     events.NewInMemoryEventEmitter(logger),
		metricsFile: opts.metricsFile,
	}

	metrics, err := task.NewMetrics(metricsNamespace, app.registry)
	if err != nil {
		app.stopPool(false)
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	pool.SetMetrics(metrics)

	app.emitter.Subscribe(events.Subscription{
		TagPrefix: service.RenameTagPrefix,
		Kinds:     []events.TaskEventKind{events.TaskCompleted, events.TaskFailed},
	}, progressHandler(out))
	app.emitter.RegisterHandler(lifecycleLogger(logger))
	pool.SetEmitter(app.emitter)
	pool.SetErrorHandler(func(t *task.Task, err error) {
		logger.Debug("task failed",
			"task_id", t.ID,
			"tag", t.Tag,
			"error", redact.Error(err))
	})

	client, err := coda.NewClient(coda.ClientConfig{
		BaseURL:    cfg.API.BaseURL,
		APIKey:     apiKey,
		PageLimit:  cfg.API.PageLimit,
		Timeout:    cfg.API.Timeout,
		MaxRetries: cfg.API.MaxRetries,
		RetryDelay: cfg.API.RetryDelay,
	}, logger)
	if err != nil {
		app.stopPool(false)
		return nil, err
	}

	cookies := credentials.NewCookieFile(cfg.Session.CookieFile, cfg.Session.CookieDomain)
	jar, err := cookies.Jar(cfg.Session.WebURL)
	if err != nil {
		logger.Warn("ignoring unreadable cookie file",
			"path", cfg.Session.CookieFile,
			"error", err)
		jar = nil
	}
	namer, err := coda.NewSessionNamer(cfg.Session.WebURL, jar, cfg.API.Timeout, logger)
	if err != nil {
		app.stopPool(false)
		return nil, err
	}

	if app.pages, err = service.NewPageService(client, pool, logger); err != nil {
		app.stopPool(false)
		return nil, err
	}
	if app.documents, err = service.NewDocumentService(client, namer, pool, logger); err != nil {
		app.stopPool(false)
		return nil, err
	}
	return app, nil
}

// cleanup stops the pool, draining it unless the run was cancelled, and
// writes the metrics file when one was requested.
func (app *application) cleanup(ctx context.Context) {
	app.stopPool(ctx.Err() == nil)

	if app.metricsFile != "" {
		if err := prometheus.WriteToTextfile(app.metricsFile, app.registry); err != nil {
			app.logger.Error("failed to write metrics file",
				"path", app.metricsFile,
				"error", err)
		}
	}
}

func (app *application) stopPool(drain bool) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.pool.Stop(ctx, drain); err != nil {
		app.logger.Warn("task pool did not drain in time", "error", err)
	}
}

// progressHandler reports every event it receives to the printer.
func progressHandler(out printer) events.HandlerFunc {
	return func(context.Context, *events.TaskEvent) error {
		out.Progress()
		return nil
	}
}

// lifecycleLogger writes task lifecycle events at debug level.
func lifecycleLogger(logger *slog.Logger) events.HandlerFunc {
	return func(ctx context.Context, event *events.TaskEvent) error {
		if !logger.Enabled(ctx, slog.LevelDebug) {
			return nil
		}
		attrs := []any{
			"task_id", event.TaskID,
			"tag", event.Tag,
			"kind", event.Kind,
		}
		if event.Kind.Finished() {
			attrs = append(attrs, "duration", event.Duration)
		}
		if event.Error != "" {
			attrs = append(attrs, "error", event.Error)
		}
		logger.Debug("task event", attrs...)
		return nil
	}
}
