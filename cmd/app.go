package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/cv-evaluator/internal/ai/gemini"
	"github.com/spigell/cv-evaluator/internal/cache"
	"github.com/spigell/cv-evaluator/internal/evaluation"
	"github.com/spigell/cv-evaluator/internal/extract"
	"github.com/spigell/cv-evaluator/internal/logger"
	"github.com/spigell/cv-evaluator/internal/metrics"
	"github.com/spigell/cv-evaluator/internal/queue"
	"github.com/spigell/cv-evaluator/internal/retrieval"
	"github.com/spigell/cv-evaluator/internal/retry"
	"github.com/spigell/cv-evaluator/internal/secrets"
	"github.com/spigell/cv-evaluator/internal/storage"
	"github.com/spigell/cv-evaluator/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

// app holds every long-lived collaborator of one process.
type app struct {
	config *Config
	logger *zap.Logger

	db        *store.DB
	documents *storage.Store
	extractor *extract.Extractor
	redis     *redis.Client
	status    *evaluation.StatusReader
	registry  *prometheus.Registry
	recorder  *metrics.Recorder

	// set by withPipeline
	generator *gemini.Generator
	index     *retrieval.Index
	runner    *evaluation.Runner
	pool      *queue.Pool[evaluation.Task]
	admitter  *evaluation.Admitter
}

func newLogger(config *Config) (*zap.Logger, error) {
	return logger.NewWithOptions(logger.Options{
		JSON:        viper.GetBool("json"),
		Debug:       viper.GetBool("debug"),
		OutputPaths: config.Logging.OutputPaths,
	})
}

// newApp opens storage and the status path. It does not touch the AI backend.
func newApp(ctx context.Context) (*app, error) {
	config, err := getConfig()
	if err != nil {
		return nil, err
	}

	log, err := newLogger(config)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &app{config: config, logger: log}

	a.db, err = store.Open(ctx, config.Database, log)
	if err != nil {
		return nil, err
	}
	if err := a.db.Migrate(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.documents, err = storage.New(config.Storage.Root, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.extractor = extract.New(log)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.recorder = metrics.New(a.registry)

	// a typed nil would defeat the reader's nil check
	var statusCache evaluation.StatusCache
	if config.Redis.Enabled {
		a.redis, err = cache.NewClient(ctx, config.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		statusCache = cache.NewStatusCache(a.redis, config.Redis.TTL, log)
		log.Info("status cache enabled", zap.String("address", config.Redis.Address))
	}
	a.status = evaluation.NewStatusReader(a.db.Jobs(), statusCache, log)

	return a, nil
}

func (a *app) loadAPIKey() (string, error) {
	g := a.config.AI.Gemini
	return secrets.Load(secrets.Source{
		Name:  "Gemini API key",
		Value: g.APIKey,
		File:  g.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
}

// withRetrieval builds the Gemini generator and the ground-truth index over it.
func (a *app) withRetrieval(ctx context.Context) error {
	if a.index != nil {
		return nil
	}

	apiKey, err := a.loadAPIKey()
	if err != nil {
		return err
	}

	g := a.config.AI.Gemini
	a.generator, err = gemini.NewGenerator(ctx, gemini.Config{
		APIKey:            apiKey,
		Model:             g.Model,
		EmbeddingModel:    g.EmbeddingModel,
		Temperature:       g.Temperature,
		RequestsPerSecond: g.RequestsPerSecond,
	})
	if err != nil {
		return err
	}

	a.index, err = retrieval.NewIndex(a.db.Chunks(), gemini.NewEmbedder(a.generator, a.logger), a.logger)
	return err
}

// withPipeline builds the runner, the worker pool and the admitter.
// Workers start immediately; callers own the pool shutdown.
func (a *app) withPipeline(ctx context.Context) error {
	if err := a.withRetrieval(ctx); err != nil {
		return err
	}

	retrier, err := retry.New(a.config.Retry, gemini.IsRetryable, a.logger)
	if err != nil {
		return fmt.Errorf("retry policy: %w", err)
	}

	maxLog := a.config.AI.Gemini.MaxLogLength
	scoringCfg := a.config.Scoring

	a.runner = evaluation.NewRunner(evaluation.RunnerConfig{
		JobTimeout:       a.config.Pipeline.JobTimeout,
		CVScale:          scoringCfg.CVScale,
		ParallelBranches: a.config.Pipeline.ParallelBranches,
		RetrievalTopK:    a.config.Pipeline.RetrievalTopK,
	}, evaluation.RunnerDeps{
		Jobs:       a.db.Jobs(),
		Results:    a.db.Jobs(),
		Documents:  a.documents,
		Extractor:  a.extractor,
		Parser:     gemini.NewParser(a.generator, a.logger, maxLog),
		Scorer:     gemini.NewScorer(a.generator, a.logger, maxLog, weights(scoringCfg.CVWeights), weights(scoringCfg.ProjectWeights)),
		Retriever:  a.index,
		Summarizer: gemini.NewSummarizer(a.generator, a.logger, maxLog),
		Retrier:    retrier,
		Logger:     a.logger,
		Observer:   a.recorder,
	})

	a.pool = queue.New[evaluation.Task](a.runner.Run, func(t evaluation.Task) string { return t.JobID }, a.logger,
		queue.WithWorkers(a.config.Queue.Workers),
		queue.WithQueueSize(a.config.Queue.Size),
	)

	a.admitter = evaluation.NewAdmitter(evaluation.AdmitterDeps{
		Jobs:      a.db.Jobs(),
		Documents: a.documents,
		Queue:     a.pool,
		Logger:    a.logger,
		Observer:  a.recorder,
	})

	return nil
}

func weights(w map[string]float64) gemini.Weights {
	if len(w) == 0 {
		return nil
	}
	return gemini.Weights(w)
}

func (a *app) health(ctx context.Context) error {
	var errs []error
	if err := a.db.HealthCheck(ctx, healthTimeout); err != nil {
		errs = append(errs, err)
	}
	if a.redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx, healthTimeout)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// drain stops accepting work and waits for queued jobs up to grace.
func (a *app) drain(ctx context.Context, grace time.Duration) error {
	if a.pool == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	return a.pool.Shutdown(shutdownCtx)
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis client", zap.Error(err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = a.logger.Sync()
}
