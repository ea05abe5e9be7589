package main

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tender-intel/internal/archive"
	"github.com/sells-group/tender-intel/internal/cost"
	"github.com/sells-group/tender-intel/internal/dedup"
	"github.com/sells-group/tender-intel/internal/digest"
	"github.com/sells-group/tender-intel/internal/discovery"
	"github.com/sells-group/tender-intel/internal/evaluate"
	"github.com/sells-group/tender-intel/internal/feedback"
	"github.com/sells-group/tender-intel/internal/fetcher"
	"github.com/sells-group/tender-intel/internal/ingest"
	"github.com/sells-group/tender-intel/internal/llm"
	"github.com/sells-group/tender-intel/internal/normalize"
	"github.com/sells-group/tender-intel/internal/schedule"
	"github.com/sells-group/tender-intel/internal/store"
	"github.com/sells-group/tender-intel/internal/validate"
	anthropicpkg "github.com/sells-group/tender-intel/pkg/anthropic"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "tender-intel.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{MaxConns: cfg.Store.MaxConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// pipelineEnv holds the store, shared clients and every stage needed by the
// stage, run, schedule and serve commands.
type pipelineEnv struct {
	Store      store.Store
	Fetcher    *fetcher.HTTPFetcher
	Classifier *llm.Classifier
	Reasoner   *llm.Reasoner
	Validator  *validate.Validator
	Pipeline   schedule.Pipeline
	Location   *time.Location
	Spend      *cost.Ledger

	closers []func() error
}

// Close logs model spend and releases sinks and the store.
func (pe *pipelineEnv) Close() {
	if phases := pe.Spend.Phases(); len(phases) > 0 {
		fields := []zap.Field{zap.Float64("total_usd", pe.Spend.Total())}
		for _, p := range phases {
			fields = append(fields, zap.Any(p.Phase, p))
		}
		zap.L().Info("model spend", fields...)
	}
	for _, c := range pe.closers {
		if err := c(); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// Engine returns a stage engine over every pipeline stage.
func (pe *pipelineEnv) Engine() (*schedule.Engine, error) {
	reg, err := schedule.NewRegistry(pe.Pipeline.Stages(pe.Location)...)
	if err != nil {
		return nil, err
	}
	return schedule.NewEngine(pe.Store, reg), nil
}

func newHTTPFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRedirects: cfg.Fetch.MaxRedirects,
		Politeness:   time.Duration(cfg.Fetch.PolitenessMS) * time.Millisecond,
	})
}

// initLLM returns the classifier and reasoner. Without an API key both
// report unavailable and every stage uses its heuristic fallback.
func initLLM(ledger *cost.Ledger) (*llm.Classifier, *llm.Reasoner) {
	var client anthropicpkg.Client
	if cfg.Anthropic.Enabled() {
		client = anthropicpkg.NewClient(cfg.Anthropic.Key)
	} else {
		zap.L().Info("anthropic key not set, model calls disabled")
	}
	return llm.NewClassifier(client, cfg.Anthropic, llm.WithLedger(ledger)),
		llm.NewReasoner(client, cfg.Anthropic, llm.WithLedger(ledger))
}

// initPipeline opens the store and builds every stage. digestOut receives
// the rendered digest when the stdout sink is configured. Callers should
// defer env.Close().
func initPipeline(ctx context.Context, mode string, digestOut io.Writer) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &pipelineEnv{
		Store:    st,
		Location: cfg.Location(),
		Spend:    cost.NewLedger(cost.NewCalculator(cost.DefaultRates())),
	}

	env.Fetcher = newHTTPFetcher()
	env.Classifier, env.Reasoner = initLLM(env.Spend)
	env.Validator = validate.New(env.Fetcher, st, cfg.Fetch.UserAgent, validate.WithClassifier(env.Classifier))

	runnerOpts := []ingest.RunnerOption{ingest.WithExtractor(env.Classifier)}
	if cfg.Ingest.ArchivePayload {
		a, err := archive.NewS3(ctx, cfg.Archive)
		if err != nil {
			env.Close()
			return nil, err
		}
		runnerOpts = append(runnerOpts, ingest.WithArchive(a))
	}
	ftp := fetcher.NewFTPFetcher(fetcher.FTPOptions{
		Timeout: time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
	})
	handlers := []ingest.Handler{
		ingest.NewFeedHandler(env.Fetcher),
		ingest.NewListingHandler(env.Fetcher, cfg.Fetch.PageCap),
		ingest.NewTabularHandler(env.Fetcher, ftp, cfg.Fetch.TempDir),
	}

	sinks, closeSinks, err := digest.BuildSinks(cfg, digestOut)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.closers = append(env.closers, closeSinks)

	env.Pipeline = schedule.Pipeline{
		Discoverer:   discovery.New(env.Fetcher, st, env.Validator, cfg.Discovery),
		Ingester:     ingest.NewRunner(st, handlers, cfg.Ingest, cfg.Fetch, runnerOpts...),
		Normalizer:   normalize.New(st, env.Location, normalize.WithClassifier(env.Classifier)),
		Deduplicator: dedup.New(st, cfg.Dedup),
		Evaluator:    evaluate.New(st, cfg.Evaluate, env.Location, evaluate.WithReasoner(env.Reasoner)),
		Digest:       digest.New(st, cfg.Digest, env.Location, digest.WithReasoner(env.Reasoner), digest.WithSinks(sinks...)),
		Learner:      feedback.New(st, cfg.Feedback, feedback.WithReasoner(env.Reasoner)),
	}
	return env, nil
}
