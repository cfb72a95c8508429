package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	papyr "github.com/papyrhq/papyr"
	"github.com/papyrhq/papyr/ingest"
	"github.com/papyrhq/papyr/ingest/pdf"
	"github.com/papyrhq/papyr/internal/config"
	"github.com/papyrhq/papyr/internal/server"
	"github.com/papyrhq/papyr/observer"
	"github.com/papyrhq/papyr/provider/hf"
	"github.com/papyrhq/papyr/store/postgres"
	"github.com/papyrhq/papyr/store/sqlite"
)

func main() {
	// 1. Load config
	cfg := config.Load(os.Getenv("PAPYR_CONFIG"))

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Observability (optional)
	var tracer papyr.Tracer
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx)
		if err != nil {
			log.Fatalf("observer init: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("observer shutdown", "error", err)
			}
		}()
		tracer = observer.NewTracer()
	}

	// 3. Create providers
	var embOpts []hf.Option
	if cfg.Embedding.BaseURL != "" {
		embOpts = append(embOpts, hf.WithBaseURL(cfg.Embedding.BaseURL))
	}
	var embedding papyr.EmbeddingProvider = hf.NewEmbedding(
		cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions, embOpts...)

	var qaOpts []hf.Option
	if cfg.QA.BaseURL != "" {
		qaOpts = append(qaOpts, hf.WithBaseURL(cfg.QA.BaseURL))
	}
	var answer papyr.AnswerProvider = hf.NewQA(cfg.QA.APIKey, cfg.QA.Model, qaOpts...)

	if inst != nil {
		embedding = observer.WrapEmbedding(embedding, cfg.Embedding.Model, inst)
		answer = observer.WrapAnswer(answer, cfg.QA.Model, inst)
	}

	embedding = papyr.WithEmbedRateLimit(
		papyr.WithEmbedRetry(embedding, papyr.RetryLogger(logger)), cfg.Embedding.RPM)
	answer = papyr.WithAnswerRateLimit(
		papyr.WithAnswerRetry(answer, papyr.RetryLogger(logger)), cfg.QA.RPM)

	// 4. Create store
	var store papyr.Store
	if cfg.Database.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresDSN)
		if err != nil {
			log.Fatalf("postgres connect: %v", err)
		}
		defer pool.Close()
		store = postgres.New(pool, postgres.WithEmbeddingDimension(cfg.Embedding.Dimensions))
	} else {
		store = sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
	}
	if err := store.Init(ctx); err != nil {
		log.Fatalf("store init: %v", err)
	}
	defer store.Close()

	// 5. Create pipelines
	ingestOpts := []ingest.Option{
		ingest.WithChunker(ingest.NewSlidingChunker(
			ingest.WithChunkSize(cfg.Chunking.Size),
			ingest.WithOverlap(cfg.Chunking.Overlap))),
		ingest.WithExtractor(ingest.TypePDF, pdf.NewExtractor()),
		ingest.WithLogger(logger),
	}
	if tracer != nil {
		ingestOpts = append(ingestOpts, ingest.WithTracer(tracer))
	}
	ingestor := ingest.NewIngestor(store, embedding, ingestOpts...)

	answererOpts := []papyr.AnswererOption{papyr.WithLogger(logger)}
	if tracer != nil {
		answererOpts = append(answererOpts, papyr.WithTracer(tracer))
	}
	answerer := papyr.NewAnswerer(store, embedding, answer, answererOpts...)

	// 6. Serve
	srv := server.New(cfg.Server, store, ingestor, answerer,
		server.WithLogger(logger),
		server.WithDefaultTopK(cfg.Query.TopK))

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}
