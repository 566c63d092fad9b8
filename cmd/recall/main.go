package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/w-h-a/recall"
	"github.com/w-h-a/recall/embedder"
	googleembedder "github.com/w-h-a/recall/embedder/google"
	openaiembedder "github.com/w-h-a/recall/embedder/openai"
	"github.com/w-h-a/recall/fetcher"
	httpfetcher "github.com/w-h-a/recall/fetcher/http"
	"github.com/w-h-a/recall/fetcher/markdown"
	"github.com/w-h-a/recall/model"
	"github.com/w-h-a/recall/reranker"
	anthropicreranker "github.com/w-h-a/recall/reranker/anthropic"
	coherereranker "github.com/w-h-a/recall/reranker/cohere"
	googlereranker "github.com/w-h-a/recall/reranker/google"
	openaireranker "github.com/w-h-a/recall/reranker/openai"
	"github.com/w-h-a/recall/server"
	httpserver "github.com/w-h-a/recall/server/http"
	"github.com/w-h-a/recall/storer"
	memorystorer "github.com/w-h-a/recall/storer/memory"
	"github.com/w-h-a/recall/storer/postgres"
	"github.com/w-h-a/recall/storer/sqlite"
	"github.com/w-h-a/recall/tokenizer"
	"github.com/w-h-a/recall/tokenizer/tiktoken"
)

var (
	cfg struct {
		// Logging config
		LogFormat string `help:"Log output format" enum:"text,json" default:"text" env:"RECALL_LOG_FORMAT"`
		LogLevel  string `help:"Minimum log level (debug, info, warn, error)" default:"info" env:"RECALL_LOG_LEVEL"`

		// Storer config
		Store         string `help:"Storage backend" enum:"postgres,sqlite,memory" default:"sqlite" env:"RECALL_STORE"`
		StoreLocation string `help:"Postgres URL or sqlite file for the storer" default:"recall.db" env:"RECALL_STORE_LOCATION"`
		Migrate       bool   `help:"Apply the schema on startup" default:"true" negatable:""`
		BatchSize     int    `help:"Rows per bulk write" default:"20"`

		// Fetcher config
		Fetcher         string `help:"Note source" enum:"markdown,http" default:"markdown" env:"RECALL_FETCHER"`
		FetcherLocation string `help:"Notes directory or snapshot URL" default:"./notes" env:"RECALL_FETCHER_LOCATION"`
		FetcherToken    string `help:"Bearer token for the http fetcher" default:"" env:"RECALL_FETCHER_TOKEN"`

		// Embedder config
		Embedder        string `help:"Embedding provider" enum:"openai,google" default:"openai" env:"RECALL_EMBEDDER"`
		EmbedderModel   string `help:"Embedding model tag or provider model name, empty for the provider default" default:"" env:"RECALL_EMBEDDER_MODEL"`
		EmbedderKey     string `help:"API Key for the embedder" default:"" env:"RECALL_EMBEDDER_KEY"`
		EmbedderBaseURL string `help:"Override the embedder endpoint" default:"" env:"RECALL_EMBEDDER_BASE_URL"`

		// Reranker config
		Reranker      string `help:"Rerank provider" enum:"cohere,openai,anthropic,google" default:"cohere" env:"RECALL_RERANKER"`
		RerankerKey   string `help:"API Key for the reranker" default:"" env:"RECALL_RERANKER_KEY"`
		RerankerModel string `help:"Model identifier for the reranker" default:"" env:"RECALL_RERANKER_MODEL"`

		Serve struct {
			Address  string `help:"Address to listen on" default:":8080" env:"RECALL_ADDRESS"`
			Schedule string `help:"Cron spec for background sync, empty to disable" default:"" env:"RECALL_SCHEDULE"`
		} `cmd:"" help:"Serve the HTTP API"`

		Sync struct{} `cmd:"" help:"Run one sync and index cycle"`

		Search struct {
			Query string `arg:"" help:"Search query"`
			TopK  int    `help:"Number of neurons to return" default:"5"`
			Text  bool   `help:"Print neurons joined as plain text"`
		} `cmd:"" help:"Search neurons"`

		Resume struct{} `cmd:"" help:"Re-index memories left pending by an interrupted cycle"`

		Schema struct{} `cmd:"" help:"Print the schema of the configured store"`
	}
)

func main() {
	// .env values feed the env tags
	_ = godotenv.Load()

	kctx := kong.Parse(&cfg, kong.Name("recall"), kong.Description("Sync notes into a searchable vector memory."))

	initLogger()

	if kctx.Command() == "schema" {
		switch cfg.Store {
		case "postgres":
			fmt.Print(postgres.Schema())
		case "sqlite":
			fmt.Print(sqlite.Schema())
		default:
			fmt.Fprintln(os.Stderr, "the memory store has no schema")
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := initRecall(ctx)

	var err error

	switch kctx.Command() {
	case "serve":
		err = serve(ctx, r)
	case "sync":
		err = report(ctx, "synced", r.Sync)
	case "search <query>":
		err = search(ctx, r)
	case "resume":
		err = report(ctx, "resumed", r.Resume)
	}

	if err != nil {
		slog.ErrorContext(ctx, "command failed", "command", kctx.Command(), "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, r *recall.Recall) error {
	if len(cfg.Serve.Schedule) > 0 {
		c := cron.New()

		_, err := c.AddFunc(cfg.Serve.Schedule, func() {
			memories, err := r.Sync(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "scheduled sync failed", "error", err)
				return
			}
			slog.InfoContext(ctx, "scheduled sync finished", "memories", len(memories))
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q: %w", cfg.Serve.Schedule, err)
		}

		c.Start()
		defer c.Stop()
	}

	srv := httpserver.NewServer(
		server.WithAddress(cfg.Serve.Address),
		httpserver.WithHandler(httpserver.NewRouter(r)),
		httpserver.WithMiddleware(httpserver.LogRequests),
	)

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return <-errCh
}

func report(ctx context.Context, verb string, run func(ctx context.Context) ([]model.Memory, error)) error {
	memories, err := run(ctx)
	if err != nil {
		return err
	}

	for _, m := range memories {
		fmt.Printf("%s %s (%s)\n", verb, m.BizId, m.Id)
	}
	fmt.Printf("%s %d memories\n", verb, len(memories))

	return nil
}

func search(ctx context.Context, r *recall.Recall) error {
	if cfg.Search.Text {
		text, err := r.SearchNeuronsAsText(ctx, cfg.Search.Query, cfg.Search.TopK)
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	}

	neurons, err := r.SearchNeurons(ctx, cfg.Search.Query, cfg.Search.TopK)
	if err != nil {
		return err
	}

	for i, n := range neurons {
		fmt.Printf("%d. [%.3f] %s (memory %s, paragraph %d)\n", i+1, n.Score, n.Content, n.MemoryId, n.Position.Paragraph)
	}

	return nil
}

func initLogger() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func initRecall(ctx context.Context) *recall.Recall {
	s := initStorer(ctx)

	return recall.New(
		initFetcher(),
		s,
		initEmbedder(),
		tiktoken.NewTokenizer(tokenizer.WithEncoding("cl100k_base")),
		initReranker(),
		cfg.BatchSize,
	)
}

func initStorer(ctx context.Context) storer.Storer {
	var s storer.Storer

	switch cfg.Store {
	case "postgres":
		s = postgres.NewStorer(storer.WithLocation(cfg.StoreLocation))
	case "sqlite":
		s = sqlite.NewStorer(storer.WithLocation(cfg.StoreLocation))
	default:
		s = memorystorer.NewStorer()
	}

	if m, ok := s.(storer.Migrator); ok && cfg.Migrate {
		if err := m.Migrate(ctx); err != nil {
			detail := "failed to migrate storer"
			slog.ErrorContext(ctx, detail, "store", cfg.Store, "error", err)
			panic(detail)
		}
	}

	return s
}

func initFetcher() fetcher.Fetcher {
	opts := []fetcher.Option{
		fetcher.WithLocation(cfg.FetcherLocation),
		fetcher.WithToken(cfg.FetcherToken),
	}

	if cfg.Fetcher == "http" {
		return httpfetcher.NewFetcher(opts...)
	}

	return markdown.NewFetcher(opts...)
}

func initEmbedder() embedder.Embedder {
	opts := []embedder.Option{
		embedder.WithApiKey(cfg.EmbedderKey),
		embedder.WithBaseURL(cfg.EmbedderBaseURL),
	}

	if len(cfg.EmbedderModel) > 0 {
		m, ok := model.ParseEmbedModel(cfg.EmbedderModel)
		if !ok || m.Provider() != cfg.Embedder {
			detail := "embedding model does not belong to the embedder"
			slog.Error(detail, "model", cfg.EmbedderModel, "embedder", cfg.Embedder)
			panic(detail)
		}
		opts = append(opts, embedder.WithModel(m))
	}

	if cfg.Embedder == "google" {
		return googleembedder.NewEmbedder(opts...)
	}

	return openaiembedder.NewEmbedder(opts...)
}

func initReranker() reranker.Reranker {
	opts := []reranker.Option{
		reranker.WithApiKey(cfg.RerankerKey),
		reranker.WithModel(cfg.RerankerModel),
	}

	switch cfg.Reranker {
	case "openai":
		return openaireranker.NewReranker(opts...)
	case "anthropic":
		return anthropicreranker.NewReranker(opts...)
	case "google":
		return googlereranker.NewReranker(opts...)
	default:
		return coherereranker.NewReranker(opts...)
	}
}

