package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/flarexio/blograg"
	"github.com/flarexio/blograg/llm"
	"github.com/flarexio/blograg/llm/goopenai"
	"github.com/flarexio/blograg/llm/openai"
	"github.com/flarexio/blograg/persistence/chromem"
	"github.com/flarexio/blograg/persistence/postgres"
	"github.com/flarexio/blograg/vector"

	mcpE "github.com/flarexio/blograg/mcp"
	httpT "github.com/flarexio/blograg/transport/http"
	natsT "github.com/flarexio/blograg/transport/nats"
)

func main() {
	cmd := &cli.Command{
		Name:  "blograg",
		Usage: "Blog question answering service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "Path to the BlogRAG config directory",
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key of the language model provider",
				Sources: cli.EnvVars("OPENAI_API_KEY"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Serve the HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "http-addr",
						Usage:   "HTTP server address",
						Value:   ":8080",
						Sources: cli.EnvVars("HTTP_ADDR"),
					},
					&cli.StringFlag{
						Name:    "nats",
						Usage:   "NATS server URL, the NATS transport is disabled when empty",
						Sources: cli.EnvVars("NATS_URL"),
					},
					&cli.StringFlag{
						Name:    "nats-creds",
						Usage:   "NATS user credentials file",
						Sources: cli.EnvVars("NATS_CREDS"),
					},
					&cli.StringFlag{
						Name:  "nats-topic",
						Usage: "NATS subject prefix of the service",
						Value: "blograg",
					},
				},
				Action: serve,
			},
			{
				Name:      "index",
				Usage:     "Embed and store blog posts from a YAML or JSON file",
				ArgsUsage: "<file>",
				Action:    index,
			},
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err.Error())
	}
}

type app struct {
	cfg      blograg.Config
	store    vector.Store
	embedder llm.Embedder
	chat     llm.ChatModel
	log      *zap.Logger
}

func setup(ctx context.Context, cmd *cli.Command) (*app, error) {
	path := cmd.String("path")
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}

		path = filepath.Join(homeDir, ".flarex", "blograg")
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}

	zap.ReplaceGlobals(log)

	err = godotenv.Load(filepath.Join(path, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	f, err := os.Open(filepath.Join(path, "config.yaml"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg blograg.Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Vector.Path == "" {
		cfg.Vector.Path = filepath.Join(path, "vectors")
	}

	if cfg.Vector.DSN == "" {
		cfg.Vector.DSN = os.Getenv("DATABASE_URL")
	}

	// The flag source is read before .env is loaded.
	apiKey := cmd.String("api-key")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	store, err := newStore(ctx, cfg.Vector)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(cfg.Embedding, apiKey)
	if err != nil {
		store.Close()
		return nil, err
	}

	chat, err := newChatModel(cfg.Chat, apiKey)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		store:    store,
		embedder: embedder,
		chat:     chat,
		log:      log,
	}, nil
}

func newStore(ctx context.Context, cfg vector.Config) (vector.Store, error) {
	switch cfg.Driver {
	case vector.DriverChromem, "":
		return chromem.NewChromemVectorDB(cfg)
	case vector.DriverPostgres:
		return postgres.NewStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported vector driver: %s", cfg.Driver)
	}
}

func newEmbedder(cfg llm.EmbeddingConfig, apiKey string) (llm.Embedder, error) {
	switch cfg.Provider {
	case llm.ProviderOpenAI, "":
		return openai.NewEmbedder(cfg, apiKey), nil
	case llm.ProviderGoOpenAI:
		return goopenai.NewEmbedder(cfg, apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

func newChatModel(cfg llm.ChatConfig, apiKey string) (llm.ChatModel, error) {
	switch cfg.Provider {
	case llm.ProviderOpenAI, "":
		return openai.NewChatModel(cfg, apiKey), nil
	case llm.ProviderGoOpenAI:
		return goopenai.NewChatModel(cfg, apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported chat provider: %s", cfg.Provider)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	log := a.log
	defer log.Sync()

	svc, err := blograg.NewService(a.cfg, a.store, a.embedder, a.chat)
	if err != nil {
		a.store.Close()
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc = blograg.LoggingMiddleware(log)(svc)
	svc = blograg.InstrumentingMiddleware(blograg.NewMetrics(reg, "blograg"))(svc)
	defer svc.Close()

	endpoints := blograg.MakeEndpoints(svc)

	// Add NATS Transport
	if natsURL := cmd.String("nats"); natsURL != "" {
		opts := []nats.Option{
			nats.Name("BlogRAG Server"),
		}

		if creds := cmd.String("nats-creds"); creds != "" {
			opts = append(opts, nats.UserCredentials(creds))
		}

		nc, err := nats.Connect(natsURL, opts...)
		if err != nil {
			return err
		}
		defer nc.Drain()

		srv, err := micro.AddService(nc, micro.Config{
			Name:    "blograg",
			Version: "1.0.0",
		})

		if err != nil {
			return err
		}
		defer srv.Stop()

		root := srv.AddGroup(cmd.String("nats-topic"))
		if err := natsT.AddEndpoints(root, endpoints); err != nil {
			return err
		}
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), httpT.RequestIDMiddleware())

	var middlewares []gin.HandlerFunc
	if rl := a.cfg.RateLimit; rl.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr: rl.Addr,
		})
		defer rdb.Close()

		window := rl.Window.Duration()
		if window <= 0 {
			window = time.Minute
		}

		middlewares = append(middlewares, httpT.RateLimitMiddleware(rdb, rl.Limit, window))
	}

	httpT.AddRouters(r, endpoints, middlewares...)
	httpT.AddStreamableRouters(r, mcpE.MakeEndpoints(svc), middlewares...)
	httpT.AddOperationalRouters(r, reg)

	srv := &http.Server{
		Addr:    cmd.String("http-addr"),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server started", zap.String("addr", srv.Addr))

		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	})

	g.Go(func() error {
		<-ctx.Done()

		log.Info("graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func index(ctx context.Context, cmd *cli.Command) error {
	file := cmd.Args().First()
	if file == "" {
		return errors.New("file is required")
	}

	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.store.Close()

	log := a.log.With(
		zap.String("action", "index"),
		zap.String("file", file),
	)
	defer log.Sync()

	docs, err := readDocuments(file)
	if err != nil {
		return err
	}

	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = uuid.NewString()
		}
	}

	err = blograg.Index(ctx, a.store, a.embedder, docs, a.cfg.Timeouts.Embedding.Duration())
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("blog posts indexed", zap.Int("count", len(docs)))
	return nil
}

func readDocuments(file string) ([]vector.Document, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	var docs []vector.Document

	switch strings.ToLower(filepath.Ext(file)) {
	case ".json":
		err = json.Unmarshal(data, &docs)
	default:
		err = yaml.Unmarshal(data, &docs)
	}

	if err != nil {
		return nil, err
	}

	return docs, nil
}
