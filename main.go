package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"graphloom/features/document"
	"graphloom/features/query"
	"graphloom/features/stats"
	"graphloom/internal/adapter/gemini"
	wstore "graphloom/internal/adapter/weaviate"
	"graphloom/internal/blob"
	"graphloom/internal/config"
	"graphloom/internal/extract"
	"graphloom/internal/graph"
	"graphloom/internal/logger"
	"graphloom/internal/middleware"
	"graphloom/internal/retrieval"
	"graphloom/internal/vector"
	"graphloom/internal/worker"
)

func main() {
	// Structured JSON logs with correlation ids attached from context
	slog.SetDefault(slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))))

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	// 2. Database Connection
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("failed to open db connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", cfg.BootstrapRetryAttempts)
		time.Sleep(retryDelay)
	}
	if err := db.Ping(); err != nil {
		slog.Error("failed to ping db after retries", "error", err)
		os.Exit(1)
	}

	// 3. Run Migrations
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		slog.Error("failed to create migration driver", "error", err)
		os.Exit(1)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		slog.Error("failed to create migration instance", "error", err)
		os.Exit(1)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("migrations applied successfully")

	// 4. Weaviate Connection & Schema
	wClient, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.WeaviateHost,
		Scheme: cfg.WeaviateScheme,
	})
	if err != nil {
		slog.Error("failed to create weaviate client", "error", err)
		os.Exit(1)
	}

	wAdapter := vector.NewWeaviateClientAdapter(wClient)
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := vector.EnsureSchema(ctx, wAdapter); err == nil {
			slog.Info("weaviate schema ensured")
			break
		}
		slog.Warn("failed to ensure weaviate schema, retrying...", "attempt", i+1, "error", err)
		time.Sleep(retryDelay)
	}
	if err := vector.EnsureSchema(ctx, wAdapter); err != nil {
		slog.Error("failed to ensure weaviate schema after retries", "error", err)
		os.Exit(1)
	}

	vecStore := wstore.NewStore(wClient)

	// 5. Blob Store
	var blobStore blob.Store
	switch cfg.BlobBackend {
	case "minio":
		mClient, merr := minio.New(cfg.MinioEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
			Secure: cfg.MinioUseSSL,
		})
		if merr != nil {
			slog.Error("failed to create minio client", "error", merr)
			os.Exit(1)
		}
		ms := blob.NewMinioStore(mClient, cfg.MinioBucket)
		if err := ms.EnsureBucket(ctx); err != nil {
			slog.Error("failed to ensure minio bucket", "error", err)
			os.Exit(1)
		}
		blobStore = ms
	default:
		fs, ferr := blob.NewFSStore(cfg.BlobDir)
		if ferr != nil {
			slog.Error("failed to create blob directory", "error", ferr)
			os.Exit(1)
		}
		blobStore = fs
	}

	// 6. Gemini Adapters
	geminiClient, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GenerateModel)
	if err != nil {
		slog.Error("failed to create gemini client", "error", err)
		os.Exit(1)
	}
	defer geminiClient.Close()

	geminiEmbedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDim)
	if err != nil {
		slog.Error("failed to create gemini embedder", "error", err)
		os.Exit(1)
	}
	defer geminiEmbedder.Close()

	// 7. NSQ Producer
	nsqCfg := nsq.NewConfig()
	nsqProducer, err := nsq.NewProducer(cfg.NSQDHost, nsqCfg)
	if err != nil {
		slog.Error("failed to create NSQ producer", "error", err)
		os.Exit(1)
	}
	createTopics(cfg.NSQDHost, cfg.NSQDHTTP)

	// 8. Features
	grapher := graph.NewExtractor(geminiClient, geminiEmbedder, vecStore, func() string { return uuid.New().String() },
		graph.WithConcurrency(cfg.ExtractionConcurrency),
		graph.WithMinChunkChars(cfg.MinChunkCharsForGraph))

	documentRepo := document.NewPostgresRepo(db)
	documentService := document.NewService(documentRepo, nsqProducer, vecStore, blobStore, grapher)
	documentHandler := document.NewHandler(documentService, int(cfg.MaxUploadSizeMB))

	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(geminiEmbedder, vecStore, retrieval.Options{
		Threshold:  float32(cfg.SimilarityThreshold),
		TopK:       cfg.RetrievalTopK,
		EntityTopK: cfg.EntitySearchTopK,
	}, queryLogger)
	queryHandler := query.NewHandler(retrievalService)

	statsHandler := stats.NewHandler(documentRepo, vecStore)

	// 9. Ingestion Worker
	dispatcher := extract.NewDispatcher(geminiClient, extract.Options{
		VideoWindowSeconds: cfg.VideoWindowSeconds,
		AudioPieceTokens:   cfg.ChunkMaxTokens,
	})
	ingestConsumer := worker.NewIngestConsumer(documentRepo, blobStore, dispatcher, geminiEmbedder, vecStore, grapher,
		worker.IngestOptions{
			ChunkMaxTokens: cfg.ChunkMaxTokens,
			ChunkOverlap:   cfg.ChunkOverlapTokens,
			ChunkBatchSize: cfg.ChunkBatchSize,
			ExtractTimeout: time.Duration(cfg.ExtractTimeoutSeconds) * time.Second,
			EmbedTimeout:   time.Duration(cfg.EmbedTimeoutSeconds) * time.Second,
			GraphEnabled:   cfg.EntityExtractionEnabled,
		})

	consumer, err := nsq.NewConsumer(config.TopicIngestTask, config.ChannelIngest, nsq.NewConfig())
	if err != nil {
		slog.Error("failed to create NSQ consumer", "error", err)
	} else {
		consumer.AddHandler(nsq.HandlerFunc(func(msg *nsq.Message) error {
			return ingestConsumer.HandleMessage(msg)
		}))
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			slog.Error("failed to connect to NSQLookupd", "error", err)
		} else {
			slog.Info("NSQ ingest consumer connected")
		}
	}

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	http.Handle("POST /documents", middleware.CorrelationID(enableCORS(documentHandler.Upload)))
	http.Handle("GET /documents", middleware.CorrelationID(enableCORS(documentHandler.List)))
	http.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Get)))
	http.Handle("DELETE /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Delete)))
	http.Handle("POST /documents/{id}/reingest", middleware.CorrelationID(enableCORS(documentHandler.Reingest)))

	http.Handle("POST /query", middleware.CorrelationID(enableCORS(queryHandler.Query)))
	http.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			slog.Error("failed to write health response", "error", err)
		}
	})

	// 10. Start Server
	slog.Info("server starting", "port", cfg.ServerPort)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.ServerPort), nil); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// createTopics hits the nsqd http api so consumers querying lookupd don't 404
// before the first publish.
func createTopics(nsqdHost, nsqdHTTP string) {
	if nsqdHTTP == "" {
		if host, _, err := net.SplitHostPort(nsqdHost); err == nil {
			nsqdHTTP = host + ":4151"
		}
	}
	if nsqdHTTP == "" {
		return
	}

	go func() {
		// Wait for nsqd to be ready
		time.Sleep(2 * time.Second)
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, config.TopicIngestTask)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to pre-create ingest.task topic", "error", err, "url", url)
			return
		}
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", err)
		}
	}()
}
