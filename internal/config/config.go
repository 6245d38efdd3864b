package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"graphloom"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"graphloom"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	GeminiAPIKey   string `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	EmbeddingDim   int    `envconfig:"EMBEDDING_DIM" default:"768"`
	GenerateModel  string `envconfig:"GENERATE_MODEL" default:"gemini-2.0-flash"`

	// Blob storage. "fs" keeps bytes on local disk under BlobDir,
	// "minio" uses an S3-compatible endpoint.
	BlobBackend    string `envconfig:"BLOB_BACKEND" default:"fs"`
	BlobDir        string `envconfig:"BLOB_DIR" default:"./data/blobs"`
	MinioEndpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY"`
	MinioBucket    string `envconfig:"MINIO_BUCKET" default:"graphloom"`
	MinioUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`

	// Segmentation
	ChunkMaxTokens     int `envconfig:"CHUNK_MAX_TOKENS" default:"800"`
	ChunkOverlapTokens int `envconfig:"CHUNK_OVERLAP_TOKENS" default:"100"`
	ChunkBatchSize     int `envconfig:"CHUNK_BATCH_SIZE" default:"100"`

	// Video falls back to fixed time windows when the overview call
	// yields fewer than two topic timestamps.
	VideoWindowSeconds int `envconfig:"VIDEO_WINDOW_SECONDS" default:"30"`

	// Knowledge graph extraction
	EntityExtractionEnabled bool `envconfig:"ENTITY_EXTRACTION_ENABLED" default:"true"`
	ExtractionConcurrency   int  `envconfig:"EXTRACTION_CONCURRENCY" default:"4"`
	MinChunkCharsForGraph   int  `envconfig:"MIN_CHUNK_CHARS_FOR_GRAPH" default:"50"`

	// Retrieval
	SimilarityThreshold float64 `envconfig:"SIMILARITY_THRESHOLD" default:"0.3"`
	RetrievalTopK       int     `envconfig:"RETRIEVAL_TOP_K" default:"10"`
	EntitySearchTopK    int     `envconfig:"ENTITY_SEARCH_TOP_K" default:"20"`

	// Timeouts (seconds) for external model calls
	ExtractTimeoutSeconds int `envconfig:"EXTRACT_TIMEOUT_SECONDS" default:"300"`
	EmbedTimeoutSeconds   int `envconfig:"EMBED_TIMEOUT_SECONDS" default:"60"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"200"`
	MigrationPath   string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root.
	// Ignore errors, as env vars might be set in the shell.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.ChunkOverlapTokens >= c.ChunkMaxTokens {
		return fmt.Errorf("%w: CHUNK_OVERLAP_TOKENS must be smaller than CHUNK_MAX_TOKENS", ErrMissingRequired)
	}
	if c.BlobBackend == "minio" && c.MinioAccessKey == "" {
		return fmt.Errorf("%w: MINIO_ACCESS_KEY", ErrMissingRequired)
	}
	return nil
}
