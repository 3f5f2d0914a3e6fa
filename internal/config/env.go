package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Pipeline holds the ingestion and retrieval knobs. It can be set from the
// YAML file named by KB_CONFIG_FILE; environment variables win over the file.
type Pipeline struct {
	MaxChunkSize        int           `yaml:"max_chunk_size"`
	ChunkOverlap        int           `yaml:"chunk_overlap"`
	MaxContextTokens    int           `yaml:"max_context_tokens"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	ResultLimit         int           `yaml:"result_limit"`
	MaxPDFPages         int           `yaml:"max_pdf_pages"`
	MaxOCRPages         int           `yaml:"max_ocr_pages"`
	MaxFileSizeBytes    int64         `yaml:"max_file_size_bytes"`
	EmbedBatchSize      int           `yaml:"embed_batch_size"`
	FlushSize           int           `yaml:"flush_size"`
	EmbedRPS            float64       `yaml:"embed_rps"`
	EmbedTimeout        time.Duration `yaml:"embed_timeout"`
	Workers             int           `yaml:"workers"`
	BackgroundIndexing  bool          `yaml:"background_indexing"`
	InstructionPolicy   []string      `yaml:"instruction_policy"`
}

type Config struct {
	DatabaseURL  string
	SslCertPath  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	AIAPIKey      string
	EmbedProvider string
	EmbedModel    string
	EmbedDim      int
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GenModel      string
	OllamaURL     string
	OllamaModel   string
	LLMProviders  []string

	VectorBackend string
	ChromemPath   string

	JWTSecret      string
	Port           string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string

	Pipeline Pipeline
}

func defaultPipeline() Pipeline {
	return Pipeline{
		MaxChunkSize:        1000,
		ChunkOverlap:        200,
		MaxContextTokens:    10000,
		SimilarityThreshold: 0.35,
		ResultLimit:         5,
		MaxPDFPages:         50,
		MaxOCRPages:         10,
		MaxFileSizeBytes:    10 << 20,
		EmbedBatchSize:      5,
		FlushSize:           20,
		EmbedTimeout:        30 * time.Second,
		Workers:             2,
	}
}

// LoadConfig loads .env, the optional YAML file and the environment, in that
// order of increasing precedence.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{Pipeline: defaultPipeline()}
	if path := getEnv("KB_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.DatabaseURL = getEnv("DATABASE_URL", "")
	cfg.SslCertPath = getEnv("SSL_CERT_PATH", "")
	cfg.AwsAccessKey = getEnv("AWS_ACCESS_KEY", "")
	cfg.AwsSecretKey = getEnv("AWS_SECRET_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "us-east-2")
	cfg.BucketName = getEnv("BUCKET_NAME", "")

	cfg.AIAPIKey = getEnv("GEMINI_API_KEY", "")
	cfg.EmbedProvider = strings.ToLower(getEnv("EMBED_PROVIDER", "gemini"))
	cfg.EmbedModel = getEnv("EMBED_MODEL", "")
	cfg.EmbedDim = getEnvInt("EMBED_DIM", 768)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", "")
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1")
	cfg.GenModel = getEnv("GEN_MODEL", "gemini-1.5-flash")
	cfg.OllamaURL = getEnv("OLLAMA_URL", "")
	cfg.OllamaModel = getEnv("OLLAMA_MODEL", "llama3.1")
	cfg.LLMProviders = getEnvList("LLM_PROVIDERS", []string{"gemini", "ollama"})

	cfg.VectorBackend = strings.ToLower(getEnv("VECTOR_BACKEND", "postgres"))
	cfg.ChromemPath = getEnv("CHROMEM_PATH", "")

	cfg.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.Port = getEnv("PORT", "8080")
	cfg.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:5173"})
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "text")

	p := &cfg.Pipeline
	p.MaxChunkSize = getEnvInt("MAX_CHUNK_SIZE", p.MaxChunkSize)
	p.ChunkOverlap = getEnvInt("CHUNK_OVERLAP", p.ChunkOverlap)
	p.MaxContextTokens = getEnvInt("MAX_CONTEXT_TOKENS", p.MaxContextTokens)
	p.SimilarityThreshold = getEnvFloat("SIMILARITY_THRESHOLD", p.SimilarityThreshold)
	p.ResultLimit = getEnvInt("RESULT_LIMIT", p.ResultLimit)
	p.MaxPDFPages = getEnvInt("MAX_PDF_PAGES", p.MaxPDFPages)
	p.MaxOCRPages = getEnvInt("MAX_OCR_PAGES", p.MaxOCRPages)
	p.MaxFileSizeBytes = int64(getEnvInt("MAX_FILE_SIZE_BYTES", int(p.MaxFileSizeBytes)))
	p.EmbedBatchSize = getEnvInt("EMBED_BATCH_SIZE", p.EmbedBatchSize)
	p.FlushSize = getEnvInt("FLUSH_SIZE", p.FlushSize)
	p.EmbedRPS = getEnvFloat("EMBED_RPS", p.EmbedRPS)
	p.EmbedTimeout = getEnvDuration("EMBED_TIMEOUT", p.EmbedTimeout)
	p.Workers = getEnvInt("INGEST_WORKERS", p.Workers)
	p.BackgroundIndexing = getEnvBool("BACKGROUND_INDEXING", p.BackgroundIndexing)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	file := struct {
		Pipeline *Pipeline `yaml:"pipeline"`
	}{Pipeline: &c.Pipeline}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	p := c.Pipeline

	if p.MaxChunkSize <= 0 || p.ChunkOverlap < 0 || p.ChunkOverlap >= p.MaxChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP (%d) must be in [0, MAX_CHUNK_SIZE (%d))", p.ChunkOverlap, p.MaxChunkSize))
	}
	if p.MaxContextTokens <= 0 {
		errs = append(errs, errors.New("MAX_CONTEXT_TOKENS must be positive"))
	}
	if p.SimilarityThreshold < -1 || p.SimilarityThreshold > 1 {
		errs = append(errs, errors.New("SIMILARITY_THRESHOLD must be within [-1, 1]"))
	}
	if p.ResultLimit <= 0 {
		errs = append(errs, errors.New("RESULT_LIMIT must be positive"))
	}
	if p.MaxFileSizeBytes <= 0 {
		errs = append(errs, errors.New("MAX_FILE_SIZE_BYTES must be positive"))
	}
	if c.EmbedDim <= 0 {
		errs = append(errs, errors.New("EMBED_DIM must be positive"))
	}

	switch c.VectorBackend {
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL not set"))
		}
	case "chromem", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend))
	}

	switch c.EmbedProvider {
	case "gemini", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown EMBED_PROVIDER %q", c.EmbedProvider))
	}

	return errors.Join(errs...)
}

// DefaultEmbeddingKey is used when a request carries no key of its own.
func (c *Config) DefaultEmbeddingKey() string {
	if v := getEnv("EMBEDDING_API_KEY", ""); v != "" {
		return v
	}
	if c.EmbedProvider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.AIAPIKey
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config: not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("config: not a number, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config: not a bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config: not a duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
