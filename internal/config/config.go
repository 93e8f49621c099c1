package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Epistemic-Technology/study-rag/internal/logger"
)

// DefaultPath is the YAML file consulted when STUDY_RAG_CONFIG is unset.
const DefaultPath = "study-rag.yaml"

const (
	defaultSegmentOverlap = 20
	defaultExtractOverlap = 100
)

// OpenAIConfig configures the completion and embedding services.
type OpenAIConfig struct {
	APIKey         string `yaml:"-"`
	BaseURL        string `yaml:"base_url"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
	TimeoutSecs    int    `yaml:"timeout_secs"`
	// MaxRetries applies to rate-limit errors only; 0 means a single attempt.
	MaxRetries int `yaml:"max_retries"`
}

// ZoteroConfig holds Zotero credentials and import limits.
type ZoteroConfig struct {
	APIKey          string `yaml:"-"`
	LibraryID       string `yaml:"library_id"`
	AttachmentLimit int    `yaml:"attachment_limit"`
}

// SegmenterConfig controls sentence-window segmentation.
type SegmenterConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	WindowSize   int `yaml:"window_size"`
}

// QueryConfig controls retrieval depth.
type QueryConfig struct {
	// Bibliographies with at most SmallBibliography documents retrieve one chunk per document.
	SmallBibliography int `yaml:"small_bibliography"`
	BibliographyCap   int `yaml:"bibliography_cap"`
	PDFTopK           int `yaml:"pdf_top_k"`
}

// ExtractConfig controls full-document variable extraction.
type ExtractConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// Config is the root configuration.
type Config struct {
	DataDir    string           `yaml:"data_dir"`
	DBPath     string           `yaml:"db_path"`
	VectorDir  string           `yaml:"vector_dir"`
	BundleDir  string           `yaml:"bundle_dir"`
	ExportDir  string           `yaml:"export_dir"`
	StudyFiles string           `yaml:"study_files"`
	CompressDB bool             `yaml:"compress_vectors"`
	Log        logger.LogConfig `yaml:"log"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Zotero     ZoteroConfig     `yaml:"zotero"`
	Segmenter  SegmenterConfig  `yaml:"segmenter"`
	Query      QueryConfig      `yaml:"query"`
	Extract    ExtractConfig    `yaml:"extract"`
}

// Load reads .env (if present), then the YAML file at path (if present), then
// applies environment overrides and defaults. An empty path means
// STUDY_RAG_CONFIG or DefaultPath.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if path == "" {
		path = getenv("STUDY_RAG_CONFIG", DefaultPath)
	}

	cfg := newConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnv(cfg)
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied and no file or env input.
func Default() (*Config, error) {
	cfg := newConfig()
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML, creating directories as needed. Secrets are not written.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// EnsureDirs creates the data, vector, bundle and export directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.VectorDir, c.BundleDir, c.ExportDir, filepath.Dir(c.DBPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// newConfig seeds the fields whose zero value is a valid setting, so that only
// keys missing from the YAML fall back to their defaults.
func newConfig() *Config {
	return &Config{
		Segmenter: SegmenterConfig{ChunkOverlap: defaultSegmentOverlap},
		Extract:   ExtractConfig{ChunkOverlap: defaultExtractOverlap},
	}
}

func applyEnv(cfg *Config) {
	cfg.OpenAI.APIKey = getenv("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.BaseURL = getenv("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.OpenAI.ChatModel = getenv("STUDY_RAG_CHAT_MODEL", cfg.OpenAI.ChatModel)
	cfg.OpenAI.EmbeddingModel = getenv("STUDY_RAG_EMBEDDING_MODEL", cfg.OpenAI.EmbeddingModel)
	cfg.OpenAI.MaxRetries = getenvInt("STUDY_RAG_MAX_RETRIES", cfg.OpenAI.MaxRetries)

	cfg.Zotero.APIKey = getenv("ZOTERO_API_KEY", cfg.Zotero.APIKey)
	cfg.Zotero.LibraryID = getenv("ZOTERO_LIBRARY_ID", cfg.Zotero.LibraryID)

	cfg.DataDir = getenv("STUDY_RAG_DATA_DIR", cfg.DataDir)
	cfg.DBPath = getenv("STUDY_RAG_DB_PATH", cfg.DBPath)
	cfg.VectorDir = getenv("STUDY_RAG_VECTOR_DIR", cfg.VectorDir)
	cfg.StudyFiles = getenv("STUDY_RAG_STUDY_FILES", cfg.StudyFiles)
}

func applyDefaults(cfg *Config) error {
	if cfg.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(homeDir, ".study-rag")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "study-rag.db")
	}
	if cfg.VectorDir == "" {
		cfg.VectorDir = filepath.Join(cfg.DataDir, "vectors")
	}
	if cfg.BundleDir == "" {
		cfg.BundleDir = filepath.Join(cfg.DataDir, "bundles")
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = filepath.Join(cfg.DataDir, "exports")
	}

	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = "gpt-5-mini"
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.OpenAI.TimeoutSecs <= 0 {
		cfg.OpenAI.TimeoutSecs = 120
	}
	if cfg.OpenAI.MaxRetries < 0 {
		cfg.OpenAI.MaxRetries = 0
	}

	if cfg.Zotero.AttachmentLimit <= 0 {
		cfg.Zotero.AttachmentLimit = 10
	}

	if cfg.Segmenter.ChunkSize <= 0 {
		cfg.Segmenter.ChunkSize = 1024
	}
	if cfg.Segmenter.ChunkOverlap < 0 || cfg.Segmenter.ChunkOverlap >= cfg.Segmenter.ChunkSize {
		cfg.Segmenter.ChunkOverlap = min(defaultSegmentOverlap, cfg.Segmenter.ChunkSize-1)
	}
	if cfg.Segmenter.WindowSize <= 0 {
		cfg.Segmenter.WindowSize = 3
	}

	if cfg.Query.SmallBibliography <= 0 {
		cfg.Query.SmallBibliography = 17
	}
	if cfg.Query.BibliographyCap <= 0 {
		cfg.Query.BibliographyCap = 15
	}
	if cfg.Query.PDFTopK <= 0 {
		cfg.Query.PDFTopK = 5
	}

	if cfg.Extract.ChunkSize <= 0 {
		cfg.Extract.ChunkSize = 10000
	}
	if cfg.Extract.ChunkOverlap < 0 || cfg.Extract.ChunkOverlap >= cfg.Extract.ChunkSize {
		cfg.Extract.ChunkOverlap = min(defaultExtractOverlap, cfg.Extract.ChunkSize-1)
	}
	return nil
}

func getenv(k, fallback string) string {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(k string, fallback int) int {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
