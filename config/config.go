package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	configOnce sync.Once
	appConfig  *Config
)

type Config struct {
	Extraction ExtractionConfig `yaml:"extraction"`
	OCR        OCRConfig        `yaml:"ocr"`
	Server     ServerConfig     `yaml:"server"`
	Worker     WorkerConfig     `yaml:"worker"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// ExtractionConfig tunes routing thresholds and the chunked processors.
type ExtractionConfig struct {
	MaxSizeThresholdMB int64         `yaml:"max_size_threshold_mb"`
	MinimumTextLength  int           `yaml:"minimum_text_length"`
	PDFChunkSize       int           `yaml:"pdf_chunk_size"`
	GenericChunkSizeMB int           `yaml:"generic_chunk_size_mb"`
	PoolSize           int           `yaml:"pool_size"`
	QueueSize          int           `yaml:"queue_size"`
	TempDir            string        `yaml:"temp_dir"`
	ShutdownGrace      time.Duration `yaml:"shutdown_grace"`
}

type OCRConfig struct {
	Engine        string   `yaml:"engine"`
	DPI           int      `yaml:"dpi"`
	ImageType     string   `yaml:"image_type"`
	Languages     []string `yaml:"languages"`
	TessdataPath  string   `yaml:"tessdata_path"`
	Preprocess    []string `yaml:"preprocess"`
	Pdftoppm      string   `yaml:"pdftoppm"`
	MinConfidence float64  `yaml:"min_confidence"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	UploadDir      string   `yaml:"upload_dir"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxUploadMB    int64    `yaml:"max_upload_mb"`
}

type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StorageConfig struct {
	// Provider is "minio" or "s3".
	Provider string      `yaml:"provider"`
	Minio    MinioConfig `yaml:"minio"`
	S3       S3Config    `yaml:"s3"`
}

type LogConfig struct {
	Level       string   `yaml:"level"`
	Encoding    string   `yaml:"encoding"`
	OutputPaths []string `yaml:"output_paths"`
	// ErrorPaths receive the logger's own internal errors.
	ErrorPaths  []string `yaml:"error_paths"`
	Development bool     `yaml:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Extraction: ExtractionConfig{
			MaxSizeThresholdMB: 50,
			MinimumTextLength:  50,
			PDFChunkSize:       10,
			GenericChunkSizeMB: 5,
			PoolSize:           runtime.NumCPU(),
			QueueSize:          64,
			TempDir:            filepath.Join(os.TempDir(), "ocr"),
			ShutdownGrace:      60 * time.Second,
		},
		OCR: OCRConfig{
			Engine:        "tesseract",
			DPI:           300,
			ImageType:     "RGB",
			Languages:     []string{"eng"},
			Pdftoppm:      "pdftoppm",
			MinConfidence: 80,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			UploadDir:      filepath.Join(os.TempDir(), "uploads"),
			AllowedOrigins: []string{"*"},
			MaxUploadMB:    512,
		},
		Worker: WorkerConfig{Concurrency: 4},
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Storage: StorageConfig{
			Provider: "minio",
			Minio: MinioConfig{
				Endpoint:   "localhost:9000",
				BucketName: "documents",
			},
			S3: S3Config{Region: "us-east-1"},
		},
		Log: LogConfig{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stdout"},
			ErrorPaths:  []string{"stderr"},
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and environment overrides, in that order.
func Load(path string) (*Config, error) {
	loadEnv()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetConfig loads the process-wide configuration once from CONFIG_FILE
// (default config.yaml). Invalid configuration falls back to defaults.
func GetConfig() *Config {
	configOnce.Do(func() {
		loadEnv()
		cfg, err := Load(getEnv("CONFIG_FILE", "config.yaml"))
		if err != nil {
			log.Printf("Warning: %v, using defaults", err)
			cfg = Default()
		}
		appConfig = cfg
	})
	return appConfig
}

func (c *Config) applyEnv() {
	e := &c.Extraction
	e.MaxSizeThresholdMB = getEnvInt64("EXTRACTION_MAX_SIZE_THRESHOLD_MB", e.MaxSizeThresholdMB)
	e.MinimumTextLength = getEnvInt("EXTRACTION_MINIMUM_TEXT_LENGTH", e.MinimumTextLength)
	e.PDFChunkSize = getEnvInt("EXTRACTION_PDF_CHUNK_SIZE", e.PDFChunkSize)
	e.GenericChunkSizeMB = getEnvInt("EXTRACTION_GENERIC_CHUNK_SIZE_MB", e.GenericChunkSizeMB)
	e.PoolSize = getEnvInt("EXTRACTION_POOL_SIZE", e.PoolSize)
	e.QueueSize = getEnvInt("EXTRACTION_QUEUE_SIZE", e.QueueSize)
	e.TempDir = getEnv("EXTRACTION_TEMP_DIR", e.TempDir)
	e.ShutdownGrace = getEnvDuration("EXTRACTION_SHUTDOWN_GRACE", e.ShutdownGrace)

	o := &c.OCR
	o.Engine = getEnv("OCR_ENGINE", o.Engine)
	o.DPI = getEnvInt("OCR_DPI", o.DPI)
	o.ImageType = getEnv("OCR_IMAGE_TYPE", o.ImageType)
	o.Languages = getEnvList("OCR_LANGUAGES", o.Languages)
	o.TessdataPath = getEnv("TESSDATA_PREFIX", o.TessdataPath)
	o.Preprocess = getEnvList("OCR_PREPROCESS", o.Preprocess)
	o.Pdftoppm = getEnv("OCR_PDFTOPPM", o.Pdftoppm)
	o.MinConfidence = getEnvFloat("OCR_MIN_CONFIDENCE", o.MinConfidence)

	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	c.Server.UploadDir = getEnv("SERVER_UPLOAD_DIR", c.Server.UploadDir)
	c.Server.AllowedOrigins = getEnvList("SERVER_ALLOWED_ORIGINS", c.Server.AllowedOrigins)
	c.Server.MaxUploadMB = getEnvInt64("SERVER_MAX_UPLOAD_MB", c.Server.MaxUploadMB)

	c.Worker.Concurrency = getEnvInt("WORKER_CONCURRENCY", c.Worker.Concurrency)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	c.Storage.Provider = getEnv("STORAGE_PROVIDER", c.Storage.Provider)
	c.Storage.Minio.applyEnv()
	c.Storage.S3.applyEnv()

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Encoding = getEnv("LOG_ENCODING", c.Log.Encoding)
	c.Log.OutputPaths = getEnvList("LOG_OUTPUT_PATHS", c.Log.OutputPaths)
	c.Log.ErrorPaths = getEnvList("LOG_ERROR_PATHS", c.Log.ErrorPaths)
	c.Log.Development = getEnvBool("LOG_DEVELOPMENT", c.Log.Development)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	e := c.Extraction
	if e.MaxSizeThresholdMB <= 0 {
		errs = append(errs, fmt.Errorf("max_size_threshold_mb must be positive, got %d", e.MaxSizeThresholdMB))
	}
	if e.MinimumTextLength < 0 {
		errs = append(errs, fmt.Errorf("minimum_text_length must not be negative, got %d", e.MinimumTextLength))
	}
	if e.PDFChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("pdf_chunk_size must be positive, got %d", e.PDFChunkSize))
	}
	if e.GenericChunkSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("generic_chunk_size_mb must be positive, got %d", e.GenericChunkSizeMB))
	}
	if e.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("pool_size must be positive, got %d", e.PoolSize))
	}
	if e.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("queue_size must not be negative, got %d", e.QueueSize))
	}
	if c.OCR.DPI <= 0 {
		errs = append(errs, fmt.Errorf("dpi must be positive, got %d", c.OCR.DPI))
	}
	switch strings.ToLower(c.OCR.Engine) {
	case "tesseract", "textract":
	default:
		errs = append(errs, fmt.Errorf("unknown ocr engine %q", c.OCR.Engine))
	}
	switch strings.ToUpper(c.OCR.ImageType) {
	case "RGB", "GRAY", "BINARY":
	default:
		errs = append(errs, fmt.Errorf("image_type must be RGB, GRAY or BINARY, got %q", c.OCR.ImageType))
	}
	switch strings.ToLower(c.Storage.Provider) {
	case "minio":
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.BucketName == "" {
			errs = append(errs, errors.New("minio storage needs an endpoint and a bucket"))
		}
	case "s3":
		if c.Storage.S3.BucketName == "" {
			errs = append(errs, errors.New("s3 storage needs a bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage provider %q", c.Storage.Provider))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
