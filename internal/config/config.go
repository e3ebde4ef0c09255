package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr  string
	WorkDir     string
	Concurrency int
	QueueSize   int
	DBPath      string

	MaxUploadMB int64

	// ArtifactTTL is how long a completed job's output file stays on disk.
	// The job record itself survives until JobTTL so status polls keep
	// resolving after the file is gone.
	ArtifactTTL     time.Duration
	JobTTL          time.Duration
	CleanupInterval time.Duration

	SofficePath   string
	ChromePath    string
	TesseractPath string
	OCRLanguage   string

	SofficeTimeout time.Duration
	ChromeTimeout  time.Duration
	OCRTimeout     time.Duration

	RenderDPI   float64
	JPEGQuality int

	DetectSamplePages    int
	DetectScannedTextMax int
	DetectDigitalTextMin int

	RateLimitRPS   float64
	RateLimitBurst int

	CORSOrigins []string
}

func Load() (*Config, error) {
	// Optional; absent .env files are not an error.
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:    getEnv("CONVERTD_LISTEN_ADDR", ":8080"),
		WorkDir:       getEnv("CONVERTD_WORK_DIR", "convertd-data"),
		DBPath:        getEnv("CONVERTD_DB_PATH", ""),
		SofficePath:   getEnv("CONVERTD_SOFFICE_PATH", "soffice"),
		ChromePath:    getEnv("CONVERTD_CHROME_PATH", ""),
		TesseractPath: getEnv("CONVERTD_TESSERACT_PATH", "tesseract"),
		OCRLanguage:   getEnv("CONVERTD_OCR_LANGUAGE", "eng"),
	}

	var err error
	cfg.Concurrency, err = getEnvInt("CONVERTD_CONCURRENCY", 2)
	if err != nil {
		return nil, fmt.Errorf("CONVERTD_CONCURRENCY: %w", err)
	}
	if cfg.Concurrency < 1 {
		return nil, errors.New("CONVERTD_CONCURRENCY must be > 0")
	}

	cfg.QueueSize, err = getEnvInt("CONVERTD_QUEUE_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("CONVERTD_QUEUE_SIZE: %w", err)
	}
	if cfg.QueueSize < 1 {
		return nil, errors.New("CONVERTD_QUEUE_SIZE must be > 0")
	}

	maxUpload, err := getEnvInt("CONVERTD_MAX_UPLOAD_MB", 50)
	if err != nil {
		return nil, fmt.Errorf("CONVERTD_MAX_UPLOAD_MB: %w", err)
	}
	if maxUpload < 1 {
		return nil, errors.New("CONVERTD_MAX_UPLOAD_MB must be > 0")
	}
	cfg.MaxUploadMB = int64(maxUpload)

	cfg.ArtifactTTL, err = getEnvSeconds("CONVERTD_ARTIFACT_TTL_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	jobTTLHours, err := getEnvInt("CONVERTD_JOB_TTL_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("CONVERTD_JOB_TTL_HOURS: %w", err)
	}
	cfg.JobTTL = time.Duration(jobTTLHours) * time.Hour
	cleanupMin, err := getEnvInt("CONVERTD_CLEANUP_INTERVAL_MINUTES", 30)
	if err != nil {
		return nil, fmt.Errorf("CONVERTD_CLEANUP_INTERVAL_MINUTES: %w", err)
	}
	cfg.CleanupInterval = time.Duration(cleanupMin) * time.Minute

	cfg.SofficeTimeout, err = getEnvSeconds("CONVERTD_SOFFICE_TIMEOUT_SECONDS", 120)
	if err != nil {
		return nil, err
	}
	cfg.ChromeTimeout, err = getEnvSeconds("CONVERTD_CHROME_TIMEOUT_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	cfg.OCRTimeout, err = getEnvSeconds("CONVERTD_OCR_TIMEOUT_SECONDS", 120)
	if err != nil {
		return nil, err
	}

	dpi, err := getEnvInt("CONVERTD_RENDER_DPI", 150)
	if err != nil {
		return nil, fmt.Errorf("CONVERTD_RENDER_DPI: %w", err)
	}
	cfg.RenderDPI = float64(dpi)
	cfg.JPEGQuality, err = getEnvInt("CONVERTD_JPEG_QUALITY", 85)
	if err != nil {
		return nil, fmt.Errorf("CONVERTD_JPEG_QUALITY: %w", err)
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		return nil, errors.New("CONVERTD_JPEG_QUALITY must be between 1 and 100")
	}

	cfg.DetectSamplePages, err = getEnvInt("CONVERTD_DETECT_SAMPLE_PAGES", 3)
	if err != nil {
		return nil, fmt.Errorf("CONVERTD_DETECT_SAMPLE_PAGES: %w", err)
	}
	cfg.DetectScannedTextMax, err = getEnvInt("CONVERTD_DETECT_SCANNED_TEXT_MAX", 100)
	if err != nil {
		return nil, fmt.Errorf("CONVERTD_DETECT_SCANNED_TEXT_MAX: %w", err)
	}
	cfg.DetectDigitalTextMin, err = getEnvInt("CONVERTD_DETECT_DIGITAL_TEXT_MIN", 500)
	if err != nil {
		return nil, fmt.Errorf("CONVERTD_DETECT_DIGITAL_TEXT_MIN: %w", err)
	}

	rps, err := getEnvInt("CONVERTD_RATE_LIMIT_RPS", 5)
	if err != nil {
		return nil, fmt.Errorf("CONVERTD_RATE_LIMIT_RPS: %w", err)
	}
	cfg.RateLimitRPS = float64(rps)
	cfg.RateLimitBurst, err = getEnvInt("CONVERTD_RATE_LIMIT_BURST", 10)
	if err != nil {
		return nil, fmt.Errorf("CONVERTD_RATE_LIMIT_BURST: %w", err)
	}

	for _, o := range strings.Split(getEnv("CONVERTD_CORS_ORIGINS", "*"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	return cfg, nil
}

// UploadsDir is where incoming files are staged before conversion.
func (c *Config) UploadsDir() string { return filepath.Join(c.WorkDir, "uploads") }

// OutputsDir is where conversion artifacts live until their TTL expires.
func (c *Config) OutputsDir() string { return filepath.Join(c.WorkDir, "outputs") }

// EnsureDirs creates the working directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.UploadsDir(), c.OutputsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getEnvSeconds(key string, fallback int) (time.Duration, error) {
	n, err := getEnvInt(key, fallback)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must be >= 0", key)
	}
	return time.Duration(n) * time.Second, nil
}
