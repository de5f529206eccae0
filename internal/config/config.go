package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrMissingDatabaseURL is returned by Validate when DATABASE_URL is not set.
var ErrMissingDatabaseURL = goerr.New("DATABASE_URL environment variable is required")

type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	POS         POSConfig         `yaml:"pos"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Detection   DetectionConfig   `yaml:"detection"`
	Prediction  PredictionConfig  `yaml:"prediction"`
	Paths       PathsConfig       `yaml:"paths"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Web         WebConfig         `yaml:"web"`
	Notify      NotifyConfig      `yaml:"notify"`
	Log         LogConfig         `yaml:"log"`
}

type DatabaseConfig struct {
	URL          string `yaml:"-"`              // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns"` // Maximum open connections (default 25)
	MaxIdleConns int    `yaml:"max_idle_conns"` // Maximum idle connections (default 5)
}

// POSConfig points at the point-of-sale MariaDB used by import-purchases.
type POSConfig struct {
	DatabaseURL string `yaml:"-"` // e.g. pos:pos@tcp(mariadb:3306)/pos
}

type RecognitionConfig struct {
	Threshold      float64       `yaml:"threshold"`       // strict upper bound on euclidean distance
	Cooldown       time.Duration `yaml:"cooldown"`        // server-side dedup window
	ClientCooldown time.Duration `yaml:"client_cooldown"` // recognizer-side dedup window
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	IndexThreshold int           `yaml:"index_threshold"` // gallery size above which HNSW is used
	PollInterval   time.Duration `yaml:"poll_interval"`
}

type DetectionConfig struct {
	Workers     int           `yaml:"workers"`
	QueueSize   int           `yaml:"queue_size"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
	RecentLimit int           `yaml:"recent_limit"`
}

type PredictionConfig struct {
	ModelPath string `yaml:"model_path"`
}

type PathsConfig struct {
	CaptureDir      string `yaml:"capture_dir"`       // where the camera drops captured frames
	StaticImagesDir string `yaml:"static_images_dir"` // served under /static/images/
	FaceDataDir     string `yaml:"face_data_dir"`     // one folder per enrolled customer
}

type EmbeddingConfig struct {
	URL string `yaml:"url"` // defaults to http://localhost:8000
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"-"`
}

type NotifyConfig struct {
	URL string `yaml:"url"` // customer_detected endpoint the recognizer posts to
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float. Returns the default on unset or invalid input.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration accepts either a Go duration ("90s") or a bare number of seconds ("120").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Defaults returns the embedded defaults without any environment overlay.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// embedded file, can only fail on a broken build
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load returns the embedded defaults overlaid with environment variables.
func Load() *Config {
	d := Defaults()

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
		},
		POS: POSConfig{
			DatabaseURL: os.Getenv("POS_DATABASE_URL"),
		},
		Recognition: RecognitionConfig{
			Threshold:      envFloat("RECOGNITION_THRESHOLD", d.Recognition.Threshold),
			Cooldown:       envDuration("DETECTION_COOLDOWN", d.Recognition.Cooldown),
			ClientCooldown: envDuration("CLIENT_COOLDOWN", d.Recognition.ClientCooldown),
			SweepInterval:  envDuration("COOLDOWN_SWEEP_INTERVAL", d.Recognition.SweepInterval),
			IndexThreshold: envInt("GALLERY_INDEX_THRESHOLD", d.Recognition.IndexThreshold),
			PollInterval:   envDuration("CAPTURE_POLL_INTERVAL", d.Recognition.PollInterval),
		},
		Detection: DetectionConfig{
			Workers:     envInt("DETECTION_WORKERS", d.Detection.Workers),
			QueueSize:   envInt("DETECTION_QUEUE_SIZE", d.Detection.QueueSize),
			TaskTimeout: envDuration("DETECTION_TASK_TIMEOUT", d.Detection.TaskTimeout),
			RecentLimit: envInt("RECENT_LIMIT", d.Detection.RecentLimit),
		},
		Prediction: PredictionConfig{
			ModelPath: envString("MODEL_PATH", d.Prediction.ModelPath),
		},
		Paths: PathsConfig{
			CaptureDir:      envString("CAPTURE_DIR", d.Paths.CaptureDir),
			StaticImagesDir: envString("STATIC_IMAGES_DIR", d.Paths.StaticImagesDir),
			FaceDataDir:     envString("FACE_DATA_DIR", d.Paths.FaceDataDir),
		},
		Embedding: EmbeddingConfig{
			URL: envString("EMBEDDING_URL", d.Embedding.URL),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", d.Web.Host),
			Port:           envInt("WEB_PORT", d.Web.Port),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Notify: NotifyConfig{
			URL: envString("NOTIFY_URL", d.Notify.URL),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", d.Log.Level),
		},
	}
}

// Validate reports settings without which the server cannot start.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return ErrMissingDatabaseURL
	}
	return nil
}
