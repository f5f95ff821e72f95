package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/dvloznov/mail-ledger/internal/apperrors"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendSQLite   = "sqlite"
	BackendBigQuery = "bigquery"

	RendererLocal  = "local"
	RendererGemini = "gemini"
	RendererAuto   = "auto"
)

type Config struct {
	App     `yaml:"app"`
	Log     `yaml:"log"`
	Retry   `yaml:"retry"`
	Gmail   `yaml:"gmail"`
	Ledger  `yaml:"ledger"`
	PDF     `yaml:"pdf"`
	Archive `yaml:"archive"`
}

type App struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"APP_POLL_INTERVAL" env-default:"5m"`
	HTTPAddr     string        `yaml:"http_addr" env:"APP_HTTP_ADDR" env-default:":8080"`
	APIToken     string        `yaml:"api_token" env:"APP_API_TOKEN"`
	RunHistory   int           `yaml:"run_history" env:"APP_RUN_HISTORY" env-default:"500"`
	// Timezone is the IANA zone used for the ledger's received date. Empty means UTC.
	Timezone string `yaml:"timezone" env:"APP_TIMEZONE" env-default:"America/Mexico_City"`
}

// Location loads App.Timezone.
func (a App) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: app.timezone: %w", apperrors.ErrInvalidConfig, err)
	}
	return loc, nil
}

type Log struct {
	Level      string   `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	FormatJSON bool     `yaml:"format_json" env:"LOG_FORMAT_JSON"`
	Rotation   Rotation `yaml:"rotation"`
}

type Rotation struct {
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSize    int    `yaml:"max_size" env:"LOG_MAX_SIZE" env-default:"50"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"3"`
	MaxAge     int    `yaml:"max_age" env:"LOG_MAX_AGE" env-default:"28"`
	Compress   bool   `yaml:"compress" env:"LOG_COMPRESS"`
}

type Retry struct {
	MaxAttempts int           `yaml:"max_attempts" env:"RETRY_MAX_ATTEMPTS" env-default:"3"`
	Delay       time.Duration `yaml:"delay" env:"RETRY_DELAY" env-default:"2s"`
}

type Gmail struct {
	CredentialsFile string `yaml:"credentials_file" env:"GMAIL_CREDENTIALS_FILE" env-default:"credentials.json"`
	TokenFile       string `yaml:"token_file" env:"GMAIL_TOKEN_FILE" env-default:"token.json"`
	User            string `yaml:"user" env:"GMAIL_USER" env-default:"me"`
	Query           string `yaml:"query" env:"GMAIL_QUERY" env-default:"filename:pdf"`
	ProcessedLabel  string `yaml:"processed_label" env:"GMAIL_PROCESSED_LABEL" env-default:"ledger-procesado"`
	MaxResults      int64  `yaml:"max_results" env:"GMAIL_MAX_RESULTS" env-default:"50"`
	LinkTemplate    string `yaml:"link_template" env:"GMAIL_LINK_TEMPLATE" env-default:"https://mail.google.com/mail/u/0/#all/{message_id}"`
}

type Ledger struct {
	Backend  string   `yaml:"backend" env:"LEDGER_BACKEND" env-default:"sqlite"`
	SQLite   SQLite   `yaml:"sqlite"`
	BigQuery BigQuery `yaml:"bigquery"`
}

type SQLite struct {
	Path      string `yaml:"path" env:"LEDGER_SQLITE_PATH" env-default:"ledger.db"`
	BackupDir string `yaml:"backup_dir" env:"LEDGER_SQLITE_BACKUP_DIR" env-default:"backups"`
}

type BigQuery struct {
	ProjectID string `yaml:"project_id" env:"LEDGER_BQ_PROJECT_ID"`
	Dataset   string `yaml:"dataset" env:"LEDGER_BQ_DATASET" env-default:"requests"`
	Table     string `yaml:"table" env:"LEDGER_BQ_TABLE" env-default:"ledger"`
}

type PDF struct {
	Renderer string `yaml:"renderer" env:"PDF_RENDERER" env-default:"auto"`
	Gemini   Gemini `yaml:"gemini"`
}

type Gemini struct {
	Project  string `yaml:"project" env:"GOOGLE_CLOUD_PROJECT"`
	Location string `yaml:"location" env:"GOOGLE_CLOUD_LOCATION" env-default:"us-central1"`
	Model    string `yaml:"model" env:"PDF_GEMINI_MODEL" env-default:"gemini-2.5-flash"`
}

type Archive struct {
	Bucket string `yaml:"bucket" env:"ARCHIVE_BUCKET"`
	Prefix string `yaml:"prefix" env:"ARCHIVE_PREFIX" env-default:"attachments"`
}

// Load reads configuration from an optional .env file, then the YAML file at
// path (when non-empty), then the environment. Environment values override
// file values.
func Load(path string) (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("Load: reading %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("Load: reading env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Path resolves the config path from a flag value, falling back to CONFIG_PATH.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("CONFIG_PATH")
}

// Validate checks the values that constructors rely on.
func (c *Config) Validate() error {
	if c.App.PollInterval <= 0 {
		return fmt.Errorf("%w: app.poll_interval must be positive", apperrors.ErrInvalidConfig)
	}
	if _, err := c.App.Location(); err != nil {
		return err
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry.max_attempts must be >= 1, got %d", apperrors.ErrInvalidConfig, c.Retry.MaxAttempts)
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("%w: retry.delay must not be negative", apperrors.ErrInvalidConfig)
	}

	switch c.Ledger.Backend {
	case BackendSQLite:
		if c.Ledger.SQLite.Path == "" {
			return fmt.Errorf("%w: ledger.sqlite.path is required", apperrors.ErrInvalidConfig)
		}
	case BackendBigQuery:
		if c.Ledger.BigQuery.ProjectID == "" || c.Ledger.BigQuery.Dataset == "" || c.Ledger.BigQuery.Table == "" {
			return fmt.Errorf("%w: ledger.bigquery requires project_id, dataset and table", apperrors.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown ledger backend %q", apperrors.ErrInvalidConfig, c.Ledger.Backend)
	}

	switch c.PDF.Renderer {
	case RendererLocal, RendererGemini, RendererAuto:
	default:
		return fmt.Errorf("%w: unknown pdf renderer %q", apperrors.ErrInvalidConfig, c.PDF.Renderer)
	}

	return nil
}

// Print writes the effective configuration as YAML to stdout. Secrets are masked.
func Print(cfg *Config) error {
	masked := *cfg
	if masked.App.APIToken != "" {
		masked.App.APIToken = "********"
	}

	data, err := yaml.Marshal(&masked)
	if err != nil {
		return err
	}

	fmt.Println(string(data))
	return nil
}
