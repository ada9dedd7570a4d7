package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Source     SourceConfig     `yaml:"source" mapstructure:"source"`
	Reconcile  ReconcileConfig  `yaml:"reconcile" mapstructure:"reconcile"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Profile    ProfileConfig    `yaml:"profile" mapstructure:"profile"`
	Quote      QuoteConfig      `yaml:"quote" mapstructure:"quote"`
	Fetcher    FetcherConfig    `yaml:"fetcher" mapstructure:"fetcher"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver         string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL    string `yaml:"database_url" mapstructure:"database_url"`
	Path           string `yaml:"path" mapstructure:"path"`
	ConflictPolicy string `yaml:"conflict_policy" mapstructure:"conflict_policy"`
}

// SourceConfig configures the announcement list providers.
type SourceConfig struct {
	Primary          string          `yaml:"primary" mapstructure:"primary"`
	Secondary        string          `yaml:"secondary" mapstructure:"secondary"`
	TimeoutSecs      int             `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BreakerThreshold int             `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	Cninfo           CninfoConfig    `yaml:"cninfo" mapstructure:"cninfo"`
	Eastmoney        EastmoneyConfig `yaml:"eastmoney" mapstructure:"eastmoney"`
}

// CninfoConfig configures the cninfo announcement query.
type CninfoConfig struct {
	QueryURL    string `yaml:"query_url" mapstructure:"query_url"`
	StaticURL   string `yaml:"static_url" mapstructure:"static_url"`
	PageSize    int    `yaml:"page_size" mapstructure:"page_size"`
	MaxPages    int    `yaml:"max_pages" mapstructure:"max_pages"`
	PageDelayMs int    `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
}

// EastmoneyConfig configures the eastmoney announcement API.
type EastmoneyConfig struct {
	ListURL     string `yaml:"list_url" mapstructure:"list_url"`
	DocURL      string `yaml:"doc_url" mapstructure:"doc_url"`
	PageSize    int    `yaml:"page_size" mapstructure:"page_size"`
	MaxPages    int    `yaml:"max_pages" mapstructure:"max_pages"`
	PageDelayMs int    `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
}

// ReconcileConfig configures fuzzy column matching.
type ReconcileConfig struct {
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
}

// ExtractConfig configures deal-detail extraction from filed documents.
type ExtractConfig struct {
	Strategy      string `yaml:"strategy" mapstructure:"strategy"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxPages      int    `yaml:"max_pages" mapstructure:"max_pages"`
	MaxChars      int    `yaml:"max_chars" mapstructure:"max_chars"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	TempDir       string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ProfileConfig configures company profile lookups.
type ProfileConfig struct {
	EastmoneyURL string `yaml:"eastmoney_url" mapstructure:"eastmoney_url"`
	SinaURL      string `yaml:"sina_url" mapstructure:"sina_url"`
	DelayMs      int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// QuoteConfig configures the live quote lookup.
type QuoteConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FetcherConfig configures the shared HTTP fetcher.
type FetcherConfig struct {
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// KeywordsConfig is the inline keyword policy.
type KeywordsConfig struct {
	Any      []string `yaml:"any" mapstructure:"any"`
	Core     []string `yaml:"core" mapstructure:"core"`
	Modifier []string `yaml:"modifier" mapstructure:"modifier"`
}

// PipelineConfig configures the two-stage ingestion pipeline.
type PipelineConfig struct {
	BatchSize         int            `yaml:"batch_size" mapstructure:"batch_size"`
	MaxBatches        int            `yaml:"max_batches" mapstructure:"max_batches"`
	EnrichWorkers     int            `yaml:"enrich_workers" mapstructure:"enrich_workers"`
	EnrichDelayMs     int            `yaml:"enrich_delay_ms" mapstructure:"enrich_delay_ms"`
	DayDelayMs        int            `yaml:"day_delay_ms" mapstructure:"day_delay_ms"`
	BackfillDays      int            `yaml:"backfill_days" mapstructure:"backfill_days"`
	MaxEnrichAttempts int            `yaml:"max_enrich_attempts" mapstructure:"max_enrich_attempts"`
	KeywordsFile      string         `yaml:"keywords_file" mapstructure:"keywords_file"`
	Keywords          KeywordsConfig `yaml:"keywords" mapstructure:"keywords"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures run health checks and webhook alerts.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	BacklogThreshold     int     `yaml:"backlog_threshold" mapstructure:"backlog_threshold"`
	StaleRunHours        int     `yaml:"stale_run_hours" mapstructure:"stale_run_hours"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MNA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "mna.db")
	v.SetDefault("store.conflict_policy", "backfill_missing")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("source.primary", "cninfo")
	v.SetDefault("source.secondary", "eastmoney")
	v.SetDefault("source.timeout_secs", 20)
	v.SetDefault("source.breaker_threshold", 5)
	v.SetDefault("source.cninfo.query_url", "https://www.cninfo.com.cn/new/hisAnnouncement/query")
	v.SetDefault("source.cninfo.static_url", "https://static.cninfo.com.cn/")
	v.SetDefault("source.cninfo.page_size", 30)
	v.SetDefault("source.cninfo.max_pages", 200)
	v.SetDefault("source.cninfo.page_delay_ms", 300)
	v.SetDefault("source.eastmoney.list_url", "https://np-anotice-stock.eastmoney.com/api/security/ann")
	v.SetDefault("source.eastmoney.doc_url", "https://pdf.dfcfw.com/pdf/")
	v.SetDefault("source.eastmoney.page_size", 100)
	v.SetDefault("source.eastmoney.max_pages", 100)
	v.SetDefault("source.eastmoney.page_delay_ms", 300)
	v.SetDefault("reconcile.threshold", 82.0)
	v.SetDefault("extract.strategy", "pattern")
	v.SetDefault("extract.timeout_secs", 30)
	v.SetDefault("extract.max_pages", 10)
	v.SetDefault("extract.max_chars", 8000)
	v.SetDefault("extract.pdftotext_path", "pdftotext")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("profile.eastmoney_url", "https://emweb.securities.eastmoney.com/PC_HSF10/CompanySurvey/PageAjax")
	v.SetDefault("profile.sina_url", "https://vip.stock.finance.sina.com.cn/corp/go.php/vCI_CorpInfo/stockid/")
	v.SetDefault("profile.delay_ms", 500)
	v.SetDefault("profile.timeout_secs", 10)
	v.SetDefault("quote.base_url", "https://push2.eastmoney.com/api/qt/stock/get")
	v.SetDefault("fetcher.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("fetcher.requests_per_second", 2.0)
	v.SetDefault("fetcher.max_retries", 2)
	v.SetDefault("pipeline.batch_size", 20)
	v.SetDefault("pipeline.max_batches", 1)
	v.SetDefault("pipeline.enrich_workers", 1)
	v.SetDefault("pipeline.enrich_delay_ms", 1000)
	v.SetDefault("pipeline.day_delay_ms", 1000)
	v.SetDefault("pipeline.backfill_days", 270)
	v.SetDefault("pipeline.max_enrich_attempts", 3)
	v.SetDefault("pipeline.keywords.core", []string{"重大资产重组", "发行股份购买资产", "购买资产", "重组"})
	v.SetDefault("pipeline.keywords.modifier", []string{"预案", "草案"})

	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.backlog_threshold", 500)
	v.SetDefault("monitoring.stale_run_hours", 36)
	v.SetDefault("monitoring.lookback_window_hours", 72)
	v.SetDefault("monitoring.check_interval_secs", 300)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields required by the given command mode.
// Modes: "pipeline" (ingest/enrich), "serve", "lookup" (profile/quote).
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "pipeline":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validatePipeline()...)
		errs = append(errs, c.validateExtract()...)
	case "serve":
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "migrate":
		errs = append(errs, c.validateStore()...)
	case "lookup":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Reconcile.Threshold < 0 || c.Reconcile.Threshold > 100 {
		errs = append(errs, "reconcile.threshold must be between 0 and 100")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required for sqlite")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	switch c.Store.ConflictPolicy {
	case "do_nothing", "backfill_missing":
	default:
		errs = append(errs, "store.conflict_policy must be do_nothing or backfill_missing")
	}
	return errs
}

func (c *Config) validatePipeline() []string {
	var errs []string
	p := c.Pipeline
	if p.BatchSize < 1 {
		errs = append(errs, "pipeline.batch_size must be >= 1")
	}
	if p.MaxBatches < 1 {
		errs = append(errs, "pipeline.max_batches must be >= 1")
	}
	if p.EnrichWorkers < 1 || p.EnrichWorkers > 16 {
		errs = append(errs, "pipeline.enrich_workers must be between 1 and 16")
	}
	if p.MaxEnrichAttempts < 1 {
		errs = append(errs, "pipeline.max_enrich_attempts must be >= 1")
	}
	if p.BackfillDays < 1 {
		errs = append(errs, "pipeline.backfill_days must be >= 1")
	}
	if p.EnrichDelayMs < 0 || p.DayDelayMs < 0 {
		errs = append(errs, "pipeline delays must be >= 0")
	}
	return errs
}

// validateExtract checks shape only. A missing model key surfaces per row as
// the unavailable outcome.
func (c *Config) validateExtract() []string {
	var errs []string
	switch c.Extract.Strategy {
	case "pattern", "anthropic", "gemini":
	default:
		errs = append(errs, "extract.strategy must be pattern, anthropic or gemini")
	}
	if c.Extract.MaxPages < 1 {
		errs = append(errs, "extract.max_pages must be >= 1")
	}
	if c.Extract.TimeoutSecs < 1 {
		errs = append(errs, "extract.timeout_secs must be >= 1")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
