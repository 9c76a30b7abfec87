package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/minos-eval/minos/pkg/domain"
	"github.com/minos-eval/minos/pkg/evaluator"
)

// EnvPrefix prefixes every environment override, e.g. MINOS_ENGINE_ROLLING_WINDOW.
const EnvPrefix = "MINOS"

type Config struct {
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Schema   SchemaConfig   `mapstructure:"schema" yaml:"schema"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	Breaker  BreakerConfig  `mapstructure:"breaker" yaml:"breaker"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Gates    GatesConfig    `mapstructure:"gates" yaml:"gates"`
	Audit    AuditConfig    `mapstructure:"audit" yaml:"audit"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json console"`
}

type EngineConfig struct {
	RollingWindow  int      `mapstructure:"rolling_window" yaml:"rolling_window" validate:"gt=0"`
	ErrorWindow    int      `mapstructure:"error_window" yaml:"error_window" validate:"gt=0"`
	TopK           int      `mapstructure:"top_k" yaml:"top_k" validate:"gte=0"`
	LowerQuantile  float64  `mapstructure:"lower_quantile" yaml:"lower_quantile" validate:"gt=0,lt=1"`
	UpperQuantile  float64  `mapstructure:"upper_quantile" yaml:"upper_quantile" validate:"gtfield=LowerQuantile,lt=1"`
	TargetCoverage float64  `mapstructure:"target_coverage" yaml:"target_coverage" validate:"gte=0,lte=1"`
	Reference      string   `mapstructure:"reference" yaml:"reference"`
	Candidates     []string `mapstructure:"candidates" yaml:"candidates"`
}

// SchemaConfig names the CSV columns of the input files.
type SchemaConfig struct {
	Timestamp  string   `mapstructure:"timestamp" yaml:"timestamp" validate:"required"`
	Actual     string   `mapstructure:"actual" yaml:"actual" validate:"required"`
	Median     string   `mapstructure:"median" yaml:"median" validate:"required"`
	Lower      string   `mapstructure:"lower" yaml:"lower" validate:"required"`
	Upper      string   `mapstructure:"upper" yaml:"upper" validate:"required"`
	Feature    string   `mapstructure:"feature" yaml:"feature" validate:"required"`
	Importance string   `mapstructure:"importance" yaml:"importance" validate:"required"`
	Baselines  []string `mapstructure:"baselines" yaml:"baselines"`
}

type StoreConfig struct {
	Kind         string `mapstructure:"kind" yaml:"kind" validate:"oneof=local s3"`
	Root         string `mapstructure:"root" yaml:"root" validate:"required_if=Kind local"`
	Bucket       string `mapstructure:"bucket" yaml:"bucket" validate:"required_if=Kind s3"`
	Endpoint     string `mapstructure:"endpoint" yaml:"endpoint" validate:"omitempty,url"`
	Region       string `mapstructure:"region" yaml:"region"`
	AccessKey    string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey    string `mapstructure:"secret_key" yaml:"secret_key"`
	UsePathStyle bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr" validate:"required"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db" validate:"gte=0"`
}

type PostgresConfig struct {
	DSN          string        `mapstructure:"dsn" yaml:"dsn"`
	Table        string        `mapstructure:"table" yaml:"table" validate:"identifier"`
	QueryTimeout time.Duration `mapstructure:"query_timeout" yaml:"query_timeout" validate:"gt=0"`
}

// BreakerConfig tunes the circuit breaker around structured sources.
type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures" yaml:"max_failures" validate:"gt=0"`
	OpenTimeout time.Duration `mapstructure:"open_timeout" yaml:"open_timeout" validate:"gt=0"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
	RateLimit       float64       `mapstructure:"rate_limit" yaml:"rate_limit" validate:"gt=0"`
	RateBurst       int           `mapstructure:"rate_burst" yaml:"rate_burst" validate:"gt=0"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes" validate:"gt=0"`
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`
}

type GatesConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// AuditConfig enables the tamper-evident run ledger when Path is set.
type AuditConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	Key  string `mapstructure:"key" yaml:"key" validate:"required_with=Path"`
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return identifierPattern.MatchString(fl.Field().String())
	})
}

// IsIdentifier reports whether s is a plain or schema-qualified SQL identifier.
func IsIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// SetDefaults registers every key with its default so that environment overrides apply.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	d := evaluator.DefaultOptions()
	v.SetDefault("engine.rolling_window", d.RollingWindow)
	v.SetDefault("engine.error_window", d.ErrorWindow)
	v.SetDefault("engine.top_k", d.TopK)
	v.SetDefault("engine.lower_quantile", d.LowerQuantile)
	v.SetDefault("engine.upper_quantile", d.UpperQuantile)
	v.SetDefault("engine.target_coverage", 0.0)
	v.SetDefault("engine.reference", "")
	v.SetDefault("engine.candidates", []string{})

	v.SetDefault("schema.timestamp", "Date")
	v.SetDefault("schema.actual", "y_true")
	v.SetDefault("schema.median", "q50")
	v.SetDefault("schema.lower", "q10")
	v.SetDefault("schema.upper", "q90")
	v.SetDefault("schema.feature", "Feature")
	v.SetDefault("schema.importance", "Importance")
	v.SetDefault("schema.baselines", []string{})

	v.SetDefault("store.kind", "local")
	v.SetDefault("store.root", "./data")
	v.SetDefault("store.bucket", "")
	v.SetDefault("store.endpoint", "")
	v.SetDefault("store.region", "us-east-1")
	v.SetDefault("store.access_key", "")
	v.SetDefault("store.secret_key", "")
	v.SetDefault("store.use_path_style", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.table", "observations")
	v.SetDefault("postgres.query_timeout", 30*time.Second)

	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.open_timeout", 30*time.Second)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("server.max_upload_bytes", int64(32<<20))
	v.SetDefault("server.api_key", "")

	v.SetDefault("gates.file", "")

	v.SetDefault("audit.path", "")
	v.SetDefault("audit.key", "")
}

// New returns a viper instance with defaults and MINOS_* environment overrides.
func New() *viper.Viper {
	v := viper.New()
	Bind(v)
	return v
}

// Bind installs defaults and environment overrides on v.
func Bind(v *viper.Viper) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.api_key", "MINOS_SERVER_API_KEY", "MINOS_API_KEY")
}

// Load reads the optional YAML file at path over the defaults and environment.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s: %w", strings.Join(msgs, "; "), domain.ErrInvalidParameter)
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// EngineOptions converts the engine section.
func (c *Config) EngineOptions() evaluator.Options {
	opts := evaluator.Options{
		RollingWindow:  c.Engine.RollingWindow,
		ErrorWindow:    c.Engine.ErrorWindow,
		TopK:           c.Engine.TopK,
		LowerQuantile:  c.Engine.LowerQuantile,
		UpperQuantile:  c.Engine.UpperQuantile,
		TargetCoverage: c.Engine.TargetCoverage,
		Reference:      domain.ColumnID(c.Engine.Reference),
	}
	for _, name := range c.Engine.Candidates {
		opts.Candidates = append(opts.Candidates, domain.ColumnID(name))
	}
	return opts
}
