package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig holds runtime startup configuration loaded from YAML and the environment.
type AppConfig struct {
	Port            int
	Env             string
	AllowedOrigins  []string
	Paths           RuntimePathsConfig
	Database        DatabaseRuntimeConfig
	Redis           RedisRuntimeConfig
	DSN             string
	RedisURL        string
	CredentialStore CredentialStoreConfig
	Session         SessionConfig
	Upstream        UpstreamConfig
	Twitter         TwitterConfig
	Kaito           KaitoConfig
	AI              AIConfig
	AutoComment     AutoCommentConfig

	baseDir string
}

type DatabaseRuntimeConfig struct {
	DSN      string            `yaml:"dsn"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Name     string            `yaml:"name"`
	Charset  string            `yaml:"charset"`
	Params   map[string]string `yaml:"params"`
}

type RedisRuntimeConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
}

type RuntimePathsConfig struct {
	Logs string `yaml:"logs"`
}

type CredentialStoreConfig struct {
	Driver             string `yaml:"driver"`
	SupabaseURL        string `yaml:"supabase_url"`
	SupabaseServiceKey string `yaml:"supabase_service_key"`
}

type SessionConfig struct {
	TTLHours int `yaml:"ttl_hours"`
	// AutoVerify marks new accounts verified at registration. There is no
	// e-mail verification flow in this service.
	AutoVerify bool `yaml:"auto_verify"`
}

type UpstreamConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxRetries     int `yaml:"max_retries"`
}

type TwitterConfig struct {
	APIBaseURL   string `yaml:"api_base_url"`
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`
	BearerToken  string `yaml:"bearer_token"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	FrontendURL  string `yaml:"frontend_url"`
	StateSecret  string `yaml:"state_secret"`
}

type KaitoConfig struct {
	BaseURL string `yaml:"base_url"`
}

// AIProvider is one configured completion backend.
type AIProvider struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Type         string `yaml:"type"` // openai-compatible | openai | anthropic
	APIKey       string `yaml:"api_key"`
	Endpoint     string `yaml:"endpoint"`
	DefaultModel string `yaml:"default_model"`
	Enabled      bool   `yaml:"enabled"`
}

// AIModelAssignment picks the provider and model used for comment generation.
type AIModelAssignment struct {
	ProviderID string `yaml:"provider_id"`
	Model      string `yaml:"model"`
}

type AIConfig struct {
	Providers    []AIProvider      `yaml:"providers"`
	CommentModel AIModelAssignment `yaml:"comment_model"`
}

type AutoCommentConfig struct {
	DefaultDelaySeconds int `yaml:"default_delay_seconds"`
	MaxBatch            int `yaml:"max_batch"`
}

type rawAppConfig struct {
	Port            int                   `yaml:"port"`
	Env             string                `yaml:"env"`
	AllowedOrigins  []string              `yaml:"allowed_origins"`
	Paths           RuntimePathsConfig    `yaml:"paths"`
	Database        DatabaseRuntimeConfig `yaml:"database"`
	Redis           rawRedisConfig        `yaml:"redis"`
	CredentialStore CredentialStoreConfig `yaml:"credential_store"`
	Session         rawSessionConfig      `yaml:"session"`
	Upstream        rawUpstreamConfig     `yaml:"upstream"`
	Twitter         TwitterConfig         `yaml:"twitter"`
	Kaito           KaitoConfig           `yaml:"kaito"`
	AI              AIConfig              `yaml:"ai"`
	AutoComment     rawAutoCommentConfig  `yaml:"autocomment"`
}

type rawRedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       *int   `yaml:"db"`
	TLS      *bool  `yaml:"tls"`
}

type rawSessionConfig struct {
	TTLHours   int   `yaml:"ttl_hours"`
	AutoVerify *bool `yaml:"auto_verify"`
}

type rawUpstreamConfig struct {
	TimeoutSeconds int  `yaml:"timeout_seconds"`
	MaxRetries     *int `yaml:"max_retries"`
}

type rawAutoCommentConfig struct {
	DefaultDelaySeconds *int `yaml:"default_delay_seconds"`
	MaxBatch            int  `yaml:"max_batch"`
}

// Load reads the YAML file at configPath, then applies .env and environment
// overrides. A missing file is only tolerated for the default path.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := defaultAppConfig()

	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		raw := rawAppConfig{}
		if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
		applyRawAppConfig(&cfg, raw)
		cfg.baseDir = configDir(path, true)
	case errors.Is(err, os.ErrNotExist) && path == DefaultConfigPath:
	default:
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	// Variables already set in the process environment win over .env.
	_ = godotenv.Load()
	applyEnv(&cfg, os.Getenv)

	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Host:     defaultDBHost,
			Port:     defaultDBPort,
			User:     defaultDBUser,
			Password: defaultDBPassword,
			Name:     defaultDBName,
			Charset:  defaultDBCharset,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		CredentialStore: CredentialStoreConfig{Driver: defaultStoreDriver},
		Session:         SessionConfig{TTLHours: defaultSessionTTLHours},
		Upstream: UpstreamConfig{
			TimeoutSeconds: defaultUpstreamTimeoutSecs,
			MaxRetries:     defaultUpstreamMaxRetries,
		},
		Twitter: TwitterConfig{
			APIBaseURL: defaultTwitterAPIBaseURL,
			AuthURL:    defaultTwitterAuthURL,
			TokenURL:   defaultTwitterTokenURL,
		},
		Kaito: KaitoConfig{BaseURL: defaultKaitoBaseURL},
		AI: AIConfig{
			Providers: []AIProvider{{
				ID:           "default",
				Name:         "akbxr",
				Type:         "openai-compatible",
				Endpoint:     DefaultAIEndpoint,
				DefaultModel: defaultAIModel,
				Enabled:      true,
			}},
			CommentModel: AIModelAssignment{ProviderID: "default", Model: defaultAIModel},
		},
		AutoComment: AutoCommentConfig{
			DefaultDelaySeconds: defaultDelaySeconds,
			MaxBatch:            defaultMaxBatch,
		},
	}
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if raw.AllowedOrigins != nil {
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	}
	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}

	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw.Database)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw.Redis)

	if v := strings.ToLower(strings.TrimSpace(raw.CredentialStore.Driver)); v != "" {
		cfg.CredentialStore.Driver = v
	}
	if v := strings.TrimSpace(raw.CredentialStore.SupabaseURL); v != "" {
		cfg.CredentialStore.SupabaseURL = v
	}
	if v := strings.TrimSpace(raw.CredentialStore.SupabaseServiceKey); v != "" {
		cfg.CredentialStore.SupabaseServiceKey = v
	}

	if raw.Session.TTLHours != 0 {
		cfg.Session.TTLHours = raw.Session.TTLHours
	}
	if raw.Session.AutoVerify != nil {
		cfg.Session.AutoVerify = *raw.Session.AutoVerify
	}
	if raw.Upstream.TimeoutSeconds != 0 {
		cfg.Upstream.TimeoutSeconds = raw.Upstream.TimeoutSeconds
	}
	if raw.Upstream.MaxRetries != nil {
		cfg.Upstream.MaxRetries = *raw.Upstream.MaxRetries
	}

	cfg.Twitter = mergeTwitter(cfg.Twitter, raw.Twitter)
	if v := strings.TrimSpace(raw.Kaito.BaseURL); v != "" {
		cfg.Kaito.BaseURL = v
	}

	if raw.AI.Providers != nil {
		cfg.AI.Providers = normalizeProviders(raw.AI.Providers)
	}
	if v := strings.TrimSpace(raw.AI.CommentModel.ProviderID); v != "" {
		cfg.AI.CommentModel.ProviderID = v
	}
	if v := strings.TrimSpace(raw.AI.CommentModel.Model); v != "" {
		cfg.AI.CommentModel.Model = v
	}

	if raw.AutoComment.DefaultDelaySeconds != nil {
		cfg.AutoComment.DefaultDelaySeconds = *raw.AutoComment.DefaultDelaySeconds
	}
	if raw.AutoComment.MaxBatch != 0 {
		cfg.AutoComment.MaxBatch = raw.AutoComment.MaxBatch
	}

	cfg.Env = normalizeEnv(cfg.Env)
}

func applyRawDatabaseConfig(cfg DatabaseRuntimeConfig, raw DatabaseRuntimeConfig) DatabaseRuntimeConfig {
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Host); v != "" {
		cfg.Host = v
	}
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(raw.Name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Charset); v != "" {
		cfg.Charset = v
	}
	if raw.Params != nil {
		cfg.Params = copyStringMap(raw.Params)
	}
	return cfg
}

func applyRawRedisConfig(cfg RedisRuntimeConfig, raw rawRedisConfig) RedisRuntimeConfig {
	if v := normalizeRedisRawURL(raw.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.Host); v != "" {
		cfg.Host = v
	}
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(raw.Password); v != "" {
		cfg.Password = v
	}
	if raw.DB != nil {
		cfg.DB = *raw.DB
	}
	if raw.TLS != nil {
		cfg.TLS = *raw.TLS
	}
	return cfg
}

func mergeTwitter(cfg TwitterConfig, raw TwitterConfig) TwitterConfig {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.APIBaseURL, raw.APIBaseURL)
	set(&cfg.AuthURL, raw.AuthURL)
	set(&cfg.TokenURL, raw.TokenURL)
	set(&cfg.BearerToken, raw.BearerToken)
	set(&cfg.ClientID, raw.ClientID)
	set(&cfg.ClientSecret, raw.ClientSecret)
	set(&cfg.RedirectURI, raw.RedirectURI)
	set(&cfg.FrontendURL, raw.FrontendURL)
	set(&cfg.StateSecret, raw.StateSecret)
	return cfg
}

// applyEnv lets deployments keep secrets out of the YAML file.
func applyEnv(cfg *AppConfig, getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("TWITTER_BEARER_TOKEN", &cfg.Twitter.BearerToken)
	str("TWITTER_CLIENT_ID", &cfg.Twitter.ClientID)
	str("TWITTER_CLIENT_SECRET", &cfg.Twitter.ClientSecret)
	str("TWITTER_REDIRECT_URI", &cfg.Twitter.RedirectURI)
	str("FRONTEND_URL", &cfg.Twitter.FrontendURL)
	str("STATE_SECRET", &cfg.Twitter.StateSecret)
	str("SUPABASE_URL", &cfg.CredentialStore.SupabaseURL)
	str("SUPABASE_SERVICE_ROLE_KEY", &cfg.CredentialStore.SupabaseServiceKey)
	str("DATABASE_DSN", &cfg.Database.DSN)
	str("REDIS_URL", &cfg.Redis.URL)

	if v := strings.TrimSpace(getenv("AI_API_KEY")); v != "" {
		for i := range cfg.AI.Providers {
			if cfg.AI.Providers[i].APIKey == "" {
				cfg.AI.Providers[i].APIKey = v
			}
		}
	}
	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	cfg.Redis.URL = normalizeRedisRawURL(cfg.Redis.URL)
}

func (c *AppConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", c.Port)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", c.Redis.DB)
	}
	if c.Session.TTLHours < 1 {
		return fmt.Errorf("invalid session.ttl_hours %d, expected >= 1", c.Session.TTLHours)
	}
	if c.Upstream.TimeoutSeconds < 1 {
		return fmt.Errorf("invalid upstream.timeout_seconds %d, expected >= 1", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.MaxRetries < 0 {
		return fmt.Errorf("invalid upstream.max_retries %d, expected >= 0", c.Upstream.MaxRetries)
	}
	if c.AutoComment.DefaultDelaySeconds < 0 {
		return fmt.Errorf("invalid autocomment.default_delay_seconds %d, expected >= 0", c.AutoComment.DefaultDelaySeconds)
	}
	if c.AutoComment.MaxBatch < 1 {
		return fmt.Errorf("invalid autocomment.max_batch %d, expected >= 1", c.AutoComment.MaxBatch)
	}

	switch c.CredentialStore.Driver {
	case StoreDriverMySQL:
		if c.Database.DSN != "" {
			if _, err := mysql.ParseDSN(c.Database.DSN); err != nil {
				return fmt.Errorf("invalid database.dsn: %w", err)
			}
		} else if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database.port %d, expected 1-65535", c.Database.Port)
		}
	case StoreDriverSupabase:
		if c.CredentialStore.SupabaseURL == "" || c.CredentialStore.SupabaseServiceKey == "" {
			return errors.New("credential_store.driver supabase requires supabase_url and supabase_service_key")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown credential_store.driver %q", c.CredentialStore.Driver)
	}
	return nil
}

func (c *AppConfig) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

// SessionTTL is the lifetime of a newly issued session.
func (c *AppConfig) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLHours) * time.Hour
}

// UpstreamTimeout bounds every third-party HTTP call.
func (c *AppConfig) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

// DefaultDelay is the pause between auto-comment posts when a request does not set one.
func (c *AppConfig) DefaultDelay() time.Duration {
	return time.Duration(c.AutoComment.DefaultDelaySeconds) * time.Second
}

// LogDir is paths.logs, relative paths taken from the config file's
// directory. Empty means unset; nativelog then picks YAPPER_LOG_DIR or its
// default.
func (c *AppConfig) LogDir() string {
	return resolvePath(c.Paths.Logs, c.baseDir)
}
