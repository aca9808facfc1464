package config

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 3001
	defaultEnv        = "development"
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "yapper"
	defaultDBCharset  = "utf8mb4"
	defaultRedisHost  = "localhost"
	defaultRedisPort  = 6379
	defaultRedisDB    = 0

	defaultStoreDriver         = StoreDriverMySQL
	defaultSessionTTLHours     = 24
	defaultUpstreamTimeoutSecs = 20
	defaultUpstreamMaxRetries  = 2
	defaultTwitterAPIBaseURL   = "https://api.twitter.com"
	defaultTwitterAuthURL      = "https://twitter.com/i/oauth2/authorize"
	defaultTwitterTokenURL     = "https://api.twitter.com/2/oauth2/token"
	defaultKaitoBaseURL        = "https://hub.kaito.ai"
	DefaultAIEndpoint          = "https://api.akbxr.com"
	defaultAIModel             = "auto"
	defaultDelaySeconds        = 30
	defaultMaxBatch            = 50
)

// Credential store drivers.
const (
	StoreDriverMySQL    = "mysql"
	StoreDriverSupabase = "supabase"
	StoreDriverMemory   = "memory"
)
