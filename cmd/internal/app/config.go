package app

import "time"

// Chat store backends selectable with LAYOO_CHAT_BACKEND.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// ChatBackend is memory, mongo or postgres. Empty picks mongo when MongoURI is set, then
	// postgres when DatabaseURL is set, then memory.
	ChatBackend string

	MongoURI     string
	MongoDB      string
	MongoTimeout time.Duration

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless a database is configured and reachable.
	ReadinessRequireDB bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PresenceTTL   time.Duration

	KafkaBrokers []string
	KafkaTopic   string
	KafkaTimeout time.Duration

	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3Prefix        string
	S3PublicBaseURL string

	UploadDir      string
	UploadMaxBytes int64
	UploadTimeout  time.Duration
	// PublicBaseURL prefixes local upload URLs. Empty derives it from HTTPAddr.
	PublicBaseURL string

	TxTimeout time.Duration

	// JWTSecret enables HS256 handshake verification on /ws.
	JWTSecret string

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// SweepSchedule is the cron spec of the expiry sweeper. Empty disables it.
	SweepSchedule string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("LAYOO_HTTP_ADDR", "0.0.0.0:"+EnvString("PORT", "3000")),
		LogLevel:  EnvString("LAYOO_LOG_LEVEL", "info"),
		LogFormat: EnvString("LAYOO_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("LAYOO_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("LAYOO_HTTP_READ_TIMEOUT", 2*time.Minute),
		WriteTimeout:      EnvDuration("LAYOO_HTTP_WRITE_TIMEOUT", 2*time.Minute),
		IdleTimeout:       EnvDuration("LAYOO_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("LAYOO_HTTP_MAX_HEADER_BYTES", 1<<20),

		ChatBackend: EnvString("LAYOO_CHAT_BACKEND", ""),

		MongoURI:     EnvString("LAYOO_MONGO_URI", EnvString("MONGO_URI", "")),
		MongoDB:      EnvString("LAYOO_MONGO_DB", "layoo"),
		MongoTimeout: EnvDuration("LAYOO_MONGO_TIMEOUT", 10*time.Second),

		DatabaseURL: EnvString("LAYOO_DATABASE_URL", ""),
		DBSchema:    EnvString("LAYOO_DB_SCHEMA", "layoo"),
		DBMaxConns:  EnvInt32("LAYOO_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("LAYOO_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("LAYOO_READINESS_REQUIRE_DB", false),

		RedisAddr:     EnvString("LAYOO_REDIS_ADDR", ""),
		RedisPassword: EnvString("LAYOO_REDIS_PASSWORD", ""),
		RedisDB:       EnvInt("LAYOO_REDIS_DB", 0),
		PresenceTTL:   EnvDuration("LAYOO_PRESENCE_TTL", 24*time.Hour),

		KafkaBrokers: EnvCSV("LAYOO_KAFKA_BROKERS"),
		KafkaTopic:   EnvString("LAYOO_KAFKA_TOPIC", "layoo.events"),
		KafkaTimeout: EnvDuration("LAYOO_KAFKA_TIMEOUT", 5*time.Second),

		S3Bucket:        EnvString("LAYOO_S3_BUCKET", ""),
		S3Region:        EnvString("LAYOO_S3_REGION", "us-east-1"),
		S3Endpoint:      EnvString("LAYOO_S3_ENDPOINT", ""),
		S3Prefix:        EnvString("LAYOO_S3_PREFIX", "uploads"),
		S3PublicBaseURL: EnvString("LAYOO_S3_PUBLIC_BASE_URL", ""),

		UploadDir:      EnvString("LAYOO_UPLOAD_DIR", "uploads"),
		UploadMaxBytes: int64(EnvInt("LAYOO_UPLOAD_MAX_BYTES", 50<<20)),
		UploadTimeout:  EnvDuration("LAYOO_UPLOAD_TIMEOUT", 60*time.Second),
		PublicBaseURL:  EnvString("LAYOO_PUBLIC_BASE_URL", ""),

		TxTimeout: EnvDuration("LAYOO_TX_TIMEOUT", 5*time.Second),

		JWTSecret: EnvString("LAYOO_JWT_SECRET", ""),

		CORSAllowedOrigins:   envCSVOr("LAYOO_CORS_ORIGINS", EnvString("CORS_ORIGIN", "")),
		CORSAllowCredentials: EnvBool("LAYOO_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("LAYOO_CORS_MAX_AGE", 600),

		SweepSchedule: EnvString("LAYOO_SWEEP_SCHEDULE", "@every 5m"),
	}
}

// chatBackend resolves the effective chat store backend.
func (c Config) chatBackend() string {
	switch c.ChatBackend {
	case BackendMemory, BackendMongo, BackendPostgres:
		return c.ChatBackend
	}
	switch {
	case c.MongoURI != "":
		return BackendMongo
	case c.DatabaseURL != "":
		return BackendPostgres
	}
	return BackendMemory
}
