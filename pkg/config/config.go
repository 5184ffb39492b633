package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Catalog      CatalogConfig
	Orders       OrdersConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if _, err := ParseDeletePolicy(cfg.Catalog.AttributeDeletePolicy); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RETAIL_APP_ENV" required:"true"`
	Port         string `envconfig:"RETAIL_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"RETAIL_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"RETAIL_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"RETAIL_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma separated allow list; empty means local dev origins.
	CORSOrigins []string `envconfig:"RETAIL_CORS_ORIGINS"`
	Timezone    string   `envconfig:"RETAIL_TIMEZONE" default:"America/Bogota"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN        string `envconfig:"RETAIL_DB_DSN"`
	SQLitePath string `envconfig:"RETAIL_SQLITE_PATH" default:"retail.db"`

	LegacyHost     string `envconfig:"RETAIL_DB_HOST"`
	LegacyPort     int    `envconfig:"RETAIL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RETAIL_DB_USER"`
	LegacyPassword string `envconfig:"RETAIL_DB_PASSWORD"`
	LegacyName     string `envconfig:"RETAIL_DB_NAME"`
	LegacySSLMode  string `envconfig:"RETAIL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RETAIL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RETAIL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RETAIL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RETAIL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RETAIL_REDIS_URL"`
	Address      string        `envconfig:"RETAIL_REDIS_ADDR"`
	Password     string        `envconfig:"RETAIL_REDIS_PASSWORD"`
	DB           int           `envconfig:"RETAIL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RETAIL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RETAIL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RETAIL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RETAIL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RETAIL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint has been configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"RETAIL_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"RETAIL_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"RETAIL_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"RETAIL_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"RETAIL_AUTO_MIGRATE" default:"false"`
}

// CatalogConfig holds the policies applied to shared catalog definitions.
type CatalogConfig struct {
	AttributeDeletePolicy string `envconfig:"RETAIL_ATTRIBUTE_DELETE_POLICY" default:"restrict"`
}

type OrdersConfig struct {
	ShippingCost string `envconfig:"RETAIL_ORDER_SHIPPING_COST" default:"15000"`
}

// DeletePolicy decides what happens to product pivot rows when a shared
// attribute or attribute value is deleted.
type DeletePolicy string

const (
	DeletePolicyRestrict  DeletePolicy = "restrict"
	DeletePolicyCascade   DeletePolicy = "cascade"
	DeletePolicyTombstone DeletePolicy = "tombstone"
)

// ParseDeletePolicy normalizes the configured policy, defaulting to restrict.
func ParseDeletePolicy(value string) (DeletePolicy, error) {
	switch DeletePolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", DeletePolicyRestrict:
		return DeletePolicyRestrict, nil
	case DeletePolicyCascade:
		return DeletePolicyCascade, nil
	case DeletePolicyTombstone:
		return DeletePolicyTombstone, nil
	}
	return "", fmt.Errorf("invalid %s %q (expected restrict, cascade or tombstone)", EnvAttributeDeletePolicy, value)
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
