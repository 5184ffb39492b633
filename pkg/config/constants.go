package config

// EnvPrefix is handed to envconfig; every field carries an explicit name so
// the prefix only matters for unnamed fields.
const EnvPrefix = "RETAIL"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv                = "RETAIL_APP_ENV"
	EnvPort                  = "RETAIL_APP_PORT"
	EnvDBDSN                 = "RETAIL_DB_DSN"
	EnvDBHost                = "RETAIL_DB_HOST"
	EnvDBUser                = "RETAIL_DB_USER"
	EnvDBName                = "RETAIL_DB_NAME"
	EnvUseSQLite             = "RETAIL_USE_SQLITE"
	EnvRedisURL              = "RETAIL_REDIS_URL"
	EnvJWTSecret             = "RETAIL_JWT_SECRET"
	EnvJWTIssuer             = "RETAIL_JWT_ISSUER"
	EnvAttributeDeletePolicy = "RETAIL_ATTRIBUTE_DELETE_POLICY"
	EnvOrderShippingCost     = "RETAIL_ORDER_SHIPPING_COST"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
