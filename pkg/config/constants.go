package config

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "lojapos"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "LOJAPOS_DB_DSN"
	EnvDBHost = "LOJAPOS_DB_HOST"
	EnvDBUser = "LOJAPOS_DB_USER"
	EnvDBName = "LOJAPOS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
