package repository

// Database backend identifiers carried in Repositories.DatabaseType.
const (
	DatabaseTypeSQLite     = "sqlite"
	DatabaseTypePostgreSQL = "postgres"
)
