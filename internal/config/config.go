package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Backend names for the datastore and file storage layers
const (
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"

	StorageFilesystem = "filesystem"
	StorageS3         = "s3"
)

// Config holds all application configuration
type Config struct {
	Port      string
	PublicURL string // Optional: override auto-detected URL for reverse proxy setups

	// Datastore
	DatabaseBackend  string // "sqlite" or "postgres"
	DBPath           string // SQLite database file
	PostgresURL      string // Postgres connection string (required for postgres backend)
	PostgresMaxConns int

	// Write gate
	IPSalt             string // Server-side salt mixed into IP hashes
	RateLimitRating    int    // Rating writes per window per hashed IP
	RateLimitView      int    // View/download log writes per window per hashed IP
	RateLimitWindowMin int    // Window length in minutes

	// File storage
	StorageBackend  string // "filesystem" or "s3"
	DataDir         string // Root directory for filesystem storage
	S3Region        string
	S3Endpoint      string // Custom endpoint for MinIO or other S3-compatible services
	S3AccessKeyID   string
	S3SecretKey     string
	S3PathStyle     bool
	ExamsBucket     string
	SolutionsBucket string
	SignedURLTTLSec int // Expiry for signed download/upload URLs

	// Admin
	AdminUsername    string
	AdminPassword    string // Plaintext from env; hashed with bcrypt at startup
	SessionTTLHours  int
	OIDCIssuerURL    string // Optional: admin SSO via an OIDC provider
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string

	// Drive sync
	DriveCredentialsFile   string
	DriveExamsFolderID     string
	DriveSolutionsFolderID string

	// Moderation
	BannedWordsFile string // JSON file with {"bannedWords": [...]}

	CleanupIntervalMinutes int
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		PublicURL: getEnv("PUBLIC_URL", ""),

		DatabaseBackend:  getEnv("DATABASE_BACKEND", DatabaseSQLite),
		DBPath:           getEnv("DB_PATH", "./trikaweb.db"),
		PostgresURL:      getEnv("DATABASE_URL", ""),
		PostgresMaxConns: getEnvInt("POSTGRES_MAX_CONNS", 25),

		IPSalt:             getEnv("IP_SALT", ""),
		RateLimitRating:    getEnvInt("RATE_LIMIT_RATING", 60),
		RateLimitView:      getEnvInt("RATE_LIMIT_VIEW", 120),
		RateLimitWindowMin: getEnvInt("RATE_LIMIT_WINDOW_MINUTES", 60),

		StorageBackend:  getEnv("STORAGE_BACKEND", StorageFilesystem),
		DataDir:         getEnv("DATA_DIR", "./data"),
		S3Region:        getEnv("S3_REGION", ""),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:   getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:     getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3PathStyle:     getEnvBool("S3_PATH_STYLE", false),
		ExamsBucket:     getEnv("EXAMS_BUCKET", "exams"),
		SolutionsBucket: getEnv("SOLUTIONS_BUCKET", "solutions"),
		SignedURLTTLSec: getEnvInt("SIGNED_URL_TTL_SECONDS", 120),

		AdminUsername:    getEnv("ADMIN_USERNAME", ""),
		AdminPassword:    getEnv("ADMIN_PASSWORD", ""),
		SessionTTLHours:  getEnvInt("SESSION_TTL_HOURS", 12),
		OIDCIssuerURL:    getEnv("OIDC_ISSUER_URL", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURL:  getEnv("OIDC_REDIRECT_URL", ""),

		DriveCredentialsFile:   getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		DriveExamsFolderID:     getEnv("DRIVE_EXAMS_FOLDER_ID", ""),
		DriveSolutionsFolderID: getEnv("DRIVE_SOLUTIONS_FOLDER_ID", ""),

		BannedWordsFile: getEnv("BANNED_WORDS_FILE", "./config/moderation.json"),

		CleanupIntervalMinutes: getEnvInt("CLEANUP_INTERVAL_MINUTES", 60),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validate ensures configuration values are sensible
func (c *Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	switch c.DatabaseBackend {
	case DatabaseSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case DatabasePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("DATABASE_BACKEND must be %q or %q, got %q", DatabaseSQLite, DatabasePostgres, c.DatabaseBackend)
	}

	if c.IPSalt == "" {
		return fmt.Errorf("IP_SALT is required (hashed-IP rate limiting cannot run without it)")
	}

	if c.RateLimitRating <= 0 {
		return fmt.Errorf("RATE_LIMIT_RATING must be positive, got %d", c.RateLimitRating)
	}
	if c.RateLimitView <= 0 {
		return fmt.Errorf("RATE_LIMIT_VIEW must be positive, got %d", c.RateLimitView)
	}
	if c.RateLimitWindowMin <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MINUTES must be positive, got %d", c.RateLimitWindowMin)
	}

	switch c.StorageBackend {
	case StorageFilesystem:
		if c.DataDir == "" {
			return fmt.Errorf("DATA_DIR cannot be empty")
		}
	case StorageS3:
		if c.ExamsBucket == "" || c.SolutionsBucket == "" {
			return fmt.Errorf("EXAMS_BUCKET and SOLUTIONS_BUCKET are required for the s3 backend")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StorageFilesystem, StorageS3, c.StorageBackend)
	}

	if c.SignedURLTTLSec <= 0 {
		return fmt.Errorf("SIGNED_URL_TTL_SECONDS must be positive, got %d", c.SignedURLTTLSec)
	}

	if c.SessionTTLHours <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be positive, got %d", c.SessionTTLHours)
	}

	if c.CleanupIntervalMinutes <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL_MINUTES must be positive, got %d", c.CleanupIntervalMinutes)
	}

	// OIDC is all-or-nothing
	oidcSet := 0
	for _, v := range []string{c.OIDCIssuerURL, c.OIDCClientID, c.OIDCRedirectURL} {
		if v != "" {
			oidcSet++
		}
	}
	if oidcSet != 0 && oidcSet != 3 {
		return fmt.Errorf("OIDC_ISSUER_URL, OIDC_CLIENT_ID and OIDC_REDIRECT_URL must be set together")
	}

	return nil
}

// AdminEnabled reports whether the admin area should be wired up
func (c *Config) AdminEnabled() bool {
	return (c.AdminUsername != "" && c.AdminPassword != "") || c.OIDCEnabled()
}

// OIDCEnabled reports whether admin SSO login is configured
func (c *Config) OIDCEnabled() bool {
	return c.OIDCIssuerURL != "" && c.OIDCClientID != "" && c.OIDCRedirectURL != ""
}

// DriveMissingVars returns the env var names missing for a sync of the given
// type ("exams", "solutions" or "all"); empty means fully configured.
func (c *Config) DriveMissingVars(syncType string) []string {
	var missing []string
	if c.DriveCredentialsFile == "" {
		missing = append(missing, "GOOGLE_APPLICATION_CREDENTIALS")
	}
	if (syncType == "exams" || syncType == "all") && c.DriveExamsFolderID == "" {
		missing = append(missing, "DRIVE_EXAMS_FOLDER_ID")
	}
	if (syncType == "solutions" || syncType == "all") && c.DriveSolutionsFolderID == "" {
		missing = append(missing, "DRIVE_SOLUTIONS_FOLDER_ID")
	}
	return missing
}

// LoadBannedWords reads the moderation wordlist. A missing file is not an
// error; moderation simply runs with an empty list.
func (c *Config) LoadBannedWords() ([]string, error) {
	data, err := os.ReadFile(c.BannedWordsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read banned words file: %w", err)
	}

	var parsed struct {
		BannedWords []string `json:"bannedWords"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse banned words file: %w", err)
	}

	words := make([]string, 0, len(parsed.BannedWords))
	for _, w := range parsed.BannedWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			words = append(words, w)
		}
	}
	return words, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
