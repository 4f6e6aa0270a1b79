package main

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	HTTPAddr    string     // "127.0.0.1:8080"
	DBPath      string     // sqlite file path
	AgeKeyPath  string     // path to age identity file
	ConfigFile  string     // path to shardbase.yaml
	LogLevel    slog.Level // slog level
	ExternalURL string     // external base URL for OAuth callbacks and SAML
	TokenSecret string     // HS256 signing secret, >= 32 bytes
	UploadDir   string     // directory for chunked upload blobs

	// SAML SSO; disabled unless an IdP metadata source is set.
	SSOTenant       string
	IDPMetadataURL  string
	IDPMetadataFile string
	SamlCertFile    string
	SamlKeyFile     string
	DefaultRole     string
}

// defaultDataPath returns ~/.shardbase/<filename>, falling back to
// a CWD-relative path if the home directory can't be resolved.
func defaultDataPath(filename string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filename
	}
	return filepath.Join(home, ".shardbase", filename)
}

func loadConfig() (*Config, error) {
	cfg := &Config{
		HTTPAddr:        envOr("SHARDBASE_HTTP_ADDR", "127.0.0.1:8080"),
		DBPath:          envOr("SHARDBASE_DB_PATH", defaultDataPath("shardbase.db")),
		AgeKeyPath:      envOr("SHARDBASE_AGE_KEY", defaultDataPath("age.key")),
		ConfigFile:      envOr("SHARDBASE_CONFIG", defaultDataPath("shardbase.yaml")),
		LogLevel:        parseLogLevel(envOr("SHARDBASE_LOG_LEVEL", "info")),
		ExternalURL:     envOr("SHARDBASE_EXTERNAL_URL", "http://127.0.0.1:8080"),
		TokenSecret:     envOr("SHARDBASE_TOKEN_SECRET", ""),
		UploadDir:       envOr("SHARDBASE_UPLOAD_DIR", defaultDataPath("uploads")),
		SSOTenant:       envOr("SHARDBASE_SSO_TENANT", ""),
		IDPMetadataURL:  envOr("SHARDBASE_IDP_METADATA_URL", ""),
		IDPMetadataFile: envOr("SHARDBASE_IDP_METADATA_FILE", ""),
		SamlCertFile:    envOr("SHARDBASE_SAML_CERT", defaultDataPath("saml.crt")),
		SamlKeyFile:     envOr("SHARDBASE_SAML_KEY", defaultDataPath("saml.key")),
		DefaultRole:     envOr("SHARDBASE_DEFAULT_ROLE", "viewer"),
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
