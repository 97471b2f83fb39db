// Package config provides application configuration management from a YAML
// file and environment variables.
//
// # Overview
//
// Defaults are overlaid by the YAML file named in AUTHGATE_CONFIG_FILE (if any),
// then by environment variables. The result is validated once at startup and
// the process refuses to start on any error.
//
// # Configuration Structure
//
// Server settings:
//
//	AUTHGATE_HOST="0.0.0.0"
//	AUTHGATE_PORT="8080"
//	AUTHGATE_HEALTH_PORT="9090"
//	AUTHGATE_CORS_ORIGINS="http://localhost:3000,https://leave.example.com"
//
// Identity and session:
//
//	AUTHGATE_OIDC_ISSUER_URL="https://accounts.google.com"
//	AUTHGATE_OIDC_CLIENT_ID="1234.apps.googleusercontent.com"
//	AUTHGATE_SESSION_SECRET="<at least 32 bytes>"
//	AUTHGATE_SESSION_TTL="24h"
//
// Storage settings:
//
//	AUTHGATE_STORAGE_DRIVER="postgres"  # memory, postgres, sqlite3
//	AUTHGATE_DATABASE_URL="postgres://localhost/authgate?sslmode=disable"
//	AUTHGATE_REDIS_URL="redis://localhost:6379/0"
//	AUTHGATE_CACHE_TTL="5m"
//
// Provisioning:
//
//	AUTHGATE_PROVISIONING_URL="http://leave-service:5001"
//	AUTHGATE_PROVISIONING_TIMEOUT="5s"
//	AUTHGATE_PROVISIONING_ASYNC="false"
//
// Observability:
//
//	AUTHGATE_LOG_LEVEL="info"
//	AUTHGATE_OTEL_ENABLED="false"
//	AUTHGATE_OTEL_ENDPOINT="localhost:4317"
//
// # Reload
//
// WatchLogLevel applies log level changes from the YAML file at runtime. The
// signing secret and identity settings are never reloaded.
package config
