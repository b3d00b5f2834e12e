package server

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/tinytsdb/pkg/config"
)

// Config holds server configuration.
type Config struct {
	Port       string
	LogPath    string
	Retention  time.Duration
	ArchiveDir string // empty disables the cold archive
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() Config {
	retentionHours := getEnvInt64("TINYTSDB_RETENTION_HOURS", int64(config.DefaultRetention/time.Hour))

	logPath := os.Getenv("TINYTSDB_LOG_PATH")
	if logPath == "" {
		logPath = config.LogFileName
	}

	return Config{
		Port:       getPort(),
		LogPath:    logPath,
		Retention:  time.Duration(retentionHours) * time.Hour,
		ArchiveDir: os.Getenv("TINYTSDB_ARCHIVE_DIR"),
	}
}

// NewRouter wires the HTTP routes.
func NewRouter(h *Handler, hub *Hub) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/insert", h.HandleInsert).Methods(http.MethodPost)
	r.HandleFunc("/v1/query", h.HandleQuery).Methods(http.MethodGet)
	r.HandleFunc("/v1/stats", h.HandleStats).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HandleHealthz).Methods(http.MethodGet)
	if hub != nil {
		r.HandleFunc("/v1/live", h.HandleLive(hub)).Methods(http.MethodGet)
	}
	return r
}

// getEnvInt64 gets an int64 from an environment variable or returns the default.
func getEnvInt64(key string, defaultValue int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
		log.Printf("Invalid value for %s: %q, using default %d", key, val, defaultValue)
	}
	return defaultValue
}

// getPort gets the server port from the PORT environment variable or returns the default.
func getPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return config.DefaultPort
}
