package config

import "time"

// Store defaults
const (
	// DefaultRetention is the maximum age of retained samples.
	DefaultRetention = 24 * time.Hour

	// LogFileName is the durability log filename, relative to the
	// working directory unless overridden.
	LogFileName = "data_store.log"
)

// Server defaults
const (
	DefaultPort        = "8080"
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 10 * time.Second
	ShutdownTimeout    = 30 * time.Second
)

// Background task intervals and timeouts
const (
	RetentionSweepInterval = 10 * time.Minute
	ArchiveWriteTimeout    = 30 * time.Second
)

// Insert and query limits
const (
	MaxSamplesPerRequest = 1000
	InsertTimeout        = 5 * time.Second
	QueryTimeout         = 10 * time.Second
	QueryDefaultWindow   = 1 * time.Hour
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)
