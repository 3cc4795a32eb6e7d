package config

import "time"

// ServerConfig holds the HTTP API listener settings.
type ServerConfig struct {
	// Addr is the listen address of the REST API.
	Addr string `json:"addr"`
	// APIToken guards the API with bearer auth. Empty disables auth.
	APIToken string `json:"api_token"`
	// ReadTimeoutSeconds bounds reading one request.
	ReadTimeoutSeconds int `json:"read_timeout_seconds"`
	// ShutdownTimeoutSeconds bounds graceful shutdown.
	ShutdownTimeoutSeconds int `json:"shutdown_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeoutSeconds <= 0 {
		c.ReadTimeoutSeconds = 10
	}
	if c.ShutdownTimeoutSeconds <= 0 {
		c.ShutdownTimeoutSeconds = 5
	}
}

func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// ObservabilityConfig wires the Prometheus exposition endpoint.
type ObservabilityConfig struct {
	// MetricsAddr is the listen address of the /metrics server. Empty
	// disables the endpoint.
	MetricsAddr string `json:"metrics_addr"`
}
