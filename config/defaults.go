package config

import "time"

// Default backend endpoint used when no backends are configured.
const (
	DefaultBackendHost = "127.0.0.1"
	DefaultBackendPort = 8188
)

// DefaultConfig returns the baseline configuration every load starts
// from.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			MetricsPort:     9090,
			ShutdownTimeout: 10 * time.Second,
		},
		Backends: nil,
		Pipeline: PipelineConfig{
			OutputTimeout:     5 * time.Second,
			AudioInputTimeout: time.Second,
			WarmupRuns:        5,
			WarmupWidth:       512,
			WarmupHeight:      512,
			WarmupSamples:     1024,
			ReconnectDelay:    2 * time.Second,
			SubmitTimeout:     10 * time.Second,
		},
		Fanout: FanoutConfig{
			MinSubmitInterval: 20 * time.Millisecond,
			OutputTimeout:     5 * time.Second,
			CollectPoll:       10 * time.Millisecond,
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    "streambridge.db",
		},
		Log: LogConfig{
			Level:        "info",
			Format:       "json",
			OutputPaths:  []string{"stdout"},
			EnableCaller: false,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "streambridge",
			SampleRate:   1.0,
		},
	}
}

// ResolvedBackends returns the configured backend list, falling back to
// a single local backend when none are configured.
func (c *Config) ResolvedBackends() []BackendConfig {
	if len(c.Backends) > 0 {
		return c.Backends
	}
	return []BackendConfig{{Host: DefaultBackendHost, Port: DefaultBackendPort}}
}
