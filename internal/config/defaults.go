package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Remote: RemoteConfig{
			ReadTimeoutSeconds:    8,
			MonteCarloTimeoutSecs: 45,
			MaxAttempts:           3,
		},
		Transport: TransportConfig{
			Mode: "stdio",
			Host: "0.0.0.0",
			Port: 8000,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
