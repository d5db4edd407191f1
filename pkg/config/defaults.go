package config

const (
	defaultStorageDriver = DriverSQLite
	defaultAPIListen     = ":8081"

	defaultWriteTimeout = "5s"
	defaultMaxRetries   = 3

	defaultEventTopic = "callfacts.records"

	defaultAPITarget = "http://localhost:8081"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Gateway: GatewayConfig{
			WriteTimeout: defaultWriteTimeout,
			MaxRetries:   defaultMaxRetries,
		},
		EventStream: EventStreamConfig{
			Topic: defaultEventTopic,
		},
		Client: ClientConfig{
			APITarget: defaultAPITarget,
		},
	}
}
