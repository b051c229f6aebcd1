package config

import "time"

// Config is the root configuration for a wsfeed instance.
type Config struct {
	Instance  InstanceConfig   `yaml:"instance"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
	Database  DatabaseConfig   `yaml:"database"`
	Recorder  RecorderConfig   `yaml:"recorder"`
}

// InstanceConfig identifies this wsfeed instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
	AZ string `yaml:"az"`
}

// EndpointConfig describes one endpoint and the subscriptions to hold open
// against it.
type EndpointConfig struct {
	Name              string               `yaml:"name"`
	Addr              string               `yaml:"addr"`
	MaxMultiplex      int                  `yaml:"max_multiplex"`
	ConnectTimeout    time.Duration        `yaml:"connect_timeout"`
	RetryWait         time.Duration        `yaml:"retry_wait"`
	PollInterval      time.Duration        `yaml:"poll_interval"`
	KeepalivePayload  string               `yaml:"keepalive_payload"`
	KeepaliveInterval time.Duration        `yaml:"keepalive_interval"`
	IdleTolerance     time.Duration        `yaml:"idle_tolerance"`
	Subscriptions     []SubscriptionConfig `yaml:"subscriptions"`
}

// SubscriptionConfig is one subscribe/unsubscribe payload pair, passed to
// the wire verbatim.
type SubscriptionConfig struct {
	Subscribe   string `yaml:"subscribe"`
	Unsubscribe string `yaml:"unsubscribe"`
}

// DatabaseConfig holds the Postgres connection used by the frame recorder.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RecorderConfig holds frame recorder settings.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Table         string        `yaml:"table"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}
