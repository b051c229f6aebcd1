package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultConnectTimeout    = 10 * time.Second
	DefaultRetryWait         = 1 * time.Second
	DefaultPollInterval      = 2 * time.Second
	DefaultKeepaliveInterval = 30 * time.Second
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultRecorderTable     = "frames"
	DefaultBatchSize         = 500
	DefaultFlushInterval     = 1 * time.Second
	DefaultBufferSize        = 10000
)

func (c *Config) applyDefaults() {
	for i := range c.Endpoints {
		ep := &c.Endpoints[i]
		if ep.ConnectTimeout == 0 {
			ep.ConnectTimeout = DefaultConnectTimeout
		}
		if ep.RetryWait == 0 {
			ep.RetryWait = DefaultRetryWait
		}
		if ep.PollInterval == 0 {
			ep.PollInterval = DefaultPollInterval
		}
		if ep.KeepaliveInterval == 0 {
			ep.KeepaliveInterval = DefaultKeepaliveInterval
		}
	}

	if c.Recorder.Enabled {
		applyDBDefaults(&c.Database.Postgres)
	}
	if c.Recorder.Table == "" {
		c.Recorder.Table = DefaultRecorderTable
	}
	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}
	if c.Recorder.BufferSize == 0 {
		c.Recorder.BufferSize = DefaultBufferSize
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
