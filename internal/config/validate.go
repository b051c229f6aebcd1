package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if len(c.Endpoints) == 0 {
		return errors.New("at least one endpoint is required")
	}

	for i, ep := range c.Endpoints {
		if err := ep.validate(fmt.Sprintf("endpoints[%d]", i)); err != nil {
			return err
		}
	}

	if c.Recorder.Enabled {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
		if c.Recorder.BatchSize < 1 {
			return errors.New("recorder.batch_size must be >= 1")
		}
		if c.Recorder.BufferSize < 1 {
			return errors.New("recorder.buffer_size must be >= 1")
		}
	}

	return nil
}

func (ep *EndpointConfig) validate(prefix string) error {
	if ep.Addr == "" {
		return fmt.Errorf("%s.addr is required", prefix)
	}
	u, err := url.Parse(ep.Addr)
	if err != nil {
		return fmt.Errorf("%s.addr: %w", prefix, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%s.addr must use ws or wss scheme, got %q", prefix, u.Scheme)
	}
	if ep.MaxMultiplex < 0 {
		return fmt.Errorf("%s.max_multiplex must be >= 0", prefix)
	}
	for j, sub := range ep.Subscriptions {
		if sub.Subscribe == "" {
			return fmt.Errorf("%s.subscriptions[%d].subscribe is required", prefix, j)
		}
		if sub.Unsubscribe == "" {
			return fmt.Errorf("%s.subscriptions[%d].unsubscribe is required", prefix, j)
		}
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
