package config

import (
	"fmt"
	"time"
)

// Client configures an OPC UA client.
type Client struct {
	ApplicationName string `yaml:"application_name,omitempty"`

	// ApplicationURI identifies the client instance. Empty means
	// "urn:<application_name>:<uuid>" generated per client.
	ApplicationURI string `yaml:"application_uri,omitempty"`
	ProductURI     string `yaml:"product_uri,omitempty"`

	SessionTimeout    Duration `yaml:"session_timeout,omitempty"`
	RequestTimeout    Duration `yaml:"request_timeout,omitempty"`
	ConnectTimeout    Duration `yaml:"connect_timeout,omitempty"`
	DisconnectTimeout Duration `yaml:"disconnect_timeout,omitempty"`

	// PollInterval is how often WaitForConnection checks the transport.
	PollInterval Duration `yaml:"poll_interval,omitempty"`

	// Subscription defaults used when the caller passes zero values.
	PublishingInterval Duration `yaml:"publishing_interval,omitempty"`

	AutoReconnect bool `yaml:"auto_reconnect,omitempty"`
}

// DefaultClient returns the client defaults.
func DefaultClient() Client {
	return Client{
		ApplicationName:    "opcua-bridge client",
		ProductURI:         "urn:opcua-bridge",
		SessionTimeout:     Duration(time.Minute),
		RequestTimeout:     Duration(10 * time.Second),
		ConnectTimeout:     Duration(10 * time.Second),
		DisconnectTimeout:  Duration(5 * time.Second),
		PollInterval:       Duration(50 * time.Millisecond),
		PublishingInterval: Duration(time.Second),
	}
}

// WithDefaults fills zero fields from DefaultClient.
func (c Client) WithDefaults() Client {
	d := DefaultClient()
	if c.ApplicationName == "" {
		c.ApplicationName = d.ApplicationName
	}
	if c.ProductURI == "" {
		c.ProductURI = d.ProductURI
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = d.SessionTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.DisconnectTimeout == 0 {
		c.DisconnectTimeout = d.DisconnectTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = d.PollInterval
	}
	if c.PublishingInterval == 0 {
		c.PublishingInterval = d.PublishingInterval
	}
	return c
}

// Validate checks durations are usable.
func (c Client) Validate() error {
	for name, d := range map[string]Duration{
		"session_timeout":     c.SessionTimeout,
		"request_timeout":     c.RequestTimeout,
		"connect_timeout":     c.ConnectTimeout,
		"disconnect_timeout":  c.DisconnectTimeout,
		"poll_interval":       c.PollInterval,
		"publishing_interval": c.PublishingInterval,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
		}
	}
	return nil
}

// LoadClient reads a client configuration file.
func LoadClient(path string) (Client, error) {
	var cfg Client
	if err := decodeFile(path, &cfg); err != nil {
		return Client{}, err
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}
