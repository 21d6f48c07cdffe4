package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Fixed lookup keys. HostName, UserName and Password are required.
const (
	KeyHostName       = "RabbitMQ:HostName"
	KeyUserName       = "RabbitMQ:UserName"
	KeyPassword       = "RabbitMQ:Password"
	KeyPort           = "RabbitMQ:Port"
	KeyVirtualHost    = "RabbitMQ:VirtualHost"
	KeyConnectTimeout = "RabbitMQ:ConnectTimeout"
	KeyPrefetch       = "RabbitMQ:Prefetch"
)

// Default values for optional configuration fields.
const (
	DefaultPort           = 5672
	DefaultVirtualHost    = "/"
	DefaultConnectTimeout = 30 * time.Second
)

// RabbitMQ holds the broker settings every registry connection is opened with.
type RabbitMQ struct {
	HostName       string
	UserName       string
	Password       string
	Port           int
	VirtualHost    string
	ConnectTimeout time.Duration
	// Prefetch is the per-channel QoS prefetch count. Zero leaves the broker default.
	Prefetch int
}

// FromSource reads the fixed keys from src, applies defaults and validates.
func FromSource(src Source) (RabbitMQ, error) {
	cfg := RabbitMQ{
		HostName:    lookup(src, KeyHostName),
		UserName:    lookup(src, KeyUserName),
		Password:    lookup(src, KeyPassword),
		VirtualHost: lookup(src, KeyVirtualHost),
	}

	if v := lookup(src, KeyPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return RabbitMQ{}, fmt.Errorf("%s: %w", KeyPort, err)
		}
		cfg.Port = port
	}
	if v := lookup(src, KeyConnectTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return RabbitMQ{}, fmt.Errorf("%s: %w", KeyConnectTimeout, err)
		}
		cfg.ConnectTimeout = d
	}
	if v := lookup(src, KeyPrefetch); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return RabbitMQ{}, fmt.Errorf("%s: %w", KeyPrefetch, err)
		}
		cfg.Prefetch = n
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return RabbitMQ{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset optional fields.
func (c *RabbitMQ) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.VirtualHost == "" {
		c.VirtualHost = DefaultVirtualHost
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
}

// Validate checks that all required fields are set and values are valid.
func (c *RabbitMQ) Validate() error {
	if c.HostName == "" {
		return fmt.Errorf("%s is required", KeyHostName)
	}
	if c.UserName == "" {
		return fmt.Errorf("%s is required", KeyUserName)
	}
	if c.Password == "" {
		return fmt.Errorf("%s is required", KeyPassword)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", KeyPort, c.Port)
	}
	if c.ConnectTimeout < 0 {
		return errors.New(KeyConnectTimeout + " must be >= 0")
	}
	if c.Prefetch < 0 {
		return errors.New(KeyPrefetch + " must be >= 0")
	}
	return nil
}

func lookup(src Source, key string) string {
	v, _ := src.Lookup(key)
	return strings.TrimSpace(v)
}
