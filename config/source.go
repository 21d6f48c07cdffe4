package config

import (
	"os"
	"strings"
)

// Source looks up configuration values by their fixed key.
type Source interface {
	Lookup(key string) (string, bool)
}

// MapSource serves values from an in-memory map.
type MapSource map[string]string

func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// EnvSource reads environment variables. "RabbitMQ:HostName" becomes
// RABBITMQ__HOSTNAME, optionally behind Prefix.
type EnvSource struct {
	Prefix string
}

func (e EnvSource) Lookup(key string) (string, bool) {
	return os.LookupEnv(EnvName(e.Prefix, key))
}

// EnvName maps a lookup key to its environment variable name.
func EnvName(prefix, key string) string {
	name := strings.ToUpper(strings.ReplaceAll(key, ":", "__"))
	if prefix == "" {
		return name
	}
	return strings.ToUpper(prefix) + "_" + name
}

// Chain consults each source in order; the first non-empty value wins.
type Chain []Source

func (c Chain) Lookup(key string) (string, bool) {
	for _, src := range c {
		if src == nil {
			continue
		}
		if v, ok := src.Lookup(key); ok && v != "" {
			return v, true
		}
	}
	return "", false
}
