package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a config file:
//
//	rabbitmq:
//	  hostname: localhost
//	  username: admin
//	  password: ${RABBITMQ_PASSWORD}
type File struct {
	RabbitMQ struct {
		HostName       string `yaml:"hostname"`
		UserName       string `yaml:"username"`
		Password       string `yaml:"password"`
		Port           string `yaml:"port"`
		VirtualHost    string `yaml:"virtual_host"`
		ConnectTimeout string `yaml:"connect_timeout"`
		Prefetch       string `yaml:"prefetch"`
	} `yaml:"rabbitmq"`
}

// Lookup makes File a Source.
func (f *File) Lookup(key string) (string, bool) {
	r := f.RabbitMQ
	var v string
	switch key {
	case KeyHostName:
		v = r.HostName
	case KeyUserName:
		v = r.UserName
	case KeyPassword:
		v = r.Password
	case KeyPort:
		v = r.Port
	case KeyVirtualHost:
		v = r.VirtualHost
	case KeyConnectTimeout:
		v = r.ConnectTimeout
	case KeyPrefetch:
		v = r.Prefetch
	default:
		return "", false
	}
	return v, v != ""
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config, expanding ${VAR} references first.
func Parse(data []byte) (*File, error) {
	expanded := os.ExpandEnv(string(data))

	var f File
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &f, nil
}

// LoadAndValidate loads path, lets the environment override it and returns
// validated broker settings. An empty path uses the environment alone.
func LoadAndValidate(path string) (RabbitMQ, error) {
	env := EnvSource{}
	if path == "" {
		return FromSource(env)
	}

	f, err := Load(path)
	if err != nil {
		return RabbitMQ{}, err
	}
	return FromSource(Chain{env, f})
}
