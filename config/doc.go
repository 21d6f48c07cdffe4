// Package config supplies broker settings to the connection registry.
//
// Values are looked up by fixed keys (KeyHostName, KeyUserName, KeyPassword and
// a few optional ones) from a Source: a YAML file, the environment, an
// in-memory map, or a Chain of those.
package config
