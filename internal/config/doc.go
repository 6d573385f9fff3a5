// Package config loads scenewire.toml and converts it into runtime
// configuration for the scene server.
package config
