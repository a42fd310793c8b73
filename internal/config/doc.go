// Package config loads and validates chatlink configuration.
//
// Configuration is YAML with ${VAR} environment expansion. Every duration
// field has a default applied by LoadWithDefaults, so a minimal file only
// needs the gateway and REST URLs.
package config
