// Package config loads, validates, and normalizes deskrec configuration
// from TOML. All path fields in a loaded Config are absolute.
package config
