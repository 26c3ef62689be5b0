// Package config provides configuration loading and validation for the UDP peer service.
// It handles YAML-based configuration layered over built-in defaults, with per-section
// validation and helpers converting numeric settings to durations and byte sizes.
package config
