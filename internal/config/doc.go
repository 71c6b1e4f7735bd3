// Package config provides configuration loading and validation for the
// stream-scribe transcription pipeline. It handles YAML-based configuration
// with struct validation and carries Japanese-optimized defaults for every
// tunable, so a missing config file still yields a fully working setup.
package config
