// Package config loads, normalizes, and validates the TOML configuration that
// drives the transcoding daemon: directory layout, external tool locations,
// encoding parameters, worker scheduling, object storage, and logging.
package config
