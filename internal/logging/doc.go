// Package logging builds the slog loggers used across the daemon and CLI,
// providing console and JSON handlers, standardized field names, context
// propagation of job identifiers, and log file retention.
package logging
