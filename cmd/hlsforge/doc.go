// Package main hosts the hlsforge CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into daemon
// startup, queue maintenance operations, source inspection, and configuration
// scaffolding. It centralizes configuration resolution so subcommands can
// focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
