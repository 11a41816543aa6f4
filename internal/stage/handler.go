package stage

import (
	"context"
	"log/slog"

	"hlsforge/internal/queue"
)

// Handler describes the contract the workflow manager needs from each stage.
type Handler interface {
	Prepare(context.Context, *queue.Job) error
	Execute(context.Context, *queue.Job) error
	HealthCheck(context.Context) Health
}

// LoggerAware lets the execution helper hand a stage-scoped logger to
// handlers that log during Execute.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
