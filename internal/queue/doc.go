// Package queue persists transcode jobs in SQLite and provides the atomic
// claim operation workers use to dequeue. Jobs move through the status
// lifecycle queued → validating → normalizing → encoding → verifying →
// publishing → cleaning → complete, with failed_encoding as the side terminal
// once a stage's retry budget is exhausted.
package queue
