package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a transcode job.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusValidating  Status = "validating"
	StatusNormalizing Status = "normalizing"
	StatusEncoding    Status = "encoding"
	StatusVerifying   Status = "verifying"
	StatusPublishing  Status = "publishing"
	StatusCleaning    Status = "cleaning"
	StatusComplete    Status = "complete"
	StatusFailed      Status = "failed_encoding"
)

// DaemonStopReason is the progress message set when jobs are interrupted by
// daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusQueued,
	StatusValidating,
	StatusNormalizing,
	StatusEncoding,
	StatusVerifying,
	StatusPublishing,
	StatusCleaning,
	StatusComplete,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusValidating:  {},
	StatusNormalizing: {},
	StatusEncoding:    {},
	StatusVerifying:   {},
	StatusPublishing:  {},
	StatusCleaning:    {},
}

// ProcessingStatuses returns the statuses that indicate a worker owns the job.
func ProcessingStatuses() []Status {
	out := make([]Status, 0, len(processingStatuses))
	for _, status := range allStatuses {
		if _, ok := processingStatuses[status]; ok {
			out = append(out, status)
		}
	}
	return out
}

// Job represents a transcode request persisted in SQLite. Only the workflow
// runner mutates jobs once they leave the queued state.
type Job struct {
	ID               int64
	VideoID          string
	SourcePath       string
	NormalizedPath   string
	OutputDir        string
	Status           Status
	ErrorKind        string
	ErrorMessage     string
	NormalizeRetries int
	EncodeRetries    int
	PublishRetries   int
	DurationSeconds  float64
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ProgressStage    string
	ProgressPercent  float64
	ProgressMessage  string
	LastHeartbeat    *time.Time
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Queued     int
	Processing int
	Failed     int
	Complete   int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the status is a settled outcome.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// IsProcessing returns true when the status reflects an in-flight stage.
func (j Job) IsProcessing() bool {
	_, ok := processingStatuses[j.Status]
	return ok
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// SetProgress updates all three progress fields together.
func (j *Job) SetProgress(stage, message string, percent float64) {
	j.ProgressStage = stage
	j.ProgressMessage = message
	j.ProgressPercent = percent
}

// InitProgress resets progress fields at the start of a stage and clears any
// stale error detail from a prior attempt.
func (j *Job) InitProgress(stage, message string) {
	j.SetProgress(stage, message, 0)
	j.ErrorKind = ""
	j.ErrorMessage = ""
}

// SetFailed marks the job as failed with the given error classification.
// The failed terminal always carries the last error kind and message.
func (j *Job) SetFailed(kind, message string) {
	j.Status = StatusFailed
	j.ErrorKind = kind
	j.ErrorMessage = message
	j.ProgressStage = "Failed"
	j.ProgressMessage = message
	j.ProgressPercent = 0
	j.LastHeartbeat = nil
}

// RetriesFor returns the recorded retry count for the stage that owns the
// given status. Encoding and verifying share one budget.
func (j Job) RetriesFor(status Status) int {
	switch status {
	case StatusNormalizing:
		return j.NormalizeRetries
	case StatusEncoding, StatusVerifying:
		return j.EncodeRetries
	case StatusPublishing:
		return j.PublishRetries
	default:
		return 0
	}
}

// RecordRetry increments the retry counter owned by the given status.
func (j *Job) RecordRetry(status Status) {
	switch status {
	case StatusNormalizing:
		j.NormalizeRetries++
	case StatusEncoding, StatusVerifying:
		j.EncodeRetries++
	case StatusPublishing:
		j.PublishRetries++
	}
}
