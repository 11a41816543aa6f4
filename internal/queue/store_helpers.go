package queue

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, video_id, source_path, normalized_path, output_dir, status, error_kind, error_message, normalize_retries, encode_retries, publish_retries, duration_seconds, created_at, updated_at, progress_stage, progress_percent, progress_message, last_heartbeat"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id               int64
		videoID          string
		sourcePath       string
		normalizedPath   sql.NullString
		outputDir        sql.NullString
		statusStr        string
		errorKind        sql.NullString
		errorMessage     sql.NullString
		normalizeRetries int
		encodeRetries    int
		publishRetries   int
		durationSeconds  float64
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		progressStage    sql.NullString
		progressPercent  sql.NullFloat64
		progressMessage  sql.NullString
		lastHeartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&videoID,
		&sourcePath,
		&normalizedPath,
		&outputDir,
		&statusStr,
		&errorKind,
		&errorMessage,
		&normalizeRetries,
		&encodeRetries,
		&publishRetries,
		&durationSeconds,
		&createdRaw,
		&updatedRaw,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:               id,
		VideoID:          videoID,
		SourcePath:       sourcePath,
		NormalizedPath:   normalizedPath.String,
		OutputDir:        outputDir.String,
		Status:           Status(statusStr),
		ErrorKind:        errorKind.String,
		ErrorMessage:     errorMessage.String,
		NormalizeRetries: normalizeRetries,
		EncodeRetries:    encodeRetries,
		PublishRetries:   publishRetries,
		DurationSeconds:  durationSeconds,
		ProgressStage:    progressStage.String,
		ProgressPercent:  progressPercent.Float64,
		ProgressMessage:  progressMessage.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
