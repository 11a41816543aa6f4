package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEncoding()
	c.normalizeWorkflow()
	c.normalizeStorage()
	c.normalizeMetadata()
	c.normalizeIntake()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.IncomingDir, err = expandPath(c.Paths.IncomingDir); err != nil {
		return fmt.Errorf("paths.incoming_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	return nil
}

func (c *Config) normalizeEncoding() {
	if c.Encoding.SegmentSeconds <= 0 {
		c.Encoding.SegmentSeconds = defaultSegmentSeconds
	}
	if c.Encoding.AudioBitrateKbps <= 0 {
		c.Encoding.AudioBitrateKbps = defaultAudioBitrateKbps
	}
	if c.Encoding.AudioChannels <= 0 {
		c.Encoding.AudioChannels = defaultAudioChannels
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Workers < 0 {
		c.Workflow.Workers = 0
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.Workflow.JobTimeoutMinutes < 0 {
		c.Workflow.JobTimeoutMinutes = 0
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = defaultStorageRegion
	}
	c.Storage.AccessKeyID = strings.TrimSpace(c.Storage.AccessKeyID)
	if c.Storage.AccessKeyID == "" {
		if value, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok {
			c.Storage.AccessKeyID = strings.TrimSpace(value)
		}
	}
	c.Storage.SecretAccessKey = strings.TrimSpace(c.Storage.SecretAccessKey)
	if c.Storage.SecretAccessKey == "" {
		if value, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok {
			c.Storage.SecretAccessKey = strings.TrimSpace(value)
		}
	}
	c.Storage.KeyPrefix = strings.Trim(strings.TrimSpace(c.Storage.KeyPrefix), "/")
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = defaultStorageKeyPrefix
	}
	if c.Storage.RequestTimeout <= 0 {
		c.Storage.RequestTimeout = defaultStorageRequestTimeout
	}
}

func (c *Config) normalizeMetadata() {
	c.Metadata.SaveURL = strings.TrimSpace(c.Metadata.SaveURL)
	c.Metadata.AuthToken = strings.TrimSpace(c.Metadata.AuthToken)
	if c.Metadata.AuthToken == "" {
		if value, ok := os.LookupEnv("HLSFORGE_METADATA_TOKEN"); ok {
			c.Metadata.AuthToken = strings.TrimSpace(value)
		}
	}
	if c.Metadata.RequestTimeout <= 0 {
		c.Metadata.RequestTimeout = defaultMetadataRequestTimeout
	}
}

func (c *Config) normalizeIntake() {
	if c.Intake.MinStableSeconds <= 0 {
		c.Intake.MinStableSeconds = defaultIntakeMinStableSeconds
	}
	if len(c.Intake.Extensions) == 0 {
		c.Intake.Extensions = defaultIntakeExtensions()
		return
	}
	exts := make([]string, 0, len(c.Intake.Extensions))
	seen := make(map[string]struct{}, len(c.Intake.Extensions))
	for _, ext := range c.Intake.Extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = defaultIntakeExtensions()
	}
	c.Intake.Extensions = exts
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
