package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEncoding(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateMetadata(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.WorkDir == c.Paths.OutputDir {
		return errors.New("paths.work_dir and paths.output_dir must differ")
	}
	return nil
}

func (c *Config) validateEncoding() error {
	if c.Encoding.SegmentSeconds <= 0 {
		return errors.New("encoding.segment_seconds must be positive")
	}
	if c.Encoding.AudioChannels <= 0 {
		return errors.New("encoding.audio_channels must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval": c.Workflow.QueuePollInterval,
		"workflow.heartbeat_interval":  c.Workflow.HeartbeatInterval,
		"workflow.heartbeat_timeout":   c.Workflow.HeartbeatTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/hlsforge/config.toml"
		}
		return fmt.Errorf("storage.bucket is required. Edit %s (create with 'hlsforge config init')", defaultPath)
	}
	if strings.TrimSpace(c.Storage.AccessKeyID) == "" {
		return errors.New("storage.access_key_id is required (or set AWS_ACCESS_KEY_ID)")
	}
	if strings.TrimSpace(c.Storage.SecretAccessKey) == "" {
		return errors.New("storage.secret_access_key is required (or set AWS_SECRET_ACCESS_KEY)")
	}
	return nil
}

func (c *Config) validateMetadata() error {
	if !c.Metadata.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Metadata.SaveURL) == "" {
		return errors.New("metadata.save_url must be set when metadata.enabled is true")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
