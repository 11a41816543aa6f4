package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	IncomingDir string `toml:"incoming_dir"`
	WorkDir     string `toml:"work_dir"`
	OutputDir   string `toml:"output_dir"`
	LogDir      string `toml:"log_dir"`
}

// Tools contains external tool binary locations.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
}

// Encoding contains transcode parameters shared by every job.
type Encoding struct {
	SegmentSeconds   int `toml:"segment_seconds"`
	AudioBitrateKbps int `toml:"audio_bitrate_kbps"`
	AudioChannels    int `toml:"audio_channels"`
}

// Workflow contains daemon scheduling configuration.
type Workflow struct {
	Workers           int `toml:"workers"`
	QueuePollInterval int `toml:"queue_poll_interval"`
	HeartbeatInterval int `toml:"heartbeat_interval"`
	HeartbeatTimeout  int `toml:"heartbeat_timeout"`
	JobTimeoutMinutes int `toml:"job_timeout_minutes"`
}

// Storage contains object store connection settings. The endpoint is any
// S3-compatible service (R2, MinIO, AWS).
type Storage struct {
	Endpoint        string `toml:"endpoint"`
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	KeyPrefix       string `toml:"key_prefix"`
	RequestTimeout  int    `toml:"request_timeout"`
}

// Metadata contains the external metadata store save endpoint.
type Metadata struct {
	Enabled        bool   `toml:"enabled"`
	SaveURL        string `toml:"save_url"`
	AuthToken      string `toml:"auth_token"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Intake contains watch-folder configuration.
type Intake struct {
	Watch            bool     `toml:"watch"`
	MinStableSeconds int      `toml:"min_stable_seconds"`
	Extensions       []string `toml:"extensions"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for hlsforge.
//
// Configuration sections by subsystem:
//   - Paths: incoming uploads, per-job work space, encoded output, logs
//   - Tools: ffmpeg/ffprobe binary locations
//   - Encoding: segment length and audio parameters
//   - Workflow: worker pool size, polling, heartbeats, job time budget
//   - Storage: S3-compatible object store for published streams
//   - Metadata: external store notified when a stream is published
//   - Intake: watch-folder enqueueing
//   - Logging: log format, level, and retention
type Config struct {
	Paths    Paths    `toml:"paths"`
	Tools    Tools    `toml:"tools"`
	Encoding Encoding `toml:"encoding"`
	Workflow Workflow `toml:"workflow"`
	Storage  Storage  `toml:"storage"`
	Metadata Metadata `toml:"metadata"`
	Intake   Intake   `toml:"intake"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/hlsforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("hlsforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.IncomingDir, c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used for normalization and
// ladder encoding.
func (c *Config) FFmpegBinary() string {
	if strings.TrimSpace(c.Tools.FFmpeg) != "" {
		return c.Tools.FFmpeg
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable used for stream inspection.
func (c *Config) FFprobeBinary() string {
	if strings.TrimSpace(c.Tools.FFprobe) != "" {
		return c.Tools.FFprobe
	}
	return "ffprobe"
}

// WorkerCount returns the effective worker pool size. Zero means one worker
// per available CPU core.
func (c *Config) WorkerCount() int {
	if c.Workflow.Workers > 0 {
		return c.Workflow.Workers
	}
	return runtime.NumCPU()
}

// JobTimeout returns the overall per-job time budget. Zero disables the budget.
func (c *Config) JobTimeout() time.Duration {
	if c.Workflow.JobTimeoutMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Workflow.JobTimeoutMinutes) * time.Minute
}

// QueueDatabasePath returns the SQLite database location under the work dir.
func (c *Config) QueueDatabasePath() string {
	return filepath.Join(c.Paths.WorkDir, "hlsforge.db")
}

// DaemonLockPath returns the flock path guarding single-instance execution.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.WorkDir, "hlsforge.lock")
}

// JobWorkDir returns the exclusive scratch directory for one job.
func (c *Config) JobWorkDir(videoID string) string {
	return filepath.Join(c.Paths.WorkDir, "jobs", videoID)
}

// JobOutputDir returns the encoded output tree root for one job.
func (c *Config) JobOutputDir(videoID string) string {
	return filepath.Join(c.Paths.OutputDir, videoID)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
