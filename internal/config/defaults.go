package config

const (
	defaultIncomingDir            = "~/.local/share/hlsforge/incoming"
	defaultWorkDir                = "~/.local/share/hlsforge/work"
	defaultOutputDir              = "~/.local/share/hlsforge/output"
	defaultLogDir                 = "~/.local/share/hlsforge/logs"
	defaultSegmentSeconds         = 6
	defaultAudioBitrateKbps       = 128
	defaultAudioChannels          = 2
	defaultQueuePollInterval      = 5
	defaultHeartbeatInterval      = 15
	defaultHeartbeatTimeout       = 120
	defaultJobTimeoutMinutes      = 120
	defaultStorageRegion          = "auto"
	defaultStorageKeyPrefix       = "videos"
	defaultStorageRequestTimeout  = 300
	defaultMetadataRequestTimeout = 10
	defaultIntakeMinStableSeconds = 5
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 60
)

func defaultIntakeExtensions() []string {
	return []string{".mp4", ".mov", ".mkv", ".avi", ".webm"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			IncomingDir: defaultIncomingDir,
			WorkDir:     defaultWorkDir,
			OutputDir:   defaultOutputDir,
			LogDir:      defaultLogDir,
		},
		Encoding: Encoding{
			SegmentSeconds:   defaultSegmentSeconds,
			AudioBitrateKbps: defaultAudioBitrateKbps,
			AudioChannels:    defaultAudioChannels,
		},
		Workflow: Workflow{
			QueuePollInterval: defaultQueuePollInterval,
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
			JobTimeoutMinutes: defaultJobTimeoutMinutes,
		},
		Storage: Storage{
			Region:         defaultStorageRegion,
			KeyPrefix:      defaultStorageKeyPrefix,
			RequestTimeout: defaultStorageRequestTimeout,
		},
		Metadata: Metadata{
			RequestTimeout: defaultMetadataRequestTimeout,
		},
		Intake: Intake{
			Watch:            true,
			MinStableSeconds: defaultIntakeMinStableSeconds,
			Extensions:       defaultIntakeExtensions(),
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
