package config

const (
	defaultConfigPath                   = "~/.config/meetingflow/config.toml"
	defaultDataDir                      = "~/.local/share/meetingflow"
	defaultLogDir                       = "~/.local/share/meetingflow/logs"
	defaultStoreDriver                  = "sqlite"
	defaultStoreMaxConns                = 10
	defaultStoreMinConns                = 1
	defaultStoreAcquireTimeout          = 5
	defaultStoreClaimBatch              = 8
	defaultBlobBackend                  = "s3"
	defaultBlobRegion                   = "us-east-1"
	defaultBlobPresignTTL               = 3600
	defaultAudioFolder                  = "audio"
	defaultTraceFolder                  = "trace"
	defaultTranscriptionFolder          = "transcription"
	defaultReportFolder                 = "report"
	defaultUploadMaxConcurrent          = 4
	defaultUploadTimeout                = 120
	defaultSegmentPattern               = "*.weba"
	defaultCaptureStatusPollInterval    = 1
	defaultCaptureConnectTimeout        = 10
	defaultCaptureMaxFailedUploadRatio  = 0.2
	defaultInferenceRequestTimeout      = 900
	defaultDownstreamRequestTimeout     = 10
	defaultAuthIssuer                   = "meetingflow"
	defaultAuthTokenTTL                 = 5
	defaultNotificationsChannelPrefix   = "meetingflow"
	defaultWorkflowQueuePollInterval    = 2
	defaultWorkflowErrorRetryInterval   = 10
	defaultWorkflowHeartbeatInterval    = 15
	defaultWorkflowHeartbeatTimeout     = 120
	defaultWorkflowCaptureWorkers       = 1
	defaultWorkflowTranscriptionWorkers = 1
	defaultWorkflowReportWorkers        = 1
	defaultTranscriptionAverageDuration = 600
	defaultLogFormat                    = "console"
	defaultLogLevel                     = "info"
	defaultLogRetentionDays             = 14
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Store: Store{
			Driver:         defaultStoreDriver,
			MaxConns:       defaultStoreMaxConns,
			MinConns:       defaultStoreMinConns,
			AcquireTimeout: defaultStoreAcquireTimeout,
			ClaimBatch:     defaultStoreClaimBatch,
		},
		Blob: Blob{
			Backend:             defaultBlobBackend,
			Region:              defaultBlobRegion,
			PresignTTL:          defaultBlobPresignTTL,
			AudioFolder:         defaultAudioFolder,
			TraceFolder:         defaultTraceFolder,
			TranscriptionFolder: defaultTranscriptionFolder,
			ReportFolder:        defaultReportFolder,
		},
		Upload: Upload{
			MaxConcurrent: defaultUploadMaxConcurrent,
			Timeout:       defaultUploadTimeout,
		},
		Capture: Capture{
			SegmentPattern:       defaultSegmentPattern,
			StatusPollInterval:   defaultCaptureStatusPollInterval,
			ConnectTimeout:       defaultCaptureConnectTimeout,
			MaxFailedUploadRatio: defaultCaptureMaxFailedUploadRatio,
		},
		Inference: Inference{
			RequestTimeout: defaultInferenceRequestTimeout,
		},
		Downstream: Downstream{
			RequestTimeout: defaultDownstreamRequestTimeout,
		},
		Auth: Auth{
			Issuer:   defaultAuthIssuer,
			TokenTTL: defaultAuthTokenTTL,
		},
		Notifications: Notifications{
			ChannelPrefix: defaultNotificationsChannelPrefix,
		},
		Workflow: Workflow{
			QueuePollInterval:            defaultWorkflowQueuePollInterval,
			ErrorRetryInterval:           defaultWorkflowErrorRetryInterval,
			HeartbeatInterval:            defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:             defaultWorkflowHeartbeatTimeout,
			AutoStartReport:              true,
			CaptureWorkers:               defaultWorkflowCaptureWorkers,
			TranscriptionWorkers:         defaultWorkflowTranscriptionWorkers,
			ReportWorkers:                defaultWorkflowReportWorkers,
			TranscriptionAverageDuration: defaultTranscriptionAverageDuration,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
