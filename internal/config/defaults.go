package config

const (
	defaultStateDir                 = "~/.local/share/gavel/state"
	defaultArtifactDir              = "~/.local/share/gavel/artifacts"
	defaultGateQueueDir             = "~/.local/share/gavel/review_queue"
	defaultLogDir                   = "~/.local/share/gavel/logs"
	defaultStoreBackend             = BackendSQLite
	defaultBusyTimeoutMS            = 5000
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultConfidenceThreshold      = 0.70
	defaultAssumptionDriftThreshold = 0.20
	defaultLeaseTimeoutSeconds      = 10
	defaultSweepDebounceMillis      = 500
	defaultNotifyRequestTimeout     = 10
)

// Store backend names.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:     defaultStateDir,
			ArtifactDirs: []string{defaultArtifactDir},
			GateQueueDir: defaultGateQueueDir,
			LogDir:       defaultLogDir,
		},
		Store: Store{
			Backend:       defaultStoreBackend,
			BusyTimeoutMS: defaultBusyTimeoutMS,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Escalation: Escalation{
			ConfidenceThreshold:      defaultConfidenceThreshold,
			AssumptionDriftThreshold: defaultAssumptionDriftThreshold,
			StderrAlerts:             true,
		},
		Enforcement: Enforcement{
			AuditOnTransition:   true,
			LeaseTimeoutSeconds: defaultLeaseTimeoutSeconds,
			SweepDebounceMillis: defaultSweepDebounceMillis,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Critical:       true,
			High:           true,
		},
	}
}
