package config

const (
	defaultWorkDir            = "~/.local/share/refbuild/work"
	defaultDownloadBaseURL    = "https://api.ncbi.nlm.nih.gov/datasets/v2alpha"
	defaultDownloadTimeout    = 600
	defaultMaxAttempts        = 3
	defaultBackoffUnitSeconds = 50
	defaultProgressInterval   = 100
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
		},
		Download: Download{
			BaseURL:            defaultDownloadBaseURL,
			TimeoutSeconds:     defaultDownloadTimeout,
			MaxAttempts:        defaultMaxAttempts,
			BackoffUnitSeconds: defaultBackoffUnitSeconds,
			ProgressInterval:   defaultProgressInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
