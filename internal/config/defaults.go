package config

const (
	defaultTestDataDir        = "test_data"
	defaultTmpDir             = "tmp"
	defaultDataDir            = "data"
	defaultManifest           = "test_strict.csv"
	defaultLogDir             = "~/.local/share/rawbench/logs"
	defaultWorkers            = 1
	defaultHTTPTimeoutSeconds = 0
	defaultChecksumAlgorithm  = "md5"
	defaultHFEndpoint         = "https://huggingface.co"
	defaultHFRevision         = "main"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			TestDataDir: defaultTestDataDir,
			TmpDir:      defaultTmpDir,
			DataDir:     defaultDataDir,
			Manifest:    defaultManifest,
			LogDir:      defaultLogDir,
		},
		Fetch: Fetch{
			RetainTemp:         true,
			Workers:            defaultWorkers,
			HTTPTimeoutSeconds: defaultHTTPTimeoutSeconds,
			PreferExternal:     true,
			ShowProgress:       true,
		},
		Checksum: Checksum{
			Algorithm: defaultChecksumAlgorithm,
		},
		HuggingFace: HuggingFace{
			Endpoint: defaultHFEndpoint,
			Revision: defaultHFRevision,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
