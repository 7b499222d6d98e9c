package config

// Environment variables read by ApplyEnv.
const (
	EnvBuildCommand  = "ZIRCON_BUILD_COMMAND"
	EnvGitToken      = "ZIRCON_GIT_TOKEN"
	EnvLogLevel      = "ZIRCON_LOG_LEVEL"
	EnvNoUpdateCheck = "ZIRCON_NO_UPDATE_CHECK"
)

// Default configuration values.
const (
	DefaultToolchainRepo  = "https://github.com/zirco-lang/zrc.git"
	DefaultSelfRepo       = "https://github.com/zirco-lang/zircon.git"
	DefaultReleaseBaseURL = "https://github.com/zirco-lang/zrc/releases/download"
	DefaultBuildCommand   = "cargo build --release"
)

// Default returns a Config with only defaults applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.ToolchainRepo == "" {
		cfg.ToolchainRepo = DefaultToolchainRepo
	}
	if cfg.SelfRepo == "" {
		cfg.SelfRepo = DefaultSelfRepo
	}
	if cfg.ReleaseBaseURL == "" {
		cfg.ReleaseBaseURL = DefaultReleaseBaseURL
	}
	if cfg.BuildCommand == "" {
		cfg.BuildCommand = DefaultBuildCommand
	}
	if cfg.UpdateCheck == nil {
		on := true
		cfg.UpdateCheck = &on
	}
}
