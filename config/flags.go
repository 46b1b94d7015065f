package config

import (
	"flag"
)

// Flags are the command-line overrides shared by all commands.
type Flags struct {
	Path     string
	Account  string
	LogLevel string
	Storage  string
}

// Register binds the flags to fs.
func (f *Flags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.Path, "config", "", "path to yaml config")
	fs.StringVar(&f.Account, "account", "", "account id, overrides account_id")
	fs.StringVar(&f.LogLevel, "loglevel", "", "log level: debug, info, warn, error")
	fs.StringVar(&f.Storage, "storage", "", "storage backend: wal, file or postgres")
}

// Resolve loads the config file and applies the flag overrides.
func (f *Flags) Resolve() (Config, error) {
	cfg, err := loadUnvalidated(f.Path)
	if err != nil {
		return Config{}, err
	}

	if f.Account != "" {
		cfg.AccountID = f.Account
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.Storage != "" {
		cfg.Storage.Backend = f.Storage
	}

	return cfg, cfg.Validate()
}
