package main

import (
	"github.com/caarlos0/env/v11"
)

// config holds the application configuration.
type config struct {
	Development     bool   `env:"FNPACK_DEVELOPMENT"`
	BenchmarksDir   string `env:"FNPACK_BENCHMARKS_DIR" envDefault:"benchmarks"`
	DataDir         string `env:"FNPACK_DATA_DIR" envDefault:"benchmarks-data"`
	OutputDir       string `env:"FNPACK_OUTPUT_DIR" envDefault:"cache"`
	CacheFile       string `env:"FNPACK_CACHE_FILE" envDefault:"cache/packages.db"`
	DeployFile      string `env:"FNPACK_DEPLOY_FILE"`
	StorageURL      string `env:"FNPACK_STORAGE_URL"`
	InstallStrategy string `env:"FNPACK_INSTALL_STRATEGY" envDefault:"mount"`
}

// parseConfig parses the application configuration from the environment variables.
func parseConfig(environ []string) (*config, error) {
	var cfg config

	err := env.ParseWithOptions(&cfg, env.Options{
		Environment: env.ToMap(environ),
	})
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
