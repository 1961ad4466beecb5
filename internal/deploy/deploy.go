package deploy

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fnpack/fnpack/internal/bench"
)

var ErrNotConfigured = errors.New("deployment not configured")

// LanguageConfig describes how a deployment packages one language:
// the wrapper files copied into every code package, the extra packages
// merged into the package's dependency manifest, and the kinds of Docker
// images the deployment provides for the language.
// An empty package version means the latest available version.
type LanguageConfig struct {
	WrapperFiles []string          `yaml:"wrapper_files"`
	Packages     map[string]string `yaml:"packages"`
	Images       []string          `yaml:"images"`
}

// HasImage reports whether the deployment provides a Docker image of the
// given kind for the language, like "build".
func (l *LanguageConfig) HasImage(kind string) bool {
	for _, img := range l.Images {
		if img == kind {
			return true
		}
	}
	return false
}

// DeploymentConfig describes one target platform.
type DeploymentConfig struct {
	Languages map[bench.Language]*LanguageConfig `yaml:"languages"`
}

// Config is the packaging system config: the Docker repository holding
// the dependency build images and the per-deployment packaging rules.
type Config struct {
	DockerRepository string                       `yaml:"docker_repository"`
	Deployments      map[string]*DeploymentConfig `yaml:"deployments"`
}

// DefaultConfig returns the config for the built-in deployments.
func DefaultConfig() *Config {
	return &Config{
		DockerRepository: "fnpack",
		Deployments: map[string]*DeploymentConfig{
			"aws": {
				Languages: map[bench.Language]*LanguageConfig{
					bench.LanguagePython: {
						WrapperFiles: []string{"handler_function.py", "handler_workflow.py", "storage.py"},
						Images:       []string{"build"},
					},
					bench.LanguageNodeJS: {
						WrapperFiles: []string{"handler.js", "storage.js"},
						Packages:     map[string]string{"uuid": "3.4.0"},
						Images:       []string{"build"},
					},
				},
			},
			"azure": {
				Languages: map[bench.Language]*LanguageConfig{
					bench.LanguagePython: {
						WrapperFiles: []string{"handler_function.py", "handler_workflow.py", "storage.py"},
						Packages:     map[string]string{"azure-storage-blob": ""},
						Images:       []string{"build"},
					},
					bench.LanguageNodeJS: {
						WrapperFiles: []string{"handler.js", "storage.js"},
						Packages:     map[string]string{"@azure/storage-blob": ""},
						Images:       []string{"build"},
					},
				},
			},
			"gcp": {
				Languages: map[bench.Language]*LanguageConfig{
					bench.LanguagePython: {
						WrapperFiles: []string{"handler_function.py", "handler_workflow.py", "storage.py"},
						Packages:     map[string]string{"google-cloud-storage": ""},
						Images:       []string{"build"},
					},
					bench.LanguageNodeJS: {
						WrapperFiles: []string{"handler.js", "storage.js"},
						Packages:     map[string]string{"@google-cloud/storage": ""},
						Images:       []string{"build"},
					},
				},
			},
			"local": {
				Languages: map[bench.Language]*LanguageConfig{
					bench.LanguagePython: {
						WrapperFiles: []string{"handler_function.py", "handler_workflow.py", "storage.py"},
						Images:       []string{"build"},
					},
					bench.LanguageNodeJS: {
						WrapperFiles: []string{"handler.js", "storage.js"},
						Images:       []string{"build"},
					},
				},
			},
		},
	}
}

// ReadConfig reads the system config from the YAML file at name,
// overlaying DefaultConfig. A deployment in the file replaces the
// default deployment with the same name.
func ReadConfig(name string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read deploy config: %w", err)
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("read deploy config: %w", err)
	}

	if cfg.DockerRepository == "" {
		return nil, errors.New("read deploy config: docker repository is empty")
	}

	return cfg, nil
}

// Language returns the packaging rules for the deployment and language.
func (c *Config) Language(deployment string, language bench.Language) (*LanguageConfig, error) {
	d, ok := c.Deployments[deployment]
	if !ok {
		return nil, fmt.Errorf("deployment %q: %w", deployment, ErrNotConfigured)
	}
	l, ok := d.Languages[language]
	if !ok || l == nil {
		return nil, fmt.Errorf("deployment %q language %q: %w", deployment, language, ErrNotConfigured)
	}
	return l, nil
}

// BuildImage returns the Docker image reference of the dependency build
// image for the deployment, language, and language version.
func (c *Config) BuildImage(deployment string, language bench.Language, version string) string {
	return fmt.Sprintf("%s:build.%s.%s.%s", c.DockerRepository, deployment, language, version)
}
