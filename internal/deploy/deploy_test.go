package deploy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fnpack/fnpack/internal/bench"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if got := cfg.DockerRepository; got == "" {
		t.Error("got empty DockerRepository")
	}
	for _, deployment := range []string{"aws", "azure", "gcp", "local"} {
		langCfg, err := cfg.Language(deployment, bench.LanguagePython)
		if err != nil {
			t.Fatalf("got %q err", err)
		}
		if got := len(langCfg.WrapperFiles); got == 0 {
			t.Errorf("got no wrapper files for %s python", deployment)
		}
		if !langCfg.HasImage("build") {
			t.Errorf("want a build image for %s python", deployment)
		}
	}
}

func TestLanguageConfigHasImage(t *testing.T) {
	langCfg := &LanguageConfig{Images: []string{"build", "function"}}

	if !langCfg.HasImage("build") {
		t.Error("want build image")
	}
	if langCfg.HasImage("runtime") {
		t.Error("didn't want runtime image")
	}
	if (&LanguageConfig{}).HasImage("build") {
		t.Error("didn't want build image without images")
	}
}

func TestReadConfig(t *testing.T) {
	t.Run("overlays the default config", func(t *testing.T) {
		name := filepath.Join(t.TempDir(), "deploy.yaml")
		data := `docker_repository: example/builders
deployments:
  openwhisk:
    languages:
      python:
        wrapper_files:
          - handler.py
        packages:
          requests: "2.31.0"
`
		if err := os.WriteFile(name, []byte(data), 0o666); err != nil {
			t.Fatalf("got %q err", err)
		}

		cfg, err := ReadConfig(name)
		if err != nil {
			t.Fatalf("got %q err", err)
		}
		if got, want := cfg.DockerRepository, "example/builders"; got != want {
			t.Errorf("got %q DockerRepository, want %q", got, want)
		}

		langCfg, err := cfg.Language("openwhisk", bench.LanguagePython)
		if err != nil {
			t.Fatalf("got %q err", err)
		}
		if got, want := langCfg.Packages["requests"], "2.31.0"; got != want {
			t.Errorf("got %q requests version, want %q", got, want)
		}

		// The built-in deployments survive the overlay.
		if _, err = cfg.Language("aws", bench.LanguageNodeJS); err != nil {
			t.Errorf("got %q err", err)
		}
	})

	t.Run("rejects an empty docker repository", func(t *testing.T) {
		name := filepath.Join(t.TempDir(), "deploy.yaml")
		if err := os.WriteFile(name, []byte(`docker_repository: ""`), 0o666); err != nil {
			t.Fatalf("got %q err", err)
		}

		if _, err := ReadConfig(name); err == nil {
			t.Fatal("want err")
		}
	})

	t.Run("fails without the file", func(t *testing.T) {
		if _, err := ReadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Fatal("want err")
		}
	})
}

func TestConfigLanguage(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("reports an unknown deployment", func(t *testing.T) {
		_, err := cfg.Language("openwhisk", bench.LanguagePython)
		if !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("got %v err, want %v", err, ErrNotConfigured)
		}
	})

	t.Run("reports an unknown language", func(t *testing.T) {
		_, err := cfg.Language("aws", bench.Language("java"))
		if !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("got %v err, want %v", err, ErrNotConfigured)
		}
	})
}

func TestConfigBuildImage(t *testing.T) {
	cfg := &Config{DockerRepository: "example/builders"}

	got := cfg.BuildImage("aws", bench.LanguagePython, "3.8")
	if want := "example/builders:build.aws.python.3.8"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
