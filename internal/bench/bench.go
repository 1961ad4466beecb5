package bench

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var ErrNotFound = errors.New("benchmark not found")

// Language is a runtime language a benchmark can be implemented in.
type Language string

const (
	// LanguagePython selects the Python implementation of a benchmark.
	LanguagePython Language = "python"
	// LanguageNodeJS selects the Node.js implementation of a benchmark.
	LanguageNodeJS Language = "nodejs"
)

var knownLanguages = map[Language]struct{}{
	LanguagePython: {},
	LanguageNodeJS: {},
}

// LanguageFromString converts a string to a Language and checks if it is a known language.
// It returns the Language and a boolean indicating whether the language is known.
func LanguageFromString(s string) (language Language, known bool) {
	language = Language(s)
	_, known = knownLanguages[language]
	return language, known
}

// SourcePatterns returns the glob patterns of the files that make up
// a benchmark implementation in the language.
func (l Language) SourcePatterns() []string {
	switch l {
	case LanguagePython:
		return []string{"*.py", "requirements.txt*"}
	case LanguageNodeJS:
		return []string{"*.js", "package.json"}
	default:
		return nil
	}
}

// WrapperPattern returns the glob pattern that selects the language's
// deployment wrapper files.
func (l Language) WrapperPattern() string {
	switch l {
	case LanguagePython:
		return "*.py"
	case LanguageNodeJS:
		return "*.js"
	default:
		return ""
	}
}

// DependencyFile returns the name of the language's dependency manifest.
func (l Language) DependencyFile() string {
	switch l {
	case LanguagePython:
		return "requirements.txt"
	case LanguageNodeJS:
		return "package.json"
	default:
		return ""
	}
}

// Extension returns the language's source file extension including the dot.
func (l Language) Extension() string {
	switch l {
	case LanguagePython:
		return ".py"
	case LanguageNodeJS:
		return ".js"
	default:
		return ""
	}
}

// SupportPatterns are the glob patterns of the files every benchmark can carry
// regardless of language, like setup scripts and definitions.
var SupportPatterns = []string{"*.sh", "*.json"}

// Config is a benchmark's config.json.
type Config struct {
	Timeout   int        `json:"timeout"`
	Memory    int        `json:"memory"`
	Languages []Language `json:"languages"`
}

// Supports reports whether the benchmark has an implementation in the language.
func (c *Config) Supports(l Language) bool {
	for _, cl := range c.Languages {
		if cl == l {
			return true
		}
	}
	return false
}

const configFile = "config.json"

// ReadConfig reads and validates the benchmark's config.json in dir.
func ReadConfig(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		return nil, fmt.Errorf("read benchmark config: %w", err)
	}

	var cfg Config
	if err = json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("read benchmark config: %w", err)
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("read benchmark config: timeout is %d, want positive", cfg.Timeout)
	}
	if cfg.Memory <= 0 {
		return nil, fmt.Errorf("read benchmark config: memory is %d, want positive", cfg.Memory)
	}
	if len(cfg.Languages) == 0 {
		return nil, errors.New("read benchmark config: languages are empty")
	}
	for _, l := range cfg.Languages {
		if _, known := knownLanguages[l]; !known {
			return nil, fmt.Errorf("read benchmark config: unknown language %q", l)
		}
	}

	return &cfg, nil
}

// Find locates the directory of the named benchmark under root.
// Benchmarks are grouped one directory level deep, e.g. 100.webapps/110.dynamic-html,
// and benchmark names are unique across groups.
func Find(root, name string) (string, error) {
	groups, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("find benchmark %q: %w", name, ErrNotFound)
	} else if err != nil {
		return "", fmt.Errorf("find benchmark: %w", err)
	}

	for _, group := range groups {
		if !group.IsDir() {
			continue
		}
		dir := filepath.Join(root, group.Name(), name)
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			return dir, nil
		}
	}

	return "", fmt.Errorf("find benchmark %q: %w", name, ErrNotFound)
}
