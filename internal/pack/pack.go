package pack

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fnpack/fnpack/internal/bench"
	"github.com/fnpack/fnpack/internal/ziputil"
)

var ErrNotArchive = errors.New("code package is not an archive")

// Package is a benchmark code package for one deployment and language.
type Package struct {
	Benchmark       string
	Deployment      string
	Language        bench.Language
	LanguageVersion string
	Workflow        bool

	// SourceDir is the benchmark's root directory.
	SourceDir string
	// Config is the benchmark's config.json.
	Config *bench.Config

	// Hash is the content hash of the package's source files.
	Hash string
	// Location is the built artifact, a directory or a zip archive.
	// It is empty until the package is built or loaded from cache.
	Location string
	// Size is the artifact size in bytes.
	Size int64
}

// LanguageDir is the benchmark's implementation directory for the
// package's language.
func (p *Package) LanguageDir() string {
	return filepath.Join(p.SourceDir, string(p.Language))
}

// IsArchive reports whether the built artifact is a zip archive
// rather than a directory.
func (p *Package) IsArchive() bool {
	return ziputil.IsArchive(p.Location)
}

// Modify rewrites one file of the built archive package and refreshes
// the recorded size. Directory packages can't be modified this way.
func (p *Package) Modify(name string, data []byte) error {
	if p.Location == "" {
		return errors.New("pack.Package: not built")
	}
	if !p.IsArchive() {
		return fmt.Errorf("pack.Package: %q: %w", p.Location, ErrNotArchive)
	}
	if err := ziputil.PatchEntry(p.Location, name, data); err != nil {
		return fmt.Errorf("pack.Package: %w", err)
	}
	if _, err := p.RecomputeSize(); err != nil {
		return err
	}
	slog.Info("modified code package", "location", p.Location, "entry", name, "size", p.Size)
	return nil
}

// RecomputeSize refreshes the recorded artifact size from disk
// and returns it.
func (p *Package) RecomputeSize() (int64, error) {
	size, err := artifactSize(p.Location)
	if err != nil {
		return 0, fmt.Errorf("pack.Package: %w", err)
	}
	p.Size = size
	return size, nil
}

func artifactSize(location string) (int64, error) {
	info, err := os.Stat(location)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	return dirSize(location)
}

func dirSize(dir string) (int64, error) {
	var size int64
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return size, nil
}

func fileExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}
