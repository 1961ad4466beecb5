package pack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/docker/docker/client"

	"github.com/fnpack/fnpack/internal/bench"
	"github.com/fnpack/fnpack/internal/deploy"
)

var ErrLanguageUnsupported = errors.New("language not supported")

// Builder builds benchmark code packages and keeps the package cache
// in sync with the built artifacts.
type Builder struct {
	Cache  Cache          // required
	Docker *client.Client // required
	Deploy *deploy.Config // required

	// BenchmarksRoot is the directory that holds the benchmark groups
	// and the wrappers tree.
	BenchmarksRoot string // required
	// OutputRoot is the scratch area package directories are assembled in.
	OutputRoot string // required

	Strategy InstallStrategy
}

type BuilderLoadParams struct {
	Benchmark       string
	Deployment      string
	Language        bench.Language
	LanguageVersion string
	Workflow        bool
}

// Load locates the benchmark and prepares an unbuilt code package for it,
// with the content hash of its sources already computed.
func (b *Builder) Load(params *BuilderLoadParams) (*Package, error) {
	sourceDir, err := bench.Find(b.BenchmarksRoot, params.Benchmark)
	if err != nil {
		return nil, fmt.Errorf("pack.Builder: %w", err)
	}

	cfg, err := bench.ReadConfig(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("pack.Builder: %w", err)
	}
	if !cfg.Supports(params.Language) {
		return nil, fmt.Errorf("pack.Builder: benchmark %q language %q: %w", params.Benchmark, params.Language, ErrLanguageUnsupported)
	}
	if _, err = b.Deploy.Language(params.Deployment, params.Language); err != nil {
		return nil, fmt.Errorf("pack.Builder: %w", err)
	}

	p := &Package{
		Benchmark:       params.Benchmark,
		Deployment:      params.Deployment,
		Language:        params.Language,
		LanguageVersion: params.LanguageVersion,
		Workflow:        params.Workflow,
		SourceDir:       sourceDir,
		Config:          cfg,
	}

	hash, err := Hash(p.LanguageDir(), b.wrapperDir(p.Deployment, p.Language), p.Language)
	if err != nil {
		return nil, fmt.Errorf("pack.Builder: %w", err)
	}
	p.Hash = hash

	return p, nil
}

// BuildFunc finalizes an assembled code package for a target platform,
// e.g. by zipping the directory or rearranging the handler, and returns
// the artifact it produced. A zero Size means the size of Location on disk.
type BuildFunc func(ctx context.Context, params *BuildFuncParams) (*BuildFuncResult, error)

type BuildFuncParams struct {
	// Dir is the absolute path of the assembled package directory.
	Dir             string
	Benchmark       string
	Language        bench.Language
	LanguageVersion string
	Workflow        bool
}

type BuildFuncResult struct {
	Location string
	Size     int64
}

type BuilderBuildParams struct {
	Benchmark       string
	Deployment      string
	Language        bench.Language
	LanguageVersion string
	Workflow        bool

	// ForceRebuild makes an existing cache entry stale regardless of
	// its hash.
	ForceRebuild bool
	// BuildFunc finalizes the package for the target platform.
	// A nil BuildFunc leaves the assembled directory as the artifact.
	BuildFunc BuildFunc
}

type BuilderBuildResult struct {
	Package *Package
	// Rebuilt reports whether the package was rebuilt instead of
	// reused from cache.
	Rebuilt bool
}

// Build returns the benchmark's code package for the deployment and
// language, building it unless a valid cached build exists.
func (b *Builder) Build(ctx context.Context, params *BuilderBuildParams) (*BuilderBuildResult, error) {
	p, err := b.Load(&BuilderLoadParams{
		Benchmark:       params.Benchmark,
		Deployment:      params.Deployment,
		Language:        params.Language,
		LanguageVersion: params.LanguageVersion,
		Workflow:        params.Workflow,
	})
	if err != nil {
		return nil, err
	}

	entry, err := b.getEntry(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("pack.Builder: %w", err)
	}

	status := ResolveCacheStatus(entry, p.Hash, params.ForceRebuild)
	if status == CacheValid {
		p.Location = entry.Location
		p.Size = entry.Size
		slog.Info("code package is cached",
			"benchmark", p.Benchmark, "deployment", p.Deployment, "language", p.Language)
		return &BuilderBuildResult{Package: p, Rebuilt: false}, nil
	}
	slog.Info("building code package",
		"benchmark", p.Benchmark, "deployment", p.Deployment, "language", p.Language, "cache", status)

	// Recreate the package directory.
	dir := b.packageDir(p)
	if err = os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("pack.Builder: %w", err)
	}
	if err = os.MkdirAll(dir, 0o777); err != nil {
		return nil, fmt.Errorf("pack.Builder: %w", err)
	}

	langCfg, err := b.Deploy.Language(p.Deployment, p.Language)
	if err != nil {
		return nil, fmt.Errorf("pack.Builder: %w", err)
	}

	if err = copyCode(p.LanguageDir(), p.SourceDir, dir, p.Language); err != nil {
		return nil, fmt.Errorf("pack.Builder: %w", err)
	}
	if err = runSetupScripts(ctx, p.SourceDir, p.LanguageDir(), dir); err != nil {
		return nil, fmt.Errorf("pack.Builder: %w", err)
	}
	if err = installWrappers(b.wrapperDir(p.Deployment, p.Language), dir, p.Language, p.Workflow, langCfg.WrapperFiles); err != nil {
		return nil, fmt.Errorf("pack.Builder: %w", err)
	}
	if err = mergeDependencies(dir, p.Language, langCfg.Packages); err != nil {
		return nil, fmt.Errorf("pack.Builder: %w", err)
	}
	if err = b.installDependencies(ctx, p, langCfg, dir); err != nil {
		return nil, fmt.Errorf("pack.Builder: %w", err)
	}

	location, size := dir, int64(0)
	if params.BuildFunc != nil {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("pack.Builder: %w", err)
		}
		res, err := params.BuildFunc(ctx, &BuildFuncParams{
			Dir:             absDir,
			Benchmark:       p.Benchmark,
			Language:        p.Language,
			LanguageVersion: p.LanguageVersion,
			Workflow:        p.Workflow,
		})
		if err != nil {
			return nil, fmt.Errorf("pack.Builder: %w", err)
		}
		location, size = res.Location, res.Size
	}
	if size == 0 {
		if size, err = artifactSize(location); err != nil {
			return nil, fmt.Errorf("pack.Builder: %w", err)
		}
	}
	p.Location = location
	p.Size = size

	if entry == nil {
		_, err = b.Cache.CreateEntry(ctx, &CacheCreateEntryParams{
			Deployment: p.Deployment,
			Benchmark:  p.Benchmark,
			Language:   p.Language,
			Hash:       p.Hash,
			Size:       p.Size,
			Location:   p.Location,
		})
	} else {
		_, err = b.Cache.UpdateEntry(ctx, &CacheUpdateEntryParams{
			Deployment: p.Deployment,
			Benchmark:  p.Benchmark,
			Language:   p.Language,
			Hash:       p.Hash,
			Size:       p.Size,
			Location:   p.Location,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("pack.Builder: %w", err)
	}

	// Re-query so the build only reports success if the entry is usable.
	entry, err = b.getEntry(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("pack.Builder: %w", err)
	}
	if entry == nil {
		return nil, errors.New("pack.Builder: cache entry is unusable after build")
	}

	slog.Info("created code package",
		"benchmark", p.Benchmark, "deployment", p.Deployment,
		"language", p.Language, "version", p.LanguageVersion, "hash", p.Hash)

	return &BuilderBuildResult{Package: p, Rebuilt: true}, nil
}

// getEntry fetches the package's cache entry, treating unusable entries as
// missing: an entry that can't be decoded or whose artifact no longer exists
// on disk only logs a warning.
func (b *Builder) getEntry(ctx context.Context, p *Package) (*Entry, error) {
	entry, err := b.Cache.GetEntry(ctx, &CacheGetEntryParams{
		Deployment: p.Deployment,
		Benchmark:  p.Benchmark,
		Language:   p.Language,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if errors.Is(err, ErrBadEntry) {
			slog.Warn("ignoring unusable cache entry",
				"benchmark", p.Benchmark, "deployment", p.Deployment, "language", p.Language, "error", err)
			return nil, nil
		}
		return nil, err
	}

	if entry.Location == "" || !fileExists(entry.Location) {
		slog.Warn("cache entry location doesn't exist",
			"benchmark", p.Benchmark, "deployment", p.Deployment, "language", p.Language, "location", entry.Location)
		return nil, nil
	}

	return entry, nil
}

func (b *Builder) wrapperDir(deployment string, language bench.Language) string {
	return filepath.Join(b.BenchmarksRoot, "wrappers", deployment, string(language))
}

func (b *Builder) packageDir(p *Package) string {
	return filepath.Join(b.OutputRoot, p.Benchmark, p.Deployment, string(p.Language)+"-"+p.LanguageVersion)
}
