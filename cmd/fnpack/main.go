package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/docker/docker/client"

	"github.com/fnpack/fnpack/internal/bench"
	"github.com/fnpack/fnpack/internal/benchinput"
	"github.com/fnpack/fnpack/internal/deploy"
	"github.com/fnpack/fnpack/internal/pack"
	"github.com/fnpack/fnpack/internal/packs3"
	"github.com/fnpack/fnpack/internal/packsqlite"
)

var (
	benchmark       = flag.String("benchmark", "", "benchmark name")
	deployment      = flag.String("deployment", "", "deployment name")
	language        = flag.String("language", "", "benchmark language")
	languageVersion = flag.String("language-version", "", "benchmark language version")
	workflow        = flag.Bool("workflow", false, "package a workflow instead of a function")
	rebuild         = flag.Bool("rebuild", false, "rebuild the code package even if it is cached")
	list            = flag.Bool("list", false, "list cached code packages and exit")
	input           = flag.Bool("input", false, "prepare the benchmark's input in storage and exit")
	size            = flag.String("size", "test", "input size class for -input")
)

func main() {
	run := func() int {
		flag.Parse()
		ctx := context.Background()

		cfg, err := parseConfig(os.Environ())
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		if cfg.Development {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}

		if *input {
			const flagBenchmark = "-benchmark"
			if *benchmark == "" {
				_, _ = fmt.Fprintf(os.Stderr, "error: missing %s flag\n", flagBenchmark)
				return 2
			}
			if cfg.StorageURL == "" {
				_, _ = fmt.Fprintln(os.Stderr, "error: missing FNPACK_STORAGE_URL environment variable")
				return 1
			}

			preparer := &pack.Preparer{
				Storage:    packs3.NewStorage(cfg.StorageURL),
				Generators: benchinput.Registry(),
				DataRoot:   cfg.DataDir,
			}
			inputConfig, err := preparer.Prepare(ctx, &pack.PreparerPrepareParams{
				Benchmark: *benchmark,
				Size:      *size,
			})
			if err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
				return 1
			}

			data, err := json.Marshal(inputConfig)
			if err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
				return 1
			}
			_, _ = fmt.Printf("%s\n", data)
			return 0
		}

		const flagDeployment = "-deployment"
		if *deployment == "" {
			_, _ = fmt.Fprintf(os.Stderr, "error: missing %s flag\n", flagDeployment)
			return 2
		}

		const flagLanguage = "-language"
		if *language == "" {
			_, _ = fmt.Fprintf(os.Stderr, "error: missing %s flag\n", flagLanguage)
			return 2
		}
		lang, known := bench.LanguageFromString(*language)
		if !known {
			_, _ = fmt.Fprintf(os.Stderr, "error: unsupported %s flag value %q\n", flagLanguage, *language)
			return 2
		}

		err = os.MkdirAll(filepath.Dir(cfg.CacheFile), 0o777)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		store, err := packsqlite.Open(cfg.CacheFile)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		defer func() {
			_ = store.Close()
		}()

		if *list {
			entries, err := store.ListEntries(ctx, &pack.CacheListEntriesParams{
				Deployment: *deployment,
				Language:   lang,
			})
			if err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
				return 1
			}
			for _, e := range entries {
				_, _ = fmt.Printf("%s\t%s\t%d\t%s\n", e.Benchmark, e.Hash, e.Size, e.Location)
			}
			return 0
		}

		const flagBenchmark = "-benchmark"
		if *benchmark == "" {
			_, _ = fmt.Fprintf(os.Stderr, "error: missing %s flag\n", flagBenchmark)
			return 2
		}

		const flagLanguageVersion = "-language-version"
		if *languageVersion == "" {
			_, _ = fmt.Fprintf(os.Stderr, "error: missing %s flag\n", flagLanguageVersion)
			return 2
		}

		deployConfig := deploy.DefaultConfig()
		if cfg.DeployFile != "" {
			deployConfig, err = deploy.ReadConfig(cfg.DeployFile)
			if err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
				return 1
			}
		}

		strategy, known := pack.InstallStrategyFromString(cfg.InstallStrategy)
		if !known {
			_, _ = fmt.Fprintf(os.Stderr, "error: unsupported FNPACK_INSTALL_STRATEGY value %q\n", cfg.InstallStrategy)
			return 1
		}

		dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		defer func() {
			_ = dockerClient.Close()
		}()

		builder := &pack.Builder{
			Cache:          store,
			Docker:         dockerClient,
			Deploy:         deployConfig,
			BenchmarksRoot: cfg.BenchmarksDir,
			OutputRoot:     cfg.OutputDir,
			Strategy:       strategy,
		}

		result, err := builder.Build(ctx, &pack.BuilderBuildParams{
			Benchmark:       *benchmark,
			Deployment:      *deployment,
			Language:        lang,
			LanguageVersion: *languageVersion,
			Workflow:        *workflow,
			ForceRebuild:    *rebuild,
		})
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}

		slog.Info(
			"built code package",
			"benchmark", result.Package.Benchmark,
			"hash", result.Package.Hash,
			"size", result.Package.Size,
			"rebuilt", result.Rebuilt,
		)
		_, _ = fmt.Println(result.Package.Location)

		return 0
	}
	os.Exit(run())
}
