package pack

import (
	"context"
	"errors"
	"fmt"

	"github.com/fnpack/fnpack/internal/bench"
)

// Preparer prepares benchmark invocation inputs. It allocates the
// benchmark's storage buckets and runs its registered input generator,
// which uploads benchmark data through the storage collaborator.
type Preparer struct {
	Storage    Storage                  // required
	Generators *bench.GeneratorRegistry // required

	// DataRoot is the directory that holds the benchmarks' input data,
	// grouped like the benchmarks tree. It may be empty when no
	// benchmark needs input data.
	DataRoot string
}

type PreparerPrepareParams struct {
	Benchmark string
	// Size selects the input size class, e.g. "test" or "large".
	Size string
}

// Prepare returns the benchmark's invocation input.
func (p *Preparer) Prepare(ctx context.Context, params *PreparerPrepareParams) (map[string]any, error) {
	gen, err := p.Generators.Get(params.Benchmark)
	if err != nil {
		return nil, fmt.Errorf("pack.Preparer: %w", err)
	}

	// Benchmark data lives in its own tree and is optional.
	dataDir := ""
	if p.DataRoot != "" {
		dataDir, err = bench.Find(p.DataRoot, params.Benchmark)
		if err != nil && !errors.Is(err, bench.ErrNotFound) {
			return nil, fmt.Errorf("pack.Preparer: %w", err)
		}
	}

	inputCount, outputCount := gen.BucketsCount()
	allocated, err := p.Storage.AllocateBuckets(ctx, &StorageAllocateBucketsParams{
		Benchmark:   params.Benchmark,
		InputCount:  inputCount,
		OutputCount: outputCount,
	})
	if err != nil {
		return nil, fmt.Errorf("pack.Preparer: %w", err)
	}

	upload := func(ctx context.Context, bucket, key, file string) error {
		return p.Storage.Upload(ctx, &StorageUploadParams{Bucket: bucket, Key: key, File: file})
	}

	input, err := gen.GenerateInput(ctx, &bench.GenerateInputParams{
		DataDir:       dataDir,
		Size:          params.Size,
		InputBuckets:  allocated.InputBuckets,
		OutputBuckets: allocated.OutputBuckets,
		Upload:        upload,
	})
	if err != nil {
		return nil, fmt.Errorf("pack.Preparer: %w", err)
	}

	return input, nil
}
