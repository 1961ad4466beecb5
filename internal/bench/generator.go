package bench

import (
	"context"
	"errors"
	"fmt"
)

var ErrNoGenerator = errors.New("no input generator")

// UploadFunc uploads the file at path to the bucket under key.
type UploadFunc func(ctx context.Context, bucket, key, path string) error

type GenerateInputParams struct {
	DataDir       string
	Size          string
	InputBuckets  []string
	OutputBuckets []string
	Upload        UploadFunc
}

// InputGenerator produces the invocation input for a benchmark.
// It can upload benchmark data to the allocated input buckets
// with the provided upload function.
type InputGenerator interface {
	// BucketsCount returns the number of input and output buckets
	// the benchmark needs.
	BucketsCount() (input, output int)
	// GenerateInput returns the invocation input config for the given size.
	GenerateInput(ctx context.Context, params *GenerateInputParams) (map[string]any, error)
}

// GeneratorRegistry maps benchmark names to their input generators.
// Benchmarks register their generators at program start.
type GeneratorRegistry struct {
	generators map[string]InputGenerator
}

func NewGeneratorRegistry() *GeneratorRegistry {
	return &GeneratorRegistry{generators: make(map[string]InputGenerator)}
}

// Register adds the benchmark's input generator.
// A later Register with the same benchmark name replaces the earlier one.
func (r *GeneratorRegistry) Register(benchmark string, g InputGenerator) {
	r.generators[benchmark] = g
}

func (r *GeneratorRegistry) Get(benchmark string) (InputGenerator, error) {
	g, ok := r.generators[benchmark]
	if !ok {
		return nil, fmt.Errorf("benchmark %q: %w", benchmark, ErrNoGenerator)
	}
	return g, nil
}
