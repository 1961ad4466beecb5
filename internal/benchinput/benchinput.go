// Package benchinput provides the input generators of the built-in
// benchmarks. Programs embedding other benchmarks register their own
// generators on top of Registry.
package benchinput

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/fnpack/fnpack/internal/bench"
)

// Registry returns a registry with the built-in input generators registered.
func Registry() *bench.GeneratorRegistry {
	r := bench.NewGeneratorRegistry()
	r.Register("110.dynamic-html", &DynamicHTML{})
	r.Register("210.thumbnailer", &Thumbnailer{})
	return r
}

var _ bench.InputGenerator = (*DynamicHTML)(nil)

// DynamicHTML generates input for the dynamic HTML rendering benchmark.
// The size class selects how many random numbers the rendered template
// iterates over.
type DynamicHTML struct{}

var dynamicHTMLSizes = map[string]int{
	"test":  10,
	"small": 1000,
	"large": 100000,
}

func (*DynamicHTML) BucketsCount() (input, output int) {
	return 0, 0
}

func (*DynamicHTML) GenerateInput(_ context.Context, params *bench.GenerateInputParams) (map[string]any, error) {
	randomLen, ok := dynamicHTMLSizes[params.Size]
	if !ok {
		return nil, fmt.Errorf("benchinput.DynamicHTML: unknown size %q", params.Size)
	}
	return map[string]any{
		"username":   "testname",
		"random_len": randomLen,
	}, nil
}

var _ bench.InputGenerator = (*Thumbnailer)(nil)

// Thumbnailer generates input for the image thumbnailing benchmark.
// It uploads the benchmark's images to the input bucket and points the
// input at the last uploaded image.
type Thumbnailer struct{}

func (*Thumbnailer) BucketsCount() (input, output int) {
	return 1, 1
}

func (*Thumbnailer) GenerateInput(ctx context.Context, params *bench.GenerateInputParams) (map[string]any, error) {
	if params.DataDir == "" {
		return nil, fmt.Errorf("benchinput.Thumbnailer: no benchmark data")
	}

	key := ""
	err := filepath.WalkDir(params.DataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(params.DataDir, path)
		if err != nil {
			return err
		}
		key = filepath.ToSlash(rel)
		return params.Upload(ctx, params.InputBuckets[0], key, path)
	})
	if err != nil {
		return nil, fmt.Errorf("benchinput.Thumbnailer: %w", err)
	}
	if key == "" {
		return nil, fmt.Errorf("benchinput.Thumbnailer: no images in %s", params.DataDir)
	}

	return map[string]any{
		"object": map[string]any{
			"key":    key,
			"width":  200,
			"height": 200,
		},
		"bucket": map[string]any{
			"input":  params.InputBuckets[0],
			"output": params.OutputBuckets[0],
		},
	}, nil
}
