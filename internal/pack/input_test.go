package pack

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/fnpack/fnpack/internal/bench"
)

var _ bench.InputGenerator = (*stubGenerator)(nil)

// stubGenerator captures the parameters it generates input from. When
// uploadFile is set, it uploads that file to the first input bucket.
type stubGenerator struct {
	inputCount  int
	outputCount int
	input       map[string]any
	uploadFile  string

	params *bench.GenerateInputParams
}

func (g *stubGenerator) BucketsCount() (input, output int) {
	return g.inputCount, g.outputCount
}

func (g *stubGenerator) GenerateInput(ctx context.Context, params *bench.GenerateInputParams) (map[string]any, error) {
	g.params = params
	if g.uploadFile != "" {
		if err := params.Upload(ctx, params.InputBuckets[0], "data/input.txt", g.uploadFile); err != nil {
			return nil, err
		}
	}
	return g.input, nil
}

func newTestPreparer(gen bench.InputGenerator) (*Preparer, *StubStorage) {
	storage := NewStubStorage()
	generators := bench.NewGeneratorRegistry()
	if gen != nil {
		generators.Register("110.dynamic-html", gen)
	}
	return &Preparer{Storage: storage, Generators: generators}, storage
}

func TestPreparerPrepare(t *testing.T) {
	ctx := context.Background()

	t.Run("generates input and uploads data", func(t *testing.T) {
		gen := &stubGenerator{
			inputCount:  1,
			outputCount: 2,
			input:       map[string]any{"username": "testname", "random_len": float64(10)},
		}
		p, storage := newTestPreparer(gen)

		dataRoot := t.TempDir()
		dataDir := filepath.Join(dataRoot, "100.webapps", "110.dynamic-html")
		mkdirAll(t, dataDir)
		dataFile := filepath.Join(dataDir, "templates.json")
		writeFile(t, dataFile, `{"templates": []}`)
		p.DataRoot = dataRoot
		gen.uploadFile = dataFile

		input, err := p.Prepare(ctx, &PreparerPrepareParams{
			Benchmark: "110.dynamic-html",
			Size:      "test",
		})
		if err != nil {
			t.Fatalf("got %q err", err)
		}
		if got, want := input, gen.input; !reflect.DeepEqual(got, want) {
			t.Logf("got %v input", got)
			t.Errorf("want %v", want)
		}

		if got, want := len(storage.AllocateCalls), 1; got != want {
			t.Fatalf("got %d AllocateBuckets calls, want %d", got, want)
		}
		call := storage.AllocateCalls[0]
		if got, want := call.InputCount, 1; got != want {
			t.Errorf("got %d InputCount, want %d", got, want)
		}
		if got, want := call.OutputCount, 2; got != want {
			t.Errorf("got %d OutputCount, want %d", got, want)
		}

		if got, want := len(storage.UploadCalls), 1; got != want {
			t.Fatalf("got %d Upload calls, want %d", got, want)
		}
		upload := storage.UploadCalls[0]
		if got, want := upload.Bucket, "110.dynamic-html-0-input"; got != want {
			t.Errorf("got %q Bucket, want %q", got, want)
		}
		if got, want := upload.Key, "data/input.txt"; got != want {
			t.Errorf("got %q Key, want %q", got, want)
		}
		if got, want := upload.File, dataFile; got != want {
			t.Errorf("got %q File, want %q", got, want)
		}

		if gen.params == nil {
			t.Fatal("generator wasn't called")
		}
		if got, want := gen.params.DataDir, dataDir; got != want {
			t.Errorf("got %q DataDir, want %q", got, want)
		}
		if got, want := gen.params.Size, "test"; got != want {
			t.Errorf("got %q Size, want %q", got, want)
		}
		wantOutput := []string{"110.dynamic-html-0-output", "110.dynamic-html-1-output"}
		if got, want := gen.params.OutputBuckets, wantOutput; !reflect.DeepEqual(got, want) {
			t.Logf("got %v OutputBuckets", got)
			t.Errorf("want %v", want)
		}
	})

	t.Run("works without a data tree", func(t *testing.T) {
		gen := &stubGenerator{input: map[string]any{}}
		p, _ := newTestPreparer(gen)
		p.DataRoot = filepath.Join(t.TempDir(), "missing")

		_, err := p.Prepare(ctx, &PreparerPrepareParams{
			Benchmark: "110.dynamic-html",
			Size:      "test",
		})
		if err != nil {
			t.Fatalf("got %q err", err)
		}
		if got := gen.params.DataDir; got != "" {
			t.Errorf("got %q DataDir, want empty", got)
		}
	})

	t.Run("reports a missing generator", func(t *testing.T) {
		p, _ := newTestPreparer(nil)

		_, err := p.Prepare(ctx, &PreparerPrepareParams{
			Benchmark: "110.dynamic-html",
			Size:      "test",
		})
		if !errors.Is(err, bench.ErrNoGenerator) {
			t.Fatalf("got %v err, want %v", err, bench.ErrNoGenerator)
		}
	})
}
