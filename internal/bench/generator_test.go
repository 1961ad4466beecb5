package bench

import (
	"context"
	"errors"
	"testing"
)

var _ InputGenerator = (*stubGenerator)(nil)

type stubGenerator struct {
	inputCount  int
	outputCount int
	input       map[string]any
}

func (g *stubGenerator) BucketsCount() (input, output int) {
	return g.inputCount, g.outputCount
}

func (g *stubGenerator) GenerateInput(_ context.Context, _ *GenerateInputParams) (map[string]any, error) {
	return g.input, nil
}

func TestGeneratorRegistry(t *testing.T) {
	t.Run("returns a registered generator", func(t *testing.T) {
		r := NewGeneratorRegistry()
		gen := &stubGenerator{inputCount: 1, outputCount: 1}
		r.Register("110.dynamic-html", gen)

		got, err := r.Get("110.dynamic-html")
		if err != nil {
			t.Fatalf("got %q err", err)
		}
		if got != InputGenerator(gen) {
			t.Errorf("got %#v, want %#v", got, gen)
		}
	})

	t.Run("reports a missing generator", func(t *testing.T) {
		r := NewGeneratorRegistry()

		_, err := r.Get("999.absent")
		if !errors.Is(err, ErrNoGenerator) {
			t.Fatalf("got %v err, want %v", err, ErrNoGenerator)
		}
	})

	t.Run("replaces a generator on repeated register", func(t *testing.T) {
		r := NewGeneratorRegistry()
		first := &stubGenerator{inputCount: 1}
		second := &stubGenerator{inputCount: 2}
		r.Register("110.dynamic-html", first)
		r.Register("110.dynamic-html", second)

		got, err := r.Get("110.dynamic-html")
		if err != nil {
			t.Fatalf("got %q err", err)
		}
		if got != InputGenerator(second) {
			t.Errorf("got %#v, want %#v", got, second)
		}
	})
}
