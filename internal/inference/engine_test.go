package inference

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/samcharles93/quantserve/internal/decode"
	"github.com/samcharles93/quantserve/internal/tokenizer"
)

func ptr[T any](v T) *T { return &v }

func loadTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := Loader{ModelID: "toy-test", Hidden: 16, MaxContext: 32}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return reg
}

type panicEncodeTokenizer struct{}

func (panicEncodeTokenizer) Encode(string) ([]int, error) { panic("encode boom") }
func (panicEncodeTokenizer) Decode([]int) (string, error) { return "", nil }

type emptyTokenizer struct{}

func (emptyTokenizer) Encode(string) ([]int, error) { return nil, nil }
func (emptyTokenizer) Decode(ids []int) (string, error) {
	return strings.Repeat("x", len(ids)), nil
}

// flatOracle returns uniform logits and records the first token it saw.
type flatOracle struct {
	vocab int
	first []int
}

func (o *flatOracle) Step(last []int, cache decode.Cache) ([][]float32, decode.Cache, error) {
	if cache == nil {
		o.first = append([]int(nil), last...)
	}
	return [][]float32{make([]float32, o.vocab)}, 1, nil
}

func TestResolveRequestPrecedence(t *testing.T) {
	t.Parallel()

	req := ResolveRequest(RequestOptions{Prompt: "hi"}, GenDefaults{})
	if req.MaxNewTokens != 64 || req.Temperature != 0.8 || req.TopK != 40 || req.Seed != -1 {
		t.Fatalf("built-in defaults: %+v", req)
	}

	defaults := GenDefaults{MaxNewTokens: ptr(8), Temperature: ptr(1.2), TopK: ptr(0)}
	req = ResolveRequest(RequestOptions{}, defaults)
	if req.MaxNewTokens != 8 || req.Temperature != 1.2 || req.TopK != 0 {
		t.Fatalf("host defaults: %+v", req)
	}

	req = ResolveRequest(RequestOptions{MaxNewTokens: ptr(3), Temperature: ptr(0.5), TopK: ptr(5), Seed: ptr(int64(9))}, defaults)
	if req.MaxNewTokens != 3 || req.Temperature != 0.5 || req.TopK != 5 || req.Seed != 9 {
		t.Fatalf("overrides: %+v", req)
	}

	// Invalid overrides pass through so the decoder can reject them.
	req = ResolveRequest(RequestOptions{Temperature: ptr(-1.0)}, defaults)
	if req.Temperature != -1 {
		t.Fatalf("expected override to win, got %v", req.Temperature)
	}
}

func TestGenerateProducesRequestedTokens(t *testing.T) {
	t.Parallel()
	reg := loadTestRegistry(t)

	for _, variant := range []string{VariantBaseline, VariantQuantized} {
		e, err := reg.Engine(variant)
		if err != nil {
			t.Fatal(err)
		}
		res, err := e.Generate(context.Background(), &Request{Prompt: "hello", MaxNewTokens: 12, Temperature: 0.9, TopK: 20, Seed: 4})
		if err != nil {
			t.Fatalf("%s Generate: %v", variant, err)
		}
		if res.TokensGenerated != 12 || res.PromptTokens != 5 {
			t.Fatalf("%s: generated %d prompt %d", variant, res.TokensGenerated, res.PromptTokens)
		}
		if !utf8.ValidString(res.Completion) {
			t.Fatalf("%s: completion is not valid UTF-8: %q", variant, res.Completion)
		}
		if res.Stats.TPS <= 0 {
			t.Fatalf("%s: tps %v", variant, res.Stats.TPS)
		}
	}
}

func TestGenerateSeedIsReproducible(t *testing.T) {
	t.Parallel()
	reg := loadTestRegistry(t)
	req := &Request{Prompt: "abc", MaxNewTokens: 16, Temperature: 1, TopK: 0, Seed: 11}

	a, err := reg.Baseline.Generate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	b, err := reg.Baseline.Generate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if a.Completion != b.Completion {
		t.Fatalf("same seed gave %q and %q", a.Completion, b.Completion)
	}
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	t.Parallel()
	reg := loadTestRegistry(t)
	for _, p := range []string{"", "   \n\t"} {
		_, err := reg.Baseline.Generate(context.Background(), &Request{Prompt: p, MaxNewTokens: 1, Temperature: 1})
		if !errors.Is(err, ErrEmptyPrompt) {
			t.Fatalf("prompt %q: got %v", p, err)
		}
	}
}

func TestGenerateRejectsOversizedBudget(t *testing.T) {
	t.Parallel()
	reg := loadTestRegistry(t)
	_, err := reg.Baseline.Generate(context.Background(), &Request{Prompt: "x", MaxNewTokens: 33, Temperature: 1})
	if !errors.Is(err, decode.ErrInvalidParameter) {
		t.Fatalf("got %v", err)
	}
}

func TestGenerateInvalidTemperature(t *testing.T) {
	t.Parallel()
	reg := loadTestRegistry(t)
	_, err := reg.Baseline.Generate(context.Background(), &Request{Prompt: "x", MaxNewTokens: 2, Temperature: 0})
	if !errors.Is(err, decode.ErrInvalidParameter) {
		t.Fatalf("got %v", err)
	}
}

func TestGenerateEmptyEncodingUsesTokenZero(t *testing.T) {
	t.Parallel()
	oracle := &flatOracle{vocab: 4}
	e := NewEngine(Metadata{Name: "stub"}, oracle, emptyTokenizer{}, 0, nil)
	res, err := e.Generate(context.Background(), &Request{Prompt: "anything", MaxNewTokens: 3, Temperature: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(oracle.first) != 1 || oracle.first[0] != 0 {
		t.Fatalf("first step saw %v", oracle.first)
	}
	if res.PromptTokens != 1 || res.Completion != "xxx" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGenerateStopsWhenContextEnds(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	oracle := decode.OracleFunc(func(last []int, cache decode.Cache) ([][]float32, decode.Cache, error) {
		calls++
		cancel()
		return [][]float32{make([]float32, tokenizer.ByteVocab)}, nil, nil
	})
	e := NewEngine(Metadata{Name: "stub"}, oracle, tokenizer.Bytes{}, 0, nil)
	_, err := e.Generate(ctx, &Request{Prompt: "hi", MaxNewTokens: 10, Temperature: 1})
	if !errors.Is(err, decode.ErrOracleFailure) || !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
	if calls != 1 {
		t.Fatalf("oracle called %d times after cancel", calls)
	}
}

func TestGenerateConvertsPanics(t *testing.T) {
	t.Parallel()
	panicky := decode.OracleFunc(func([]int, decode.Cache) ([][]float32, decode.Cache, error) {
		panic("step boom")
	})

	e := NewEngine(Metadata{Name: "stub"}, panicky, tokenizer.Bytes{}, 0, nil)
	_, err := e.Generate(context.Background(), &Request{Prompt: "hi", MaxNewTokens: 1, Temperature: 1})
	if err == nil || !strings.Contains(err.Error(), "panic in Step") {
		t.Fatalf("unexpected error: %v", err)
	}

	e = NewEngine(Metadata{Name: "stub"}, &flatOracle{vocab: 2}, panicEncodeTokenizer{}, 0, nil)
	_, err = e.Generate(context.Background(), &Request{Prompt: "hi", MaxNewTokens: 1, Temperature: 1})
	if err == nil || !strings.Contains(err.Error(), "panic in Encode") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := loadTestRegistry(t)
	if reg.Preferred() != VariantQuantized {
		t.Fatalf("preferred %q", reg.Preferred())
	}
	q, b := reg.Metadata()
	if q == nil || b == nil {
		t.Fatal("expected both variants")
	}
	if !q.Quantized || q.DType != "int8" || b.Quantized || b.DType != "float32" {
		t.Fatalf("metadata q=%+v b=%+v", q, b)
	}
	if q.SizeBytes >= b.SizeBytes {
		t.Fatalf("quantized %d not smaller than baseline %d", q.SizeBytes, b.SizeBytes)
	}

	resp, err := reg.Generate(context.Background(), VariantBaseline, RequestOptions{Prompt: "hey", MaxNewTokens: ptr(4)})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TokensGenerated != 4 || resp.Model.Name != VariantBaseline || resp.Prompt != "hey" {
		t.Fatalf("response %+v", resp)
	}

	baseOnly := &Registry{Baseline: reg.Baseline}
	if baseOnly.Preferred() != VariantBaseline {
		t.Fatalf("preferred %q", baseOnly.Preferred())
	}
	if _, err := baseOnly.Engine(VariantQuantized); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("got %v", err)
	}
	if _, err := baseOnly.Engine("fp8"); err == nil {
		t.Fatal("expected unknown variant error")
	}
	if err := reg.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLoaderSkipQuantizedAndSeed(t *testing.T) {
	t.Parallel()
	reg, err := Loader{ModelID: "m", Hidden: 8, MaxContext: 8, SkipQuantized: true}.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if reg.Quantized != nil {
		t.Fatal("quantized engine should not be loaded")
	}
	if SeedFor("a") == SeedFor("b") || SeedFor("a") <= 0 {
		t.Fatal("SeedFor should separate ids and stay positive")
	}
	if _, err := (Loader{}).Load(context.Background()); err == nil {
		t.Fatal("expected error without model id")
	}
}

func TestGenerateAllMatchesSequentialSeeds(t *testing.T) {
	t.Parallel()
	reg := loadTestRegistry(t)
	e := reg.Baseline.(*EngineImpl)
	prompts := []string{"alpha", "be", "gamma ray"}
	req := &Request{MaxNewTokens: 6, Temperature: 0.9, TopK: 12, Seed: 40}

	got, err := e.GenerateAll(context.Background(), prompts, req)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(prompts) {
		t.Fatalf("got %d results, want %d", len(got), len(prompts))
	}
	for i, p := range prompts {
		want, err := e.Generate(context.Background(), &Request{Prompt: p, MaxNewTokens: 6, Temperature: 0.9, TopK: 12, Seed: 40 + int64(i)})
		if err != nil {
			t.Fatal(err)
		}
		if got[i].Prompt != p || got[i].Completion != want.Completion || got[i].TokensGenerated != 6 {
			t.Fatalf("prompt %d: batch %+v, sequential %+v", i, got[i], want)
		}
	}
}

func TestGenerateAllRejectsEmptyPrompt(t *testing.T) {
	t.Parallel()
	reg := loadTestRegistry(t)
	e := reg.Baseline.(*EngineImpl)
	_, err := e.GenerateAll(context.Background(), []string{"ok", "  "}, &Request{MaxNewTokens: 2, Temperature: 1})
	if !errors.Is(err, ErrEmptyPrompt) || !strings.Contains(err.Error(), "prompt 1") {
		t.Fatalf("got %v", err)
	}
	_, err = e.GenerateAll(context.Background(), []string{"ok"}, &Request{MaxNewTokens: 99, Temperature: 1})
	if !errors.Is(err, decode.ErrInvalidParameter) {
		t.Fatalf("got %v", err)
	}
}

// plainEngine hides GenerateAll so the registry takes its sequential path.
type plainEngine struct{ Engine }

func TestRegistryGenerateAll(t *testing.T) {
	t.Parallel()
	reg := loadTestRegistry(t)
	prompts := []string{"one", "two"}
	opts := RequestOptions{MaxNewTokens: ptr(3), Seed: ptr(int64(9))}

	batched, err := reg.GenerateAll(context.Background(), VariantQuantized, prompts, opts)
	if err != nil {
		t.Fatal(err)
	}
	seq := &Registry{Quantized: plainEngine{reg.Quantized}}
	sequential, err := seq.GenerateAll(context.Background(), VariantQuantized, prompts, opts)
	if err != nil {
		t.Fatal(err)
	}
	for i := range prompts {
		if batched[i].Model.Name != VariantQuantized || batched[i].TokensGenerated != 3 {
			t.Fatalf("response %d: %+v", i, batched[i])
		}
		if batched[i].Completion != sequential[i].Completion {
			t.Fatalf("prompt %d: batched %q, sequential %q", i, batched[i].Completion, sequential[i].Completion)
		}
	}

	if _, err := (&Registry{}).GenerateAll(context.Background(), VariantBaseline, prompts, opts); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("got %v", err)
	}
}

func TestGenDefaultsValidate(t *testing.T) {
	t.Parallel()
	if err := (GenDefaults{}).Validate(); err != nil {
		t.Fatalf("empty defaults: %v", err)
	}
	if err := (GenDefaults{TopK: ptr(0), Temperature: ptr(1.0)}).Validate(); err != nil {
		t.Fatalf("valid defaults: %v", err)
	}
	for name, d := range map[string]GenDefaults{
		"zero temperature":     {Temperature: ptr(0.0)},
		"negative temperature": {Temperature: ptr(-1.0)},
		"zero max tokens":      {MaxNewTokens: ptr(0)},
		"negative top-k":       {TopK: ptr(-3)},
	} {
		if err := d.Validate(); !errors.Is(err, decode.ErrInvalidParameter) {
			t.Errorf("%s: got %v", name, err)
		}
	}
}

func TestLoaderRejectsInvalidDefaults(t *testing.T) {
	t.Parallel()
	_, err := Loader{ModelID: "m", Hidden: 8, MaxContext: 8, Defaults: GenDefaults{Temperature: ptr(0.0)}}.Load(context.Background())
	if !errors.Is(err, decode.ErrInvalidParameter) {
		t.Fatalf("got %v", err)
	}
}

func TestResolveRequestKeepsHostDefaults(t *testing.T) {
	t.Parallel()
	// A bad host default is no longer swapped for the built-in; the
	// decoder rejects it instead.
	req := ResolveRequest(RequestOptions{}, GenDefaults{Temperature: ptr(0.0)})
	if req.Temperature != 0 {
		t.Fatalf("temperature = %v, want 0", req.Temperature)
	}
}
