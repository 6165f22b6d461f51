package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samcharles93/quantserve/internal/decode"
	"github.com/samcharles93/quantserve/internal/logger"
	"github.com/samcharles93/quantserve/internal/tokenizer"
)

var (
	ErrEmptyPrompt      = errors.New("prompt must not be empty")
	ErrModelUnavailable = errors.New("model not available")
)

// EngineImpl runs decode.Decoder over one oracle and tokenizer.
type EngineImpl struct {
	meta       Metadata
	oracle     decode.Oracle
	tokenizer  tokenizer.Tokenizer
	maxContext int
	log        logger.Logger
}

// NewEngine wraps an oracle. maxContext bounds MaxNewTokens; 0 means
// unbounded.
func NewEngine(meta Metadata, oracle decode.Oracle, tok tokenizer.Tokenizer, maxContext int, log logger.Logger) *EngineImpl {
	if log == nil {
		log = logger.Discard()
	}
	return &EngineImpl{
		meta:       meta,
		oracle:     oracle,
		tokenizer:  tok,
		maxContext: maxContext,
		log:        log.With("engine", meta.Name),
	}
}

func (e *EngineImpl) Metadata() Metadata { return e.meta }

func (e *EngineImpl) Close() error { return nil }

func (e *EngineImpl) Generate(ctx context.Context, req *Request) (*Result, error) {
	if err := e.check(ctx, req); err != nil {
		return nil, err
	}
	ids, err := e.encode(req.Prompt)
	if err != nil {
		return nil, err
	}
	prompt, err := decode.NewBatch([][]int{ids})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	dec := decode.NewDecoder(ctxOracle{ctx: ctx, oracle: e.oracle}, seedOf(req), decode.WithLogger(e.log))
	out, err := dec.Decode(prompt, req.DecodeConfig())
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}
	return e.result(req.Prompt, ids, out.Row(0), elapsed)
}

// GenerateAll runs every prompt with the settings of req, decoding them in
// parallel. Prompt i samples with seed+i. Each result reports the wall
// time of the whole batch.
func (e *EngineImpl) GenerateAll(ctx context.Context, prompts []string, req *Request) ([]*Result, error) {
	if err := e.check(ctx, req); err != nil {
		return nil, err
	}
	encoded := make([][]int, len(prompts))
	batches := make([]decode.Tokens, len(prompts))
	for i, p := range prompts {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("prompt %d: %w", i, ErrEmptyPrompt)
		}
		ids, err := e.encode(p)
		if err != nil {
			return nil, fmt.Errorf("prompt %d: %w", i, err)
		}
		encoded[i] = ids
		if batches[i], err = decode.NewBatch([][]int{ids}); err != nil {
			return nil, fmt.Errorf("prompt %d: %w", i, err)
		}
	}

	start := time.Now()
	outs, err := decode.DecodeAll(ctx, ctxOracle{ctx: ctx, oracle: e.oracle}, batches, req.DecodeConfig(), seedOf(req), decode.WithLogger(e.log))
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, len(prompts))
	for i, out := range outs {
		if results[i], err = e.result(prompts[i], encoded[i], out.Row(0), elapsed); err != nil {
			return nil, fmt.Errorf("prompt %d: %w", i, err)
		}
	}
	return results, nil
}

// check validates everything about req except the prompt text.
func (e *EngineImpl) check(ctx context.Context, req *Request) error {
	if ctx == nil {
		return fmt.Errorf("context is required")
	}
	if req == nil {
		return fmt.Errorf("request is required")
	}
	if e.maxContext > 0 && req.MaxNewTokens > e.maxContext {
		return fmt.Errorf("%w: max_new_tokens %d exceeds context window %d",
			decode.ErrInvalidParameter, req.MaxNewTokens, e.maxContext)
	}
	return ctx.Err()
}

func (e *EngineImpl) encode(prompt string) ([]int, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	ids, err := safeEncode(e.tokenizer, prompt)
	if err != nil {
		return nil, fmt.Errorf("encode prompt: %w", err)
	}
	if len(ids) == 0 {
		ids = []int{0}
	}
	return ids, nil
}

func (e *EngineImpl) result(prompt string, ids, row []int, elapsed time.Duration) (*Result, error) {
	generated := row[len(ids):]
	text, err := safeDecode(e.tokenizer, generated)
	if err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}

	total := len(ids) + len(generated)
	tps := float64(total)
	if elapsed.Seconds() > 0 {
		tps = float64(total) / elapsed.Seconds()
	}

	e.log.Debug("generation complete",
		"prompt_tokens", len(ids),
		"generated", len(generated),
		"elapsed", elapsed,
		"tps", tps,
	)

	return &Result{
		Prompt:          prompt,
		Completion:      text,
		PromptTokens:    len(ids),
		TokensGenerated: len(generated),
		Stats: Stats{
			Duration: elapsed,
			TPS:      tps,
		},
	}, nil
}

// seedOf maps a negative request seed to a time-based one.
func seedOf(req *Request) uint64 {
	if req.Seed < 0 {
		return uint64(time.Now().UnixNano())
	}
	return uint64(req.Seed)
}

func safeEncode(tok tokenizer.Tokenizer, prompt string) (ids []int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Encode: %v", rec)
		}
	}()
	return tok.Encode(prompt)
}

func safeDecode(tok tokenizer.Tokenizer, ids []int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Decode: %v", rec)
		}
	}()
	return tok.Decode(ids)
}
