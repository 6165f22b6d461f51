package toy

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/samcharles93/quantserve/internal/decode"
	"github.com/samcharles93/quantserve/internal/tensor"
	"github.com/samcharles93/quantserve/pkg/quant"
)

var (
	ErrContextFull  = errors.New("toy: context window is full")
	ErrForeignCache = errors.New("toy: cache was not produced by this model")
	ErrTokenRange   = errors.New("toy: token id out of range")
	ErrBatch        = errors.New("toy: batch does not match cache")
)

// Config describes the model dimensions.
type Config struct {
	Vocab      int
	Hidden     int
	MaxContext int
	Seed       int64
}

// LM is a single-block causal language model: token and position
// embeddings, one attention head with a residual connection, and an output
// projection to vocabulary logits. Weights are generated from the seed so
// two models built from the same Config are identical.
//
// LM is immutable after construction and Step is safe for concurrent use.
type LM struct {
	Vocab      int
	Hidden     int
	MaxContext int

	Emb tensor.Mat // [Vocab x Hidden]
	Pos tensor.Mat // [MaxContext x Hidden]

	Wq, Wk, Wv, Wo Linear // [Hidden x Hidden]
	Out            Linear // [Vocab x Hidden]
	Bias           []float32
}

// New builds a model with reproducible random weights.
func New(cfg Config) (*LM, error) {
	if cfg.Vocab <= 0 || cfg.Hidden <= 0 || cfg.MaxContext <= 0 {
		return nil, fmt.Errorf("toy: invalid dimensions vocab=%d hidden=%d context=%d", cfg.Vocab, cfg.Hidden, cfg.MaxContext)
	}
	h := cfg.Hidden
	proj := float32(2 / math.Sqrt(float64(h)))

	dense := func(r, c int, seed int64, scale float32) *Dense {
		w := tensor.NewMat(r, c)
		tensor.FillRand(&w, seed, scale)
		return &Dense{W: w}
	}

	m := &LM{
		Vocab:      cfg.Vocab,
		Hidden:     h,
		MaxContext: cfg.MaxContext,
		Emb:        tensor.NewMat(cfg.Vocab, h),
		Pos:        tensor.NewMat(cfg.MaxContext, h),
		Wq:         dense(h, h, cfg.Seed+31, proj),
		Wk:         dense(h, h, cfg.Seed+37, proj),
		Wv:         dense(h, h, cfg.Seed+41, proj),
		Wo:         dense(h, h, cfg.Seed+43, proj),
		Out:        dense(cfg.Vocab, h, cfg.Seed+23, 4*proj),
		Bias:       make([]float32, cfg.Vocab),
	}
	tensor.FillRand(&m.Emb, cfg.Seed+11, 2)
	tensor.FillRand(&m.Pos, cfg.Seed+13, 0.2)
	for i := range m.Bias {
		m.Bias[i] = 0.01 * float32(i%7-3)
	}
	return m, nil
}

// Quantize returns a copy of m whose linear layers are quantised with
// scheme. Embeddings and bias stay float32 and are shared with m.
func Quantize(m *LM, scheme quant.Scheme) (*LM, error) {
	q := *m
	layers := []*Linear{&q.Wq, &q.Wk, &q.Wv, &q.Wo, &q.Out}
	for i, l := range layers {
		d, ok := (*l).(*Dense)
		if !ok {
			return nil, fmt.Errorf("toy: layer %d is already %s", i, (*l).DType())
		}
		t, err := scheme.Quantise(&d.W)
		if err != nil {
			return nil, fmt.Errorf("toy: quantise layer %d: %w", i, err)
		}
		*l = &Quantised{T: t, Scheme: scheme.Name()}
	}
	return &q, nil
}

// DType reports the storage type of the linear layers.
func (m *LM) DType() string { return m.Out.DType() }

// SizeBytes is the total weight footprint.
func (m *LM) SizeBytes() int64 {
	total := m.Emb.SizeBytes() + m.Pos.SizeBytes() + int64(len(m.Bias))*4
	for _, l := range []Linear{m.Wq, m.Wk, m.Wv, m.Wo, m.Out} {
		total += l.SizeBytes()
	}
	return total
}

// KVCache holds the attention keys and values of every position seen so far
// for each batch row.
type KVCache struct {
	owner  *LM
	keys   [][][]float32 // [row][pos][hidden]
	values [][][]float32
}

// Rows is the batch width the cache was built for.
func (c *KVCache) Rows() int { return len(c.keys) }

// Len is the number of positions cached per row.
func (c *KVCache) Len() int {
	if len(c.keys) == 0 {
		return 0
	}
	return len(c.keys[0])
}

// Step implements decode.Oracle. It never modifies the cache it is given;
// the returned cache shares key and value vectors with it.
func (m *LM) Step(last []int, cache decode.Cache) ([][]float32, decode.Cache, error) {
	if len(last) == 0 {
		return nil, nil, fmt.Errorf("%w: empty batch", ErrBatch)
	}

	var prev *KVCache
	switch c := cache.(type) {
	case nil:
	case *KVCache:
		if c.owner != m {
			return nil, nil, ErrForeignCache
		}
		if c.Rows() != len(last) {
			return nil, nil, fmt.Errorf("%w: %d tokens for %d cached rows", ErrBatch, len(last), c.Rows())
		}
		prev = c
	default:
		return nil, nil, fmt.Errorf("%w: %T", ErrForeignCache, cache)
	}

	pos := 0
	if prev != nil {
		pos = prev.Len()
	}
	if pos >= m.MaxContext {
		return nil, nil, fmt.Errorf("%w: %d positions", ErrContextFull, m.MaxContext)
	}

	next := &KVCache{
		owner:  m,
		keys:   make([][][]float32, len(last)),
		values: make([][][]float32, len(last)),
	}
	out := make([][]float32, len(last))
	for r, tok := range last {
		if tok < 0 || tok >= m.Vocab {
			return nil, nil, fmt.Errorf("%w: %d not in [0,%d)", ErrTokenRange, tok, m.Vocab)
		}
		var keys, values [][]float32
		if prev != nil {
			keys, values = prev.keys[r], prev.values[r]
		}
		logits, k, v := m.forward(tok, pos, keys, values)
		next.keys[r] = append(slices.Clip(keys), k)
		next.values[r] = append(slices.Clip(values), v)
		out[r] = logits
	}
	return out, next, nil
}

// forward runs one position of one row. keys and values hold the earlier
// positions; the new key and value are returned for the caller to cache.
func (m *LM) forward(tok, pos int, keys, values [][]float32) (logits, k, v []float32) {
	h := m.Hidden
	x := make([]float32, h)
	copy(x, m.Emb.Row(tok))
	tensor.Add(x, m.Pos.Row(pos))

	q := make([]float32, h)
	k = make([]float32, h)
	v = make([]float32, h)
	m.Wq.MatVec(q, x)
	m.Wk.MatVec(k, x)
	m.Wv.MatVec(v, x)

	scores := make([]float32, len(keys)+1)
	inv := float32(1 / math.Sqrt(float64(h)))
	for j, kj := range keys {
		scores[j] = tensor.Dot(q, kj) * inv
	}
	scores[len(keys)] = tensor.Dot(q, k) * inv
	tensor.Softmax(scores)

	attn := make([]float32, h)
	for j, vj := range values {
		axpy(attn, scores[j], vj)
	}
	axpy(attn, scores[len(keys)], v)

	mixed := make([]float32, h)
	m.Wo.MatVec(mixed, attn)
	tensor.Add(x, mixed)

	logits = make([]float32, m.Vocab)
	m.Out.MatVec(logits, x)
	tensor.Add(logits, m.Bias)
	return logits, k, v
}

func axpy(dst []float32, a float32, x []float32) {
	for i := range dst {
		dst[i] += a * x[i]
	}
}
