package decode

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stubVocab = 10

// stubOracle strongly favours one token and records what it was fed. Its
// cache is the number of columns seen so far.
type stubOracle struct {
	favour int
	calls  atomic.Int64
	seen   [][]int
	caches []Cache
}

func (o *stubOracle) Step(last []int, cache Cache) ([][]float32, Cache, error) {
	o.calls.Add(1)
	o.seen = append(o.seen, append([]int(nil), last...))
	o.caches = append(o.caches, cache)

	n := 0
	if cache != nil {
		n = cache.(int)
	}
	out := make([][]float32, len(last))
	for i := range out {
		row := make([]float32, stubVocab)
		row[o.favour] = 50
		out[i] = row
	}
	return out, n + 1, nil
}

// mixOracle is deterministic and flat enough that sampling varies with seed.
type mixOracle struct{}

func (mixOracle) Step(last []int, cache Cache) ([][]float32, Cache, error) {
	out := make([][]float32, len(last))
	for i, id := range last {
		row := make([]float32, stubVocab)
		for v := range row {
			row[v] = float32(math.Sin(float64(id*7 + v)))
		}
		out[i] = row
	}
	return out, cache, nil
}

func mustBatch(t *testing.T, rows ...[]int) Tokens {
	t.Helper()
	tok, err := NewBatch(rows)
	require.NoError(t, err)
	return tok
}

func TestDecodeFavouredToken(t *testing.T) {
	t.Parallel()
	oracle := &stubOracle{favour: 7}
	out, err := Decode(oracle, mustBatch(t, []int{1, 2, 3}), Config{MaxNewTokens: 5, Temperature: 1}, 0)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 5 + 3}, out.Shape)
	assert.Equal(t, [][]int{{1, 2, 3, 7, 7, 7, 7, 7}}, out.Rows())
	assert.EqualValues(t, 5, oracle.calls.Load())
}

func TestDecodeFeedsLastColumnAndCache(t *testing.T) {
	t.Parallel()
	oracle := &stubOracle{favour: 4}
	_, err := Decode(oracle, mustBatch(t, []int{1, 2, 3}, []int{5, 6, 9}), Config{MaxNewTokens: 3, Temperature: 1}, 0)
	require.NoError(t, err)

	assert.Equal(t, [][]int{{3, 9}, {4, 4}, {4, 4}}, oracle.seen)
	assert.Equal(t, []Cache{nil, 1, 2}, oracle.caches)
}

func TestDecodeOutputLength(t *testing.T) {
	t.Parallel()
	for _, n := range []int{1, 2, 17} {
		out, err := Decode(mixOracle{}, mustBatch(t, []int{0, 1}, []int{2, 3}, []int{4, 5}), Config{MaxNewTokens: n, Temperature: 0.7, TopK: 3}, 11)
		require.NoError(t, err)
		assert.Equal(t, []int{3, 2 + n}, out.Shape)
		assert.Len(t, out.Data, 3*(2+n))
		for _, id := range out.Data {
			assert.GreaterOrEqual(t, id, 0)
			assert.Less(t, id, stubVocab)
		}
	}
}

func TestDecodeSeedReproducible(t *testing.T) {
	t.Parallel()
	prompt := mustBatch(t, []int{3, 1, 4})
	cfg := Config{MaxNewTokens: 24, Temperature: 1.3, TopK: 0}

	a, err := NewDecoder(mixOracle{}, 99).Decode(prompt, cfg)
	require.NoError(t, err)
	d := NewDecoder(mixOracle{}, 99)
	b, err := d.Decode(prompt, cfg)
	require.NoError(t, err)
	c, err := d.Decode(prompt, cfg)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, b, c)
	assert.Equal(t, []int{3, 1, 4}, prompt.Data, "prompt must not be mutated")
}

func TestDecodeRejectsBadConfigWithoutCalls(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero temperature", Config{MaxNewTokens: 4, Temperature: 0}},
		{"negative temperature", Config{MaxNewTokens: 4, Temperature: -0.5}},
		{"nan temperature", Config{MaxNewTokens: 4, Temperature: math.NaN()}},
		{"zero tokens", Config{MaxNewTokens: 0, Temperature: 1}},
		{"negative top_k", Config{MaxNewTokens: 4, Temperature: 1, TopK: -1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			oracle := &stubOracle{favour: 1}
			_, err := Decode(oracle, mustBatch(t, []int{1}), tc.cfg, 0)
			require.ErrorIs(t, err, ErrInvalidParameter)
			assert.Zero(t, oracle.calls.Load())

			var derr *Error
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, -1, derr.Step)
		})
	}
}

func TestDecodeRejectsBadShapeWithoutCalls(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prompt Tokens
	}{
		{"rank one", Vector([]int{1, 2, 3})},
		{"rank three", Tokens{Shape: []int{1, 1, 1}, Data: []int{1}}},
		{"zero rows", Tokens{Shape: []int{0, 3}}},
		{"zero length", Tokens{Shape: []int{2, 0}}},
		{"data mismatch", Tokens{Shape: []int{2, 2}, Data: []int{1, 2, 3}}},
		{"negative id", Tokens{Shape: []int{1, 2}, Data: []int{1, -4}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			oracle := &stubOracle{favour: 1}
			_, err := Decode(oracle, tc.prompt, Config{MaxNewTokens: 2, Temperature: 1}, 0)
			assert.ErrorIs(t, err, ErrInvalidInputShape)
			assert.Zero(t, oracle.calls.Load())
		})
	}
}

func TestDecodeOracleFailures(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")

	tests := []struct {
		name  string
		step  OracleFunc
		cause error
	}{
		{
			name: "error",
			step: func(last []int, cache Cache) ([][]float32, Cache, error) {
				return nil, nil, boom
			},
			cause: boom,
		},
		{
			name: "wrong row count",
			step: func(last []int, cache Cache) ([][]float32, Cache, error) {
				return [][]float32{{1}, {1}}, nil, nil
			},
		},
		{
			name: "empty logits",
			step: func(last []int, cache Cache) ([][]float32, Cache, error) {
				return [][]float32{{}}, nil, nil
			},
		},
		{
			name: "all -inf",
			step: func(last []int, cache Cache) ([][]float32, Cache, error) {
				ninf := float32(math.Inf(-1))
				return [][]float32{{ninf, ninf}}, nil, nil
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Decode(tc.step, mustBatch(t, []int{1}), Config{MaxNewTokens: 3, Temperature: 1}, 0)
			require.ErrorIs(t, err, ErrOracleFailure)
			assert.Empty(t, out.Data)
			if tc.cause != nil {
				assert.ErrorIs(t, err, tc.cause)
			}
			var derr *Error
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, 0, derr.Step)
		})
	}
}

func TestDecodeFailureMidway(t *testing.T) {
	t.Parallel()
	calls := 0
	oracle := OracleFunc(func(last []int, cache Cache) ([][]float32, Cache, error) {
		calls++
		if calls == 3 {
			return nil, nil, errors.New("device lost")
		}
		return [][]float32{{0, 1}}, cache, nil
	})
	_, err := Decode(oracle, mustBatch(t, []int{1}), Config{MaxNewTokens: 10, Temperature: 1}, 0)
	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 2, derr.Step)
	assert.Contains(t, err.Error(), "oracle failure at step 2: device lost")
}

func TestDecodeAllMatchesSequential(t *testing.T) {
	t.Parallel()
	prompts := []Tokens{
		mustBatch(t, []int{1, 2}),
		mustBatch(t, []int{3}),
		mustBatch(t, []int{4, 5, 6}, []int{7, 8, 9}),
	}
	cfg := Config{MaxNewTokens: 6, Temperature: 0.9, TopK: 5}

	got, err := DecodeAll(context.Background(), mixOracle{}, prompts, cfg, 5)
	require.NoError(t, err)
	require.Len(t, got, len(prompts))
	for i, p := range prompts {
		want, err := Decode(mixOracle{}, p, cfg, 5+uint64(i))
		require.NoError(t, err)
		assert.Equal(t, want, got[i], "prompt %d", i)
	}
}

func TestDecodeAllPropagatesFailure(t *testing.T) {
	t.Parallel()
	prompts := []Tokens{mustBatch(t, []int{1}), Vector([]int{1})}
	_, err := DecodeAll(context.Background(), mixOracle{}, prompts, Config{MaxNewTokens: 2, Temperature: 1}, 0)
	assert.ErrorIs(t, err, ErrInvalidInputShape)
}

func TestResolveConfig(t *testing.T) {
	t.Parallel()
	temp := 1.5
	zero := 0
	cfg := ResolveConfig(Options{Temperature: &temp, TopK: &zero}, DefaultConfig())
	assert.Equal(t, Config{MaxNewTokens: 64, Temperature: 1.5, TopK: 0}, cfg)
	assert.Equal(t, DefaultConfig(), ResolveConfig(Options{}, DefaultConfig()))
}

func TestNewBatchRejectsRagged(t *testing.T) {
	t.Parallel()
	_, err := NewBatch([][]int{{1, 2}, {3}})
	assert.ErrorIs(t, err, ErrInvalidInputShape)
	_, err = NewBatch(nil)
	assert.ErrorIs(t, err, ErrInvalidInputShape)
}
