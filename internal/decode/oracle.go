package decode

// Cache is oracle-owned state accumulated over the prefix decoded so far.
// The decoder never inspects it; nil is the empty cache.
type Cache any

// Oracle runs one forward step of a causal language model.
//
// last holds one token id per batch row. Step returns one logits vector per
// row, each of vocabulary length, and the cache extended by last. A cache is
// only valid for the step directly after the one that produced it.
type Oracle interface {
	Step(last []int, cache Cache) ([][]float32, Cache, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(last []int, cache Cache) ([][]float32, Cache, error)

func (f OracleFunc) Step(last []int, cache Cache) ([][]float32, Cache, error) {
	return f(last, cache)
}
