package inference

import (
	"context"
	"fmt"

	"github.com/samcharles93/quantserve/internal/decode"
)

// ctxOracle fails the current step once ctx is done, which is how a
// wall-clock budget reaches the context-free decode loop.
type ctxOracle struct {
	ctx    context.Context
	oracle decode.Oracle
}

func (o ctxOracle) Step(last []int, cache decode.Cache) ([][]float32, decode.Cache, error) {
	if err := o.ctx.Err(); err != nil {
		return nil, nil, err
	}
	return safeStep(o.oracle, last, cache)
}

func safeStep(o decode.Oracle, last []int, cache decode.Cache) (out [][]float32, next decode.Cache, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, next = nil, nil
			err = fmt.Errorf("panic in Step: %v", rec)
		}
	}()
	return o.Step(last, cache)
}
