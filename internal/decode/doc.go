// Package decode implements autoregressive sampling over a forward-step
// oracle.
//
// A Decoder feeds the oracle only the most recent token column together with
// the cache the oracle returned on the previous step, shapes the returned
// logits with temperature and top-k, draws one id per row and appends it.
// It runs for exactly MaxNewTokens steps; there is no end-of-sequence stop.
//
// The package does no I/O and takes no context. Callers that need a
// deadline wrap their Oracle so that Step fails once the deadline passes.
package decode
