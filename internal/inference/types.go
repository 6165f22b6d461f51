package inference

import (
	"context"
	"time"
)

// Engine generates completions with one weights provider.
type Engine interface {
	Generate(ctx context.Context, req *Request) (*Result, error)
	Metadata() Metadata
	Close() error
}

// BatchEngine is implemented by engines that can decode several prompts
// with shared settings in one call.
type BatchEngine interface {
	Engine
	GenerateAll(ctx context.Context, prompts []string, req *Request) ([]*Result, error)
}

// Request is a fully resolved generation request.
type Request struct {
	Prompt       string
	MaxNewTokens int
	Temperature  float64
	TopK         int
	// Seed < 0 picks a time-based seed.
	Seed int64
}

type Result struct {
	Prompt          string
	Completion      string
	PromptTokens    int
	TokensGenerated int
	Stats           Stats
}

type Stats struct {
	Duration time.Duration
	// TPS counts prompt and generated tokens together.
	TPS float64
}

// Metadata describes a loaded engine.
type Metadata struct {
	Name      string `json:"name"`
	Quantized bool   `json:"quantized"`
	DType     string `json:"dtype"`
	SizeBytes int64  `json:"size_bytes"`
}
