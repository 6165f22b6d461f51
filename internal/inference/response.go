package inference

// GenerationResponse is the wire form of a completed generation.
type GenerationResponse struct {
	Prompt          string   `json:"prompt"`
	Completion      string   `json:"completion"`
	TokensGenerated int      `json:"tokens_generated"`
	TotalTimeMS     int64    `json:"total_time_ms"`
	TokensPerSecond float64  `json:"tokens_per_second"`
	Model           Metadata `json:"model"`
}

func NewGenerationResponse(res *Result, meta Metadata) *GenerationResponse {
	return &GenerationResponse{
		Prompt:          res.Prompt,
		Completion:      res.Completion,
		TokensGenerated: res.TokensGenerated,
		TotalTimeMS:     res.Stats.Duration.Milliseconds(),
		TokensPerSecond: res.Stats.TPS,
		Model:           meta,
	}
}
