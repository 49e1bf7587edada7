package llm

import "context"

// Generator produces free text from a prompt. Implementations are treated as
// untrusted and unreliable: callers must validate anything parsed out of the
// response and fall back to local heuristics on failure.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Embedder maps text to a dense vector. A failed or empty embedding is not
// an error for callers; they score the affected signal as zero.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
