package ai

import "context"

// Client is the port for the model-serving collaborator. Implementations
// own their per-call timeouts: short for the availability probe, long for
// generation.
type Client interface {
	// CheckAvailability probes the serving endpoint. It never returns an
	// error; any failure is reported as false.
	CheckAvailability(ctx context.Context) bool

	// Generate runs a single non-streaming completion and returns the raw
	// generated text. Failures are classified onto ErrAIService.
	Generate(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}
