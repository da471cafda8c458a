// Package embedding turns text into dense vectors via an embedding API.
package embedding

import "context"

// Provider generates embedding vectors for text.
type Provider interface {
	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the vector size this provider produces.
	Dimensions() int
}
