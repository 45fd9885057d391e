// Package embedding provides the text-to-vector provider consumed by the
// memory tiers. The provider is an injected dependency: the tiers treat an
// unavailable provider as a degrade signal, never as a failure.
package embedding

import (
	"context"
	"errors"
)

// Provider generates a dense vector embedding for a piece of text.
type Provider interface {
	// Embed converts text into a vector. Implementations return
	// ErrUnavailable (possibly wrapped) when the backing model cannot be
	// reached; callers must degrade to non-semantic ranking in that case.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int
}

// ErrUnavailable signals that the embedding backend cannot serve requests.
// It is a degrade signal, not a fatal error.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Config holds embedding provider configuration.
type Config struct {
	Provider  string  `yaml:"provider" json:"provider"` // "api" or "local"
	Endpoint  string  `yaml:"endpoint" json:"endpoint"`
	Model     string  `yaml:"model" json:"model"`
	APIKey    string  `yaml:"api_key" json:"api_key"`
	Dimension int     `yaml:"dimension" json:"dimension"`
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"` // requests per second, 0 = unlimited
}
