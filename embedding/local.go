package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// LocalProvider is a deterministic, dependency-free embedder. Each token is
// hashed into a bucket of the output vector, so texts sharing words produce
// similar vectors. Suitable for local development and tests; it approximates
// lexical overlap, not meaning.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider creates a local embedder with the given dimension.
// A dimension <= 0 defaults to 256.
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = 256
	}
	return &LocalProvider{dimension: dimension}
}

// Embed produces a unit-normalized bag-of-words vector for text.
// It never fails and ignores ctx beyond cancellation.
func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float64, p.dimension)
	for _, token := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		idx := int(sum % uint64(p.dimension))
		sign := 1.0
		if sum&(1<<63) != 0 {
			sign = -1.0
		}
		vec[idx] += sign
	}

	normalize(vec)
	return vec, nil
}

// Dimension returns the embedding vector dimension.
func (p *LocalProvider) Dimension() int {
	return p.dimension
}

// tokenize splits text into lowercase word tokens, skipping single characters.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' ||
			r > 127)
	})
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.ToLower(f)
		if len(w) > 1 {
			result = append(result, w)
		}
	}
	return result
}

func normalize(vec []float64) {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
}
