package memory

import "math"

// cosineSimilarity computes dot(a,b) / (||a|| * ||b||), returning 0 for
// mismatched lengths or degenerate (zero-norm) vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// tagOverlap counts tags shared by two tag sets.
func tagOverlap(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	count := 0
	for _, t := range b {
		if _, ok := set[t]; ok {
			count++
		}
	}
	return count
}

// keyOverlap computes the Jaccard overlap of two key sets: |a ∩ b| / |a ∪ b|.
func keyOverlap(a, b map[string]any) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
