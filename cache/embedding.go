package cache

import (
	"hash/fnv"
	"math"
	"strings"
)

// Embedding geometry. Each token contributes the eight bytes of its FNV-1a
// hash, scattered into the block selected by the token's position modulo the
// fan-out. embeddingDim must stay equal to embeddingFanOut * 8 so every hash
// byte lands on a distinct component within its block.
const (
	embeddingDim    = 64
	embeddingFanOut = 8
)

// vectorize builds the deterministic, hash-derived embedding for text:
// whitespace tokenization, a 64-bit content hash per token, hash bytes
// accumulated into a fixed-width vector, then L2 normalization. There is no
// trained model here; identical text always yields an identical vector.
func vectorize(text string) []float32 {
	vec := make([]float32, embeddingDim)
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return vec
	}

	for i, token := range tokens {
		hasher := fnv.New64a()
		hasher.Write([]byte(token))
		sum := hasher.Sum64()

		base := (i % embeddingFanOut) * 8
		for b := 0; b < 8; b++ {
			vec[base+b] += float32(byte(sum >> (8 * b)))
		}
	}

	normalize(vec)
	return vec
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	inv := 1 / math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
}

// cosine computes the similarity of two L2-normalized vectors, which reduces
// to their dot product.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
