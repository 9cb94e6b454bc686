package cache

import (
	"github.com/semcache/semcache/utils/heap"
)

// Match is one FindSimilar result.
type Match struct {
	Key        string  `json:"key"`
	Value      Payload `json:"value"`
	Similarity float64 `json:"similarity"`
	Hits       int64   `json:"hits"`
}

// FindSimilar returns the live entries whose embedding has cosine similarity
// of at least threshold with text, sorted descending by similarity with ties
// broken by descending hit count. A threshold <= 0 falls back to the
// configured default.
//
// The scan is linear over the embedding store; the store is bounded by
// MaxEntries, so no nearest-neighbor index is kept.
func (c *Cache) FindSimilar(text string, threshold float64) []Match {
	if threshold <= 0 {
		threshold = c.config.SimilarityThreshold
	}
	query := vectorize(text)

	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.clock.Now()
	ranked := heap.NewMaxHeap(func(a, b Match) bool {
		if a.Similarity != b.Similarity {
			return a.Similarity < b.Similarity
		}
		return a.Hits < b.Hits
	})

	for key, vec := range c.embeddings {
		entry, ok := c.entries[key]
		if !ok || entry.expired(now) {
			continue
		}
		similarity := cosine(query, vec)
		if similarity < threshold {
			continue
		}
		ranked.Push(Match{
			Key:        key,
			Value:      entry.Value,
			Similarity: similarity,
			Hits:       entry.Hits,
		})
	}

	out := make([]Match, 0, ranked.Len())
	for {
		match, ok := ranked.Pop()
		if !ok {
			break
		}
		out = append(out, match)
	}
	return out
}
