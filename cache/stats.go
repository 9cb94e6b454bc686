package cache

import "time"

// latencyWindowSize bounds the rolling access-latency sample set.
const latencyWindowSize = 256

// Stats is a point-in-time copy of the cache counters. The three eviction
// counters are kept separate so capacity pressure, memory pressure and expiry
// can be observed independently.
type Stats struct {
	Hits            int64         `json:"hits"`
	Misses          int64         `json:"misses"`
	Sets            int64         `json:"sets"`
	LRUEvictions    int64         `json:"lru_evictions"`
	MemoryEvictions int64         `json:"memory_evictions"`
	TTLEvictions    int64         `json:"ttl_evictions"`
	Entries         int64         `json:"entries"`
	MemoryBytes     int64         `json:"memory_bytes"`
	HitRate         float64       `json:"hit_rate"`
	AverageLatency  time.Duration `json:"average_latency"`
}

// statsRecorder accumulates counters and a rolling latency window. It is
// guarded by the cache's lock and has no locking of its own.
type statsRecorder struct {
	hits   int64
	misses int64
	sets   int64

	lruEvictions    int64
	memoryEvictions int64
	ttlEvictions    int64

	// Rolling efficiency ratio, refreshed by the maintenance loop.
	hitRate float64

	latencies    [latencyWindowSize]time.Duration
	latencyCount int
	latencyNext  int
}

func (s *statsRecorder) recordLatency(d time.Duration) {
	s.latencies[s.latencyNext] = d
	s.latencyNext = (s.latencyNext + 1) % latencyWindowSize
	if s.latencyCount < latencyWindowSize {
		s.latencyCount++
	}
}

func (s *statsRecorder) averageLatency() time.Duration {
	if s.latencyCount == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < s.latencyCount; i++ {
		total += s.latencies[i]
	}
	return total / time.Duration(s.latencyCount)
}

func (s *statsRecorder) currentHitRate() float64 {
	total := s.hits + s.misses
	if total == 0 {
		return 0
	}
	return float64(s.hits) / float64(total)
}

func (s *statsRecorder) refreshHitRate() float64 {
	s.hitRate = s.currentHitRate()
	return s.hitRate
}

func (s *statsRecorder) snapshot(entries int, memoryBytes int64) Stats {
	return Stats{
		Hits:            s.hits,
		Misses:          s.misses,
		Sets:            s.sets,
		LRUEvictions:    s.lruEvictions,
		MemoryEvictions: s.memoryEvictions,
		TTLEvictions:    s.ttlEvictions,
		Entries:         int64(entries),
		MemoryBytes:     memoryBytes,
		HitRate:         s.currentHitRate(),
		AverageLatency:  s.averageLatency(),
	}
}

func (s *statsRecorder) reset() {
	*s = statsRecorder{}
}
