package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	deepcopy "github.com/semcache/semcache/utils/copy"
)

// Snapshot is the serializable export format handed to the persistence
// collaborator. It is a plain value with no live references into the cache;
// the cache itself performs no file or network I/O.
type Snapshot struct {
	ID        string          `json:"id"`
	Entries   []SnapshotEntry `json:"entries"`
	Stats     Stats           `json:"stats"`
	Timestamp time.Time       `json:"timestamp"`
}

// SnapshotEntry captures one non-expired entry. Index data is deliberately
// absent: Import rebuilds every index and embedding from scratch.
type SnapshotEntry struct {
	Key      string          `json:"key"`
	Value    PayloadEnvelope `json:"value"`
	Type     string          `json:"type"`
	Metadata map[string]any  `json:"metadata,omitempty"`
	Hits     int64           `json:"hits"`
}

const (
	payloadKindText   = "text"
	payloadKindPrompt = "prompt"
	payloadKindOpaque = "opaque"
)

// PayloadEnvelope round-trips a Payload through JSON with an explicit kind
// tag, so Import never has to probe value shapes.
type PayloadEnvelope struct {
	Payload Payload
}

func (e PayloadEnvelope) MarshalJSON() ([]byte, error) {
	switch v := e.Payload.(type) {
	case Text:
		return json.Marshal(struct {
			Kind string `json:"kind"`
			Text string `json:"text"`
		}{payloadKindText, string(v)})
	case Prompt:
		return json.Marshal(struct {
			Kind   string         `json:"kind"`
			Prompt string         `json:"prompt"`
			Fields map[string]any `json:"fields,omitempty"`
		}{payloadKindPrompt, v.Prompt, v.Fields})
	case Opaque:
		return json.Marshal(struct {
			Kind string `json:"kind"`
			Data any    `json:"data"`
		}{payloadKindOpaque, v.Data})
	case nil:
		return nil, errors.New("cache: nil payload")
	default:
		return nil, fmt.Errorf("cache: unknown payload type %T", e.Payload)
	}
}

func (e *PayloadEnvelope) UnmarshalJSON(data []byte) error {
	var probe struct {
		Kind   string         `json:"kind"`
		Text   string         `json:"text"`
		Prompt string         `json:"prompt"`
		Fields map[string]any `json:"fields"`
		Data   any            `json:"data"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch probe.Kind {
	case payloadKindText:
		e.Payload = Text(probe.Text)
	case payloadKindPrompt:
		e.Payload = Prompt{Prompt: probe.Prompt, Fields: probe.Fields}
	case payloadKindOpaque:
		e.Payload = Opaque{Data: probe.Data}
	default:
		return fmt.Errorf("cache: unknown payload kind %q", probe.Kind)
	}
	return nil
}

// Export snapshots every non-expired entry plus the aggregate statistics.
// Metadata is deep-copied so the snapshot stays valid after later mutations.
func (c *Cache) Export() (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.clock.Now()
	snap := &Snapshot{
		ID:        uuid.NewString(),
		Entries:   make([]SnapshotEntry, 0, len(c.entries)),
		Stats:     c.stats.snapshot(len(c.entries), c.memoryUsage),
		Timestamp: now,
	}

	for key, entry := range c.entries {
		if entry.expired(now) {
			continue
		}
		metadata, err := deepcopy.Deep(entry.Metadata)
		if err != nil {
			return nil, fmt.Errorf("cache: copying metadata of %q: %w", key, err)
		}
		snap.Entries = append(snap.Entries, SnapshotEntry{
			Key:      key,
			Value:    PayloadEnvelope{entry.Value},
			Type:     entry.Type,
			Metadata: metadata,
			Hits:     entry.Hits,
		})
	}
	return snap, nil
}

// Import clears the cache and replays the snapshot through Set, rebuilding
// every index and embedding from scratch; nothing in the snapshot beyond the
// entries themselves is trusted. The snapshot is validated fully before the
// cache is cleared, so a malformed snapshot leaves the cache untouched.
func (c *Cache) Import(snap *Snapshot) error {
	if snap == nil {
		return errors.New("cache: nil snapshot")
	}
	seen := make(map[string]struct{}, len(snap.Entries))
	for i, e := range snap.Entries {
		if e.Key == "" {
			return fmt.Errorf("cache: snapshot entry %d has an empty key", i)
		}
		if _, dup := seen[e.Key]; dup {
			return fmt.Errorf("cache: snapshot contains key %q twice", e.Key)
		}
		seen[e.Key] = struct{}{}

		size, err := payloadSize(e.Value.Payload)
		if err != nil {
			return fmt.Errorf("cache: snapshot entry %q: %w", e.Key, err)
		}
		if size > c.config.MaxMemoryBytes {
			return fmt.Errorf("cache: snapshot entry %q: %w", e.Key, ErrEntryTooLarge)
		}
	}

	c.mu.Lock()
	c.clearLocked()
	c.mu.Unlock()

	for _, e := range snap.Entries {
		opts := SetOptions{Type: e.Type, Metadata: e.Metadata}
		if err := c.Set(e.Key, e.Value.Payload, opts); err != nil {
			return fmt.Errorf("cache: replaying snapshot entry %q: %w", e.Key, err)
		}
		c.restoreHits(e.Key, e.Hits)
	}

	c.logger.Infow("Imported cache snapshot",
		"snapshot_id", snap.ID,
		"entries", len(snap.Entries))
	return nil
}

func (c *Cache) restoreHits(key string, hits int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		entry.Hits = hits
	}
}

// EncodeSnapshot serializes a snapshot for the persistence collaborator.
func EncodeSnapshot(snap *Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

// DecodeSnapshot parses data produced by EncodeSnapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("cache: decoding snapshot: %w", err)
	}
	return &snap, nil
}
