package cache

import (
	"maps"
	"time"
)

// DefaultType is the categorical tag applied to entries stored without one.
const DefaultType = "default"

// New field costs: string=16 ptr=8 time.Time=24 int64=8 map header=8 +
// recency node (64) + four index memberships (96) = 256
const entryOverhead = 256

// Payload is the value carried by a cache entry. The variants make the
// embedding step's applicability explicit: Text and Prompt are indexed for
// similarity search, Opaque is not.
type Payload interface {
	// EmbeddingText returns the text used to build the entry's embedding.
	// The second return value reports whether the payload is embeddable.
	EmbeddingText() (string, bool)
}

// Text is a plain string payload.
type Text string

func (t Text) EmbeddingText() (string, bool) {
	return string(t), t != ""
}

// Prompt is a structured payload: the prompt that produced a generation
// result plus arbitrary companion fields.
type Prompt struct {
	Prompt string         `json:"prompt"`
	Fields map[string]any `json:"fields,omitempty"`
}

func (p Prompt) EmbeddingText() (string, bool) {
	return p.Prompt, p.Prompt != ""
}

// Opaque wraps any payload that carries no indexable text.
type Opaque struct {
	Data any `json:"data"`
}

func (o Opaque) EmbeddingText() (string, bool) {
	return "", false
}

// Entry is one cached item. Entries are owned by the cache; accessors hand
// out copies with a detached metadata map. Payload values and nested metadata
// values are shared and must be treated as immutable.
type Entry struct {
	// Unique key, typically a request fingerprint derived from a prompt.
	Key string `json:"key"`

	Value Payload `json:"value"`

	// Byte-size estimate of Value, computed once at insertion.
	Size int64 `json:"size"`

	CreatedAt time.Time `json:"created_at"`

	// TTL after CreatedAt. Zero falls back to the cache default at insert,
	// so a stored entry always carries a concrete TTL.
	TTL time.Duration `json:"ttl"`

	// Caller-supplied categorical tag.
	Type string `json:"type"`

	// Number of times the entry has been read.
	Hits int64 `json:"hits"`

	// Opaque caller-supplied bag, not interpreted by the cache.
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (e *Entry) expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) > e.TTL
}

// clone is the copy handed out by accessors. The metadata map is cloned so a
// caller cannot write through it into cache-owned state.
func (e *Entry) clone() Entry {
	out := *e
	out.Metadata = maps.Clone(e.Metadata)
	return out
}

// SetOptions carries the optional per-entry parameters of Set.
type SetOptions struct {
	// TTL for this entry. Zero means the cache default.
	TTL time.Duration

	// Type tag. Empty means DefaultType.
	Type string

	Metadata map[string]any
}
