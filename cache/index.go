package cache

// index registers entry in every secondary index. Must run under the write
// lock, in the same critical section that put the entry in the entry map.
func (c *Cache) index(entry *Entry) {
	c.hashIndex[hashKey(entry.Key)] = entry.Key

	bucket, ok := c.sizeIndex[entry.Size]
	if !ok {
		bucket = make(map[string]struct{})
		c.sizeIndex[entry.Size] = bucket
	}
	bucket[entry.Key] = struct{}{}

	tagged, ok := c.typeIndex[entry.Type]
	if !ok {
		tagged = make(map[string]struct{})
		c.typeIndex[entry.Type] = tagged
	}
	tagged[entry.Key] = struct{}{}

	if text, embeddable := entry.Value.EmbeddingText(); embeddable {
		c.embeddings[entry.Key] = vectorize(text)
	} else {
		delete(c.embeddings, entry.Key)
	}
}

// deindex removes every derived reference to entry, pruning size and type
// buckets that become empty.
func (c *Cache) deindex(entry *Entry) {
	delete(c.hashIndex, hashKey(entry.Key))

	if bucket, ok := c.sizeIndex[entry.Size]; ok {
		delete(bucket, entry.Key)
		if len(bucket) == 0 {
			delete(c.sizeIndex, entry.Size)
		}
	}

	if tagged, ok := c.typeIndex[entry.Type]; ok {
		delete(tagged, entry.Key)
		if len(tagged) == 0 {
			delete(c.typeIndex, entry.Type)
		}
	}

	delete(c.embeddings, entry.Key)
}

// GetByType returns copies of the live entries carrying the given type tag.
// The scan is administrative: it does not count as access and leaves the
// recency order untouched.
func (c *Cache) GetByType(typeTag string) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.clock.Now()
	keys := c.typeIndex[typeTag]
	out := make([]Entry, 0, len(keys))
	for key := range keys {
		entry, ok := c.entries[key]
		if !ok || entry.expired(now) {
			continue
		}
		out = append(out, entry.clone())
	}
	return out
}

// GetBySizeRange returns copies of the live entries whose recorded size lies
// in [minBytes, maxBytes]. Like GetByType, it never mutates recency order.
func (c *Cache) GetBySizeRange(minBytes, maxBytes int64) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.clock.Now()
	var out []Entry
	for size, keys := range c.sizeIndex {
		if size < minBytes || size > maxBytes {
			continue
		}
		for key := range keys {
			entry, ok := c.entries[key]
			if !ok || entry.expired(now) {
				continue
			}
			out = append(out, entry.clone())
		}
	}
	return out
}
