package copy

import "github.com/goccy/go-json"

// Deep clones src through a JSON round trip. Only JSON-serializable values
// survive; that is the contract for cache metadata and snapshot payloads.
func Deep[T any](src T) (T, error) {
	var dst T
	bytes, err := json.Marshal(src)
	if err != nil {
		return dst, err
	}
	if err := json.Unmarshal(bytes, &dst); err != nil {
		return dst, err
	}
	return dst, nil
}
