package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/semcache/semcache/cache"
	"github.com/semcache/semcache/utils/array"
)

// API is the REST surface over the cache: the trigger path for external
// collaborators. The cache itself stays purely in-process; persistence of
// exported snapshots is the caller's business.
type API struct {
	cache  *cache.Cache
	logger *zap.SugaredLogger
}

func NewAPI(c *cache.Cache, logger *zap.SugaredLogger) *API {
	return &API{
		cache:  c,
		logger: logger,
	}
}

// RegisterRoutes mounts all cache endpoints on router.
func (api *API) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/cache/stats", api.getStats).Methods(http.MethodGet)

	router.HandleFunc("/cache/entries", api.putEntry).Methods(http.MethodPost)
	router.HandleFunc("/cache/entries/{key}", api.getEntry).Methods(http.MethodGet)
	router.HandleFunc("/cache/entries/{key}", api.deleteEntry).Methods(http.MethodDelete)

	router.HandleFunc("/cache/similar", api.findSimilar).Methods(http.MethodPost)
	router.HandleFunc("/cache/types/{type}", api.getByType).Methods(http.MethodGet)
	router.HandleFunc("/cache/sizes", api.getBySizeRange).Methods(http.MethodGet)

	router.HandleFunc("/cache/export", api.exportSnapshot).Methods(http.MethodGet)
	router.HandleFunc("/cache/import", api.importSnapshot).Methods(http.MethodPost)
	router.HandleFunc("/cache/clear", api.clear).Methods(http.MethodPost)
	router.HandleFunc("/cache/evict", api.evict).Methods(http.MethodPost)
}

type setEntryRequest struct {
	Key      string                `json:"key"`
	Value    cache.PayloadEnvelope `json:"value"`
	TTLMs    int64                 `json:"ttl_ms,omitempty"`
	Type     string                `json:"type,omitempty"`
	Metadata map[string]any        `json:"metadata,omitempty"`
}

type findSimilarRequest struct {
	Text      string  `json:"text"`
	Threshold float64 `json:"threshold,omitempty"`
}

type entryInfo struct {
	Key       string                `json:"key"`
	Value     cache.PayloadEnvelope `json:"value"`
	Type      string                `json:"type"`
	Size      int64                 `json:"size"`
	Hits      int64                 `json:"hits"`
	CreatedAt time.Time             `json:"created_at"`
	Metadata  map[string]any        `json:"metadata,omitempty"`
}

func toEntryInfo(entry cache.Entry) entryInfo {
	return entryInfo{
		Key:       entry.Key,
		Value:     cache.PayloadEnvelope{Payload: entry.Value},
		Type:      entry.Type,
		Size:      entry.Size,
		Hits:      entry.Hits,
		CreatedAt: entry.CreatedAt,
		Metadata:  entry.Metadata,
	}
}

func (api *API) getStats(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, api.cache.Stats())
}

func (api *API) putEntry(w http.ResponseWriter, r *http.Request) {
	var req setEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}
	if req.Key == "" {
		api.writeError(w, http.StatusBadRequest, "invalid_request", "Key must not be empty")
		return
	}
	if req.Value.Payload == nil {
		api.writeError(w, http.StatusBadRequest, "invalid_request", "Value must not be empty")
		return
	}

	opts := cache.SetOptions{
		TTL:      time.Duration(req.TTLMs) * time.Millisecond,
		Type:     req.Type,
		Metadata: req.Metadata,
	}
	if err := api.cache.Set(req.Key, req.Value.Payload, opts); err != nil {
		if errors.Is(err, cache.ErrEntryTooLarge) {
			api.writeError(w, http.StatusRequestEntityTooLarge, "entry_too_large", "Entry exceeds the memory budget")
			return
		}
		api.logger.Errorw("Failed to store cache entry", "error", err, "key", req.Key)
		api.writeError(w, http.StatusInternalServerError, "store_failed", "Failed to store cache entry")
		return
	}

	api.writeJSON(w, http.StatusCreated, map[string]any{
		"key":       req.Key,
		"timestamp": time.Now(),
	})
}

func (api *API) getEntry(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	value, ok := api.cache.Get(key)
	if !ok {
		api.writeError(w, http.StatusNotFound, "entry_not_found", "Cache entry not found")
		return
	}

	api.writeJSON(w, http.StatusOK, map[string]any{
		"key":   key,
		"value": cache.PayloadEnvelope{Payload: value},
	})
}

func (api *API) deleteEntry(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	if !api.cache.Remove(key) {
		api.writeError(w, http.StatusNotFound, "entry_not_found", "Cache entry not found")
		return
	}

	api.writeJSON(w, http.StatusOK, map[string]any{
		"key":       key,
		"timestamp": time.Now(),
	})
}

func (api *API) findSimilar(w http.ResponseWriter, r *http.Request) {
	var req findSimilarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}
	if req.Text == "" {
		api.writeError(w, http.StatusBadRequest, "invalid_request", "Text must not be empty")
		return
	}

	matches := api.cache.FindSimilar(req.Text, req.Threshold)
	api.writeJSON(w, http.StatusOK, map[string]any{
		"matches": matches,
		"count":   len(matches),
	})
}

func (api *API) getByType(w http.ResponseWriter, r *http.Request) {
	typeTag := mux.Vars(r)["type"]

	entries := api.cache.GetByType(typeTag)
	api.writeJSON(w, http.StatusOK, map[string]any{
		"type":    typeTag,
		"entries": array.Map(entries, toEntryInfo),
		"count":   len(entries),
	})
}

func (api *API) getBySizeRange(w http.ResponseWriter, r *http.Request) {
	minBytes, err := parseSizeParam(r, "min", 0)
	if err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid_request", "min must be a non-negative integer")
		return
	}
	maxBytes, err := parseSizeParam(r, "max", int64(^uint64(0)>>1))
	if err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid_request", "max must be a non-negative integer")
		return
	}

	entries := api.cache.GetBySizeRange(minBytes, maxBytes)
	api.writeJSON(w, http.StatusOK, map[string]any{
		"min":     minBytes,
		"max":     maxBytes,
		"entries": array.Map(entries, toEntryInfo),
		"count":   len(entries),
	})
}

func (api *API) exportSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := api.cache.Export()
	if err != nil {
		api.logger.Errorw("Failed to export cache", "error", err)
		api.writeError(w, http.StatusInternalServerError, "export_failed", "Failed to export cache")
		return
	}
	api.writeJSON(w, http.StatusOK, snapshot)
}

func (api *API) importSnapshot(w http.ResponseWriter, r *http.Request) {
	var snapshot cache.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid snapshot payload")
		return
	}

	if err := api.cache.Import(&snapshot); err != nil {
		api.writeError(w, http.StatusBadRequest, "import_failed", err.Error())
		return
	}

	api.writeJSON(w, http.StatusOK, map[string]any{
		"snapshot_id": snapshot.ID,
		"entries":     len(snapshot.Entries),
		"timestamp":   time.Now(),
	})
}

func (api *API) clear(w http.ResponseWriter, r *http.Request) {
	api.cache.Clear()
	api.writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Cache cleared successfully",
		"timestamp": time.Now(),
	})
}

func (api *API) evict(w http.ResponseWriter, r *http.Request) {
	evicted := api.cache.EvictLRU()
	api.writeJSON(w, http.StatusOK, map[string]any{
		"evicted":   evicted,
		"timestamp": time.Now(),
	})
}

func parseSizeParam(r *http.Request, name string, defaultValue int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, errors.New("invalid size parameter")
	}
	return value, nil
}

func (api *API) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		api.logger.Errorw("Failed to encode JSON response", "error", err)
	}
}

func (api *API) writeError(w http.ResponseWriter, status int, errorType, message string) {
	api.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"type":    errorType,
			"message": message,
			"code":    status,
		},
	})
}
