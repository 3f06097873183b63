// Package media resolves file references from the gateway into data URLs,
// deduplicating concurrent fetches of the same path.
package media

import (
	"fmt"
	"sync"

	"clawpanel/pkg/logger"
)

// Requester issues correlated gateway calls. Satisfied by gateway.Client.
type Requester interface {
	Request(method string, params map[string]any) (any, error)
}

// EntryState is the lifecycle of one cached path.
type EntryState string

const (
	StateLoading EntryState = "loading"
	StateReady   EntryState = "ready"
	StateError   EntryState = "error"
)

// Entry is the cached outcome for one remote path.
type Entry struct {
	State   EntryState
	DataURL string
	Message string
}

// Cache is a single-flight fetch cache keyed by remote file path. Entries are
// never evicted individually; Clear drops them all on conversation reset.
type Cache struct {
	client Requester

	mu      sync.Mutex
	entries map[string]*Entry
}

// NewCache creates an empty cache backed by the given requester.
func NewCache(client Requester) *Cache {
	return &Cache{
		client:  client,
		entries: make(map[string]*Entry),
	}
}

// Get returns the data URL for path if it is already fetched. A cache miss
// starts one background fetch and returns ok=false; further calls while the
// fetch is in flight, or after it failed, also return ok=false without
// issuing another request. onLoaded fires exactly once per fetch, on success
// or failure, so the caller can re-render.
func (c *Cache) Get(path, mimeType string, onLoaded func()) (dataURL string, ok bool) {
	c.mu.Lock()
	if entry, found := c.entries[path]; found {
		c.mu.Unlock()
		if entry.State == StateReady {
			return entry.DataURL, true
		}
		return "", false
	}
	c.entries[path] = &Entry{State: StateLoading}
	c.mu.Unlock()

	go c.fetch(path, mimeType, onLoaded)
	return "", false
}

// Lookup returns the current entry for path, if any.
func (c *Cache) Lookup(path string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, found := c.entries[path]
	if !found {
		return Entry{}, false
	}
	return *entry, true
}

// Clear empties the cache unconditionally.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()
}

func (c *Cache) fetch(path, mimeType string, onLoaded func()) {
	payload, err := c.client.Request("files.read", map[string]any{"path": path})
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("media fetch failed")
		c.store(path, &Entry{State: StateError, Message: err.Error()})
	} else {
		data := extractData(payload)
		c.store(path, &Entry{
			State:   StateReady,
			DataURL: fmt.Sprintf("data:%s;base64,%s", mimeType, data),
		})
	}

	if onLoaded != nil {
		onLoaded()
	}
}

func (c *Cache) store(path string, entry *Entry) {
	c.mu.Lock()
	c.entries[path] = entry
	c.mu.Unlock()
}

func extractData(payload any) string {
	m, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	data, _ := m["data"].(string)
	return data
}
