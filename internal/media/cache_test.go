package media

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRequester answers files.read calls with a fixed payload or error,
// counting calls and optionally blocking until released.
type fakeRequester struct {
	calls   atomic.Int64
	payload any
	err     error
	block   chan struct{}
}

func (f *fakeRequester) Request(method string, params map[string]any) (any, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	return f.payload, f.err
}

func waitLoaded(t *testing.T, loaded <-chan struct{}) {
	t.Helper()
	select {
	case <-loaded:
	case <-time.After(2 * time.Second):
		t.Fatal("onLoaded never fired")
	}
}

func TestGetFetchesAndCaches(t *testing.T) {
	req := &fakeRequester{payload: map[string]any{"data": "QUJD"}}
	cache := NewCache(req)

	loaded := make(chan struct{})
	url, ok := cache.Get("/tmp/pic.png", "image/png", func() { close(loaded) })
	assert.False(t, ok)
	assert.Empty(t, url)

	waitLoaded(t, loaded)

	url, ok = cache.Get("/tmp/pic.png", "image/png", nil)
	assert.True(t, ok)
	assert.Equal(t, "data:image/png;base64,QUJD", url)
	assert.Equal(t, int64(1), req.calls.Load())
}

func TestGetSingleFlight(t *testing.T) {
	req := &fakeRequester{
		payload: map[string]any{"data": "QUJD"},
		block:   make(chan struct{}),
	}
	cache := NewCache(req)

	loaded := make(chan struct{})
	_, ok := cache.Get("/tmp/pic.png", "image/png", func() { close(loaded) })
	assert.False(t, ok)

	// Concurrent callers while the fetch is in flight share it.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := cache.Get("/tmp/pic.png", "image/png", func() {
				t.Error("onLoaded invoked for a deduplicated call")
			})
			assert.False(t, ok)
		}()
	}
	wg.Wait()

	close(req.block)
	waitLoaded(t, loaded)

	assert.Equal(t, int64(1), req.calls.Load())

	url, ok := cache.Get("/tmp/pic.png", "image/png", nil)
	assert.True(t, ok)
	assert.Equal(t, "data:image/png;base64,QUJD", url)
}

func TestGetError(t *testing.T) {
	req := &fakeRequester{err: errors.New("file not found")}
	cache := NewCache(req)

	loaded := make(chan struct{})
	_, ok := cache.Get("/missing", "image/png", func() { close(loaded) })
	assert.False(t, ok)

	waitLoaded(t, loaded)

	entry, found := cache.Lookup("/missing")
	require.True(t, found)
	assert.Equal(t, StateError, entry.State)
	assert.Equal(t, "file not found", entry.Message)

	// Failed entries do not retry.
	_, ok = cache.Get("/missing", "image/png", func() {
		t.Error("onLoaded invoked for a cached failure")
	})
	assert.False(t, ok)
	assert.Equal(t, int64(1), req.calls.Load())
}

func TestClear(t *testing.T) {
	req := &fakeRequester{payload: map[string]any{"data": "QUJD"}}
	cache := NewCache(req)

	loaded := make(chan struct{})
	cache.Get("/tmp/pic.png", "image/png", func() { close(loaded) })
	waitLoaded(t, loaded)

	cache.Clear()

	_, found := cache.Lookup("/tmp/pic.png")
	assert.False(t, found)

	// A cleared path fetches again.
	loaded = make(chan struct{})
	_, ok := cache.Get("/tmp/pic.png", "image/png", func() { close(loaded) })
	assert.False(t, ok)
	waitLoaded(t, loaded)
	assert.Equal(t, int64(2), req.calls.Load())
}

func TestDistinctPathsFetchSeparately(t *testing.T) {
	req := &fakeRequester{payload: map[string]any{"data": "QUJD"}}
	cache := NewCache(req)

	a := make(chan struct{})
	b := make(chan struct{})
	cache.Get("/a.png", "image/png", func() { close(a) })
	cache.Get("/b.jpg", "image/jpeg", func() { close(b) })
	waitLoaded(t, a)
	waitLoaded(t, b)

	assert.Equal(t, int64(2), req.calls.Load())

	urlA, _ := cache.Get("/a.png", "image/png", nil)
	urlB, _ := cache.Get("/b.jpg", "image/jpeg", nil)
	assert.Equal(t, "data:image/png;base64,QUJD", urlA)
	assert.Equal(t, "data:image/jpeg;base64,QUJD", urlB)
}
