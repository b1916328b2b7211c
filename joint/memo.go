package joint

import (
	"sync"
	"sync/atomic"
)

// memo is a step-scoped get-or-compute map. Concurrent callers asking for the
// same key share one computation.
type memo[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*memoEntry[V]
	hits    atomic.Int64
}

type memoEntry[V any] struct {
	once sync.Once
	val  V
}

func newMemo[K comparable, V any]() *memo[K, V] {
	return &memo[K, V]{entries: make(map[K]*memoEntry[V])}
}

func (m *memo[K, V]) get(key K, compute func() V) V {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &memoEntry[V]{}
		m.entries[key] = e
	} else {
		m.hits.Add(1)
	}
	m.mu.Unlock()

	e.once.Do(func() {
		e.val = compute()
	})
	return e.val
}

type voiceKey struct {
	state VoiceState
	batch string
}

type beatKey struct {
	state  BeatState
	batch  string
	meters string
}

type hierarchyKey struct {
	state HierarchyState
	beat  BeatState
	batch string
}

// memos holds every cache used during one Step or Close call.
type memos struct {
	voice     *memo[voiceKey, []VoiceState]
	beat      *memo[beatKey, []BeatState]
	hierarchy *memo[hierarchyKey, []HierarchyState]
}

func newMemos() *memos {
	return &memos{
		voice:     newMemo[voiceKey, []VoiceState](),
		beat:      newMemo[beatKey, []BeatState](),
		hierarchy: newMemo[hierarchyKey, []HierarchyState](),
	}
}

func (m *memos) hits() int64 {
	return m.voice.hits.Load() + m.beat.hits.Load() + m.hierarchy.hits.Load()
}
