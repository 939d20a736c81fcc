package view

import (
	"container/list"
	"context"
	"sync"
)

// DefaultMaxKeys bounds a Keyed set when no limit is given.
const DefaultMaxKeys = 128

// Keyed holds one snapshot per key, such as one per customer. At most
// maxKeys snapshots are kept; the least recently used one is discarded
// to make room.
type Keyed[T any] struct {
	name    string
	fetch   func(ctx context.Context, key string) (T, error)
	opts    Options[T]
	maxKeys int

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List
}

type keyedEntry[T any] struct {
	key  string
	snap *Snapshot[T]
}

// NewKeyed creates an empty set of per-key snapshots holding at most
// maxKeys entries. A non-positive maxKeys means DefaultMaxKeys.
func NewKeyed[T any](name string, fetch func(ctx context.Context, key string) (T, error), opts Options[T], maxKeys int) *Keyed[T] {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &Keyed[T]{
		name:    name,
		fetch:   fetch,
		opts:    opts,
		maxKeys: maxKeys,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// For returns the snapshot of key, creating it on first use.
func (k *Keyed[T]) For(key string) *Snapshot[T] {
	k.mu.Lock()

	if elem, ok := k.items[key]; ok {
		k.order.MoveToFront(elem)
		s := elem.Value.(*keyedEntry[T]).snap
		k.mu.Unlock()
		return s
	}

	s := NewSnapshot(k.name+":"+key, func(ctx context.Context) (T, error) {
		return k.fetch(ctx, key)
	}, k.opts)
	k.items[key] = k.order.PushFront(&keyedEntry[T]{key: key, snap: s})

	var evicted []*Snapshot[T]
	for k.order.Len() > k.maxKeys {
		oldest := k.order.Back()
		entry := oldest.Value.(*keyedEntry[T])
		k.order.Remove(oldest)
		delete(k.items, entry.key)
		evicted = append(evicted, entry.snap)
	}
	k.mu.Unlock()

	for _, e := range evicted {
		e.Discard()
	}
	return s
}

// Len returns the number of keys currently held.
func (k *Keyed[T]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.items)
}

// Discard drops every per-key snapshot.
func (k *Keyed[T]) Discard() {
	k.mu.Lock()
	order := k.order
	k.items = make(map[string]*list.Element)
	k.order = list.New()
	k.mu.Unlock()

	for e := order.Front(); e != nil; e = e.Next() {
		e.Value.(*keyedEntry[T]).snap.Discard()
	}
}
