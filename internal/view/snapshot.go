// Package view holds the fetched snapshot behind each analyst view and
// the cache of views derived from it.
//
// Every fetch takes a sequence number before it starts. A result is
// applied only when its sequence is newer than the last applied one, so a
// slow response can never overwrite a fresher snapshot. A failed fetch
// records an error state and keeps the last good snapshot; there is no
// automatic retry.
package view

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/riskview/internal/bus"
	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/metrics"
)

// State is the presentation state of a view.
type State string

const (
	StateEmpty State = "empty"
	StateReady State = "ready"
	StateError State = "error"
)

// Fetcher loads a fresh snapshot from the statistics service.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Status describes the snapshot currently held by a view.
type Status struct {
	State     State     `json:"state"`
	Sequence  uint64    `json:"sequence"`
	FetchedAt time.Time `json:"fetchedAt,omitzero"`
	Error     string    `json:"error,omitempty"`
	ErrorAt   time.Time `json:"errorAt,omitzero"`
}

// Options wires a snapshot to the rest of the process. All fields are optional.
type Options[T any] struct {
	Bus     domain.EventBus
	Scope   string
	Metrics *metrics.Metrics

	// Size reports how many records a snapshot holds, for events and logs.
	Size func(T) int
}

// Snapshot owns the data of one view.
type Snapshot[T any] struct {
	name  string
	fetch Fetcher[T]
	opts  Options[T]
	now   func() time.Time

	issued atomic.Uint64

	mu        sync.RWMutex
	data      T
	has       bool
	applied   uint64
	fetchedAt time.Time
	lastErr   string
	errAt     time.Time
}

// NewSnapshot creates an empty snapshot for the named view.
func NewSnapshot[T any](name string, fetch Fetcher[T], opts Options[T]) *Snapshot[T] {
	return &Snapshot[T]{
		name:  name,
		fetch: fetch,
		opts:  opts,
		now:   time.Now,
	}
}

// Name returns the view name.
func (s *Snapshot[T]) Name() string {
	return s.name
}

// Refresh fetches a new snapshot. The returned error is the fetch error;
// a response that arrives after a newer one was applied is discarded
// without error.
func (s *Snapshot[T]) Refresh(ctx context.Context) error {
	seq := s.issued.Add(1)
	data, err := s.fetch(ctx)

	s.mu.Lock()
	if seq <= s.applied {
		s.mu.Unlock()
		s.opts.Metrics.ObserveFetch(s.name, "stale")
		slog.Debug("stale snapshot discarded", "view", s.name, "sequence", seq)
		return nil
	}
	s.applied = seq

	if err != nil {
		s.lastErr = err.Error()
		s.errAt = s.now()
		s.mu.Unlock()

		s.opts.Metrics.ObserveFetch(s.name, "error")
		slog.Warn("snapshot fetch failed", "view", s.name, "sequence", seq, "error", err)
		s.publish(ctx, domain.TopicFetchFailed, domain.SnapshotEvent{
			View:     s.name,
			Sequence: seq,
			Error:    err.Error(),
		})
		return err
	}

	s.data = data
	s.has = true
	s.fetchedAt = s.now()
	s.lastErr = ""
	s.errAt = time.Time{}
	s.mu.Unlock()

	size := 0
	if s.opts.Size != nil {
		size = s.opts.Size(data)
	}
	s.opts.Metrics.ObserveFetch(s.name, "applied")
	slog.Debug("snapshot applied", "view", s.name, "sequence", seq, "records", size)
	s.publish(ctx, domain.TopicSnapshotRefreshed, domain.SnapshotEvent{
		View:     s.name,
		Sequence: seq,
		Records:  size,
	})
	return nil
}

// Ensure fetches once if the view has neither data nor a recorded error.
// An error state is left alone until the next explicit Refresh.
func (s *Snapshot[T]) Ensure(ctx context.Context) error {
	s.mu.RLock()
	pending := !s.has && s.lastErr == ""
	s.mu.RUnlock()

	if !pending {
		return nil
	}
	return s.Refresh(ctx)
}

// Get returns the last good snapshot and the view status.
// ok is false when no snapshot has ever been applied.
func (s *Snapshot[T]) Get() (data T, status Status, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.data, s.statusLocked(), s.has
}

// Status returns the view status.
func (s *Snapshot[T]) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statusLocked()
}

func (s *Snapshot[T]) statusLocked() Status {
	st := Status{
		State:     StateEmpty,
		Sequence:  s.applied,
		FetchedAt: s.fetchedAt,
		Error:     s.lastErr,
		ErrorAt:   s.errAt,
	}
	switch {
	case s.lastErr != "":
		st.State = StateError
	case s.has:
		st.State = StateReady
	}
	return st
}

// Discard drops the snapshot and any error, and invalidates fetches
// still in flight.
func (s *Snapshot[T]) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	s.data = zero
	s.has = false
	s.fetchedAt = time.Time{}
	s.lastErr = ""
	s.errAt = time.Time{}
	s.applied = s.issued.Load()
}

func (s *Snapshot[T]) publish(ctx context.Context, topic string, ev domain.SnapshotEvent) {
	if s.opts.Bus == nil || s.opts.Scope == "" {
		return
	}
	if err := bus.PublishJSON(ctx, s.opts.Bus, s.opts.Scope, topic, ev); err != nil {
		slog.Debug("failed to publish snapshot event", "view", s.name, "topic", topic, "error", err)
	}
}
