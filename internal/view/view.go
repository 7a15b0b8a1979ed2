// Package view models page state as immutable snapshots advanced by a reducer.
//
// Every load is tagged with a token from a monotonically increasing counter; results
// carrying a token older than the latest issued one are dropped, so overlapping
// refreshes resolve to the newest request rather than the last one to finish.
package view

import (
	"sync"
	"time"
)

type Status int

const (
	Idle Status = iota
	Loading
	Ready
	Failed
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "idle"
}

type Snapshot[T any] struct {
	Status     Status
	Data       T
	Err        error
	Token      uint64
	LoadedAt   time.Time
	Fields     map[string]string
	Submitting bool
}

type Event interface {
	isEvent()
}

type LoadStarted struct {
	Token uint64
}

type LoadSucceeded[T any] struct {
	Token uint64
	Data  T
	At    time.Time
}

type LoadFailed struct {
	Token uint64
	Err   error
}

type FieldChanged struct {
	Name  string
	Value string
}

type SubmitRequested struct{}

// Invalidated marks loaded data as stale without discarding it.
type Invalidated struct{}

func (LoadStarted) isEvent()      {}
func (LoadSucceeded[T]) isEvent() {}
func (LoadFailed) isEvent()       {}
func (FieldChanged) isEvent()     {}
func (SubmitRequested) isEvent()  {}
func (Invalidated) isEvent()      {}

// Reduce returns the snapshot that results from applying e to s. s is not modified.
func Reduce[T any](s Snapshot[T], e Event) Snapshot[T] {
	switch ev := e.(type) {
	case LoadStarted:
		if ev.Token < s.Token {
			return s
		}
		s.Token = ev.Token
		s.Status = Loading
		s.Err = nil
	case LoadSucceeded[T]:
		if ev.Token != s.Token {
			return s
		}
		s.Status = Ready
		s.Data = ev.Data
		s.Err = nil
		s.LoadedAt = ev.At
		s.Submitting = false
	case LoadFailed:
		if ev.Token != s.Token {
			return s
		}
		// Previously loaded data stays in place.
		s.Status = Failed
		s.Err = ev.Err
		s.Submitting = false
	case FieldChanged:
		fields := make(map[string]string, len(s.Fields)+1)
		for k, v := range s.Fields {
			fields[k] = v
		}
		fields[ev.Name] = ev.Value
		s.Fields = fields
	case SubmitRequested:
		s.Submitting = true
	case Invalidated:
		s.LoadedAt = time.Time{}
	}
	return s
}

// Store holds the current snapshot of one view and issues request tokens.
type Store[T any] struct {
	mu    sync.Mutex
	next  uint64
	state Snapshot[T]
}

// Begin issues a new token and moves the view to Loading.
func (st *Store[T]) Begin() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.next++
	st.state = Reduce(st.state, LoadStarted{Token: st.next})
	return st.next
}

func (st *Store[T]) Dispatch(e Event) Snapshot[T] {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state = Reduce(st.state, e)
	return st.state
}

func (st *Store[T]) Current() Snapshot[T] {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// Fresh returns the loaded data when it is younger than ttl.
func (st *Store[T]) Fresh(now time.Time, ttl time.Duration) (T, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	var zero T
	if st.state.LoadedAt.IsZero() || now.Sub(st.state.LoadedAt) >= ttl {
		return zero, false
	}
	return st.state.Data, true
}
