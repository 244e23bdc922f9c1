package session

import (
	"log/slog"
	"sync"
)

// Bus delivers session events to registered observers. Observers run
// synchronously on the goroutine that produced the event, in registration
// order. A panicking observer is logged and does not affect the others.
type Bus struct {
	mu      sync.RWMutex
	nextID  int
	updates []observer[Info]
	outputs []observer[OutputEvent]
	exits   []observer[ExitEvent]
	removed []observer[Info]
}

// OutputEvent is one chunk of raw process output.
type OutputEvent struct {
	Session Info
	Data    string
}

type observer[T any] struct {
	id int
	fn func(T)
}

func NewBus() *Bus {
	return &Bus{}
}

// OnSessionUpdate registers fn for every status change. The returned
// function unregisters it.
func (b *Bus) OnSessionUpdate(fn func(Info)) (dispose func()) {
	return register(b, &b.updates, fn)
}

// OnRawOutput registers fn for every output chunk.
func (b *Bus) OnRawOutput(fn func(OutputEvent)) (dispose func()) {
	return register(b, &b.outputs, fn)
}

// OnExit registers fn for process termination.
func (b *Bus) OnExit(fn func(ExitEvent)) (dispose func()) {
	return register(b, &b.exits, fn)
}

// OnRemove registers fn for sessions removed by cleanup.
func (b *Bus) OnRemove(fn func(Info)) (dispose func()) {
	return register(b, &b.removed, fn)
}

func (b *Bus) publishUpdate(info Info) { publish(b, &b.updates, info, "session_update") }

func (b *Bus) publishOutput(ev OutputEvent) { publish(b, &b.outputs, ev, "raw_output") }

func (b *Bus) publishExit(ev ExitEvent) { publish(b, &b.exits, ev, "exit") }

func (b *Bus) publishRemove(info Info) { publish(b, &b.removed, info, "remove") }

func register[T any](b *Bus, list *[]observer[T], fn func(T)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	*list = append(*list, observer[T]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, o := range *list {
				if o.id == id {
					// Copy so snapshots taken by publish stay intact.
					next := make([]observer[T], 0, len(*list)-1)
					next = append(next, (*list)[:i]...)
					*list = append(next, (*list)[i+1:]...)
					return
				}
			}
		})
	}
}

func publish[T any](b *Bus, list *[]observer[T], ev T, kind string) {
	b.mu.RLock()
	snapshot := *list
	b.mu.RUnlock()

	for _, o := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("session observer panicked", "event", kind, "panic", r)
				}
			}()
			o.fn(ev)
		}()
	}
}
