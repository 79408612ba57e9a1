// Package eventbus implements the EventBus of spec.md §4.12: fan-out of
// signal lifecycle events to registered listeners, with sequential,
// per-listener delivery order and independent progress across listeners.
package eventbus

import (
	"sync"

	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
)

// Listener receives lifecycle ticks.
type Listener func(signal.TickResult)

// ErrorListener receives engine errors (e.g. generation timeouts, candle
// fetch failures) not tied to a specific tick result.
type ErrorListener func(error)

// DoneListener is notified once a driver run has fully stopped.
type DoneListener func()

const queueDepth = 256

// Bus fans out events to subscribed listeners. Each listener has its own
// worker goroutine draining a private queue, so a slow listener never
// delays another, and a single listener always observes events in emission
// order (spec.md §4.12, §5 "Ordering guarantees").
type Bus struct {
	mu     sync.Mutex
	nextID int
	ticks  map[int]*tickSub
	errs   map[int]*errSub
	dones  map[int]*doneSub
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{
		ticks: make(map[int]*tickSub),
		errs:  make(map[int]*errSub),
		dones: make(map[int]*doneSub),
	}
}

// Each sub type carries its own mutex guarding queue/closed: Emit and
// Unsubscribe both take it before touching the channel, so a concurrent
// Unsubscribe can never close a channel Emit is mid-send on (spec.md §5,
// "subscribing/unsubscribing is safe concurrently with emission").
type tickSub struct {
	mu     sync.Mutex
	closed bool
	queue  chan signal.TickResult
	filter func(signal.TickResult) bool
	once   bool
	done   chan struct{}
}

func (s *tickSub) send(ev signal.TickResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.queue <- ev
	}
}

func (s *tickSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
}

type errSub struct {
	mu     sync.Mutex
	closed bool
	queue  chan error
	done   chan struct{}
}

func (s *errSub) send(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.queue <- err
	}
}

func (s *errSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
}

type doneSub struct {
	mu     sync.Mutex
	closed bool
	queue  chan struct{}
	done   chan struct{}
}

func (s *doneSub) send() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.queue <- struct{}{}
	}
}

func (s *doneSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
}

// Unsubscribe stops delivery to a previously registered listener. Safe to
// call concurrently with emission and more than once.
type Unsubscribe func()

// Subscribe registers fn to receive every emitted TickResult, in order.
func (b *Bus) Subscribe(fn Listener) Unsubscribe {
	return b.subscribe(fn, nil, false)
}

// SubscribeOnce invokes fn at most once, for the first TickResult matching
// filter, then unsubscribes itself (spec.md §4.12, "listen-once with
// filter"). A nil filter matches every event.
func (b *Bus) SubscribeOnce(filter func(signal.TickResult) bool, fn Listener) Unsubscribe {
	return b.subscribe(fn, filter, true)
}

func (b *Bus) subscribe(fn Listener, filter func(signal.TickResult) bool, once bool) Unsubscribe {
	sub := &tickSub{
		queue:  make(chan signal.TickResult, queueDepth),
		filter: filter,
		once:   once,
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.ticks[id] = sub
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.ticks, id)
		b.mu.Unlock()
		sub.close()
	}

	go func() {
		defer close(sub.done)
		for ev := range sub.queue {
			if sub.filter != nil && !sub.filter(ev) {
				continue
			}
			fn(ev)
			if sub.once {
				unsub()
				return
			}
		}
	}()

	return unsub
}

// SubscribeError registers fn to receive emitted errors, in order.
func (b *Bus) SubscribeError(fn ErrorListener) Unsubscribe {
	sub := &errSub{queue: make(chan error, queueDepth), done: make(chan struct{})}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.errs[id] = sub
	b.mu.Unlock()

	go func() {
		defer close(sub.done)
		for err := range sub.queue {
			fn(err)
		}
	}()

	return func() {
		b.mu.Lock()
		delete(b.errs, id)
		b.mu.Unlock()
		sub.close()
	}
}

// SubscribeDone registers fn to be invoked on every EmitDone; Close does
// not invoke it.
func (b *Bus) SubscribeDone(fn DoneListener) Unsubscribe {
	sub := &doneSub{queue: make(chan struct{}, 1), done: make(chan struct{})}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.dones[id] = sub
	b.mu.Unlock()

	go func() {
		defer close(sub.done)
		for range sub.queue {
			fn()
		}
	}()

	return func() {
		b.mu.Lock()
		delete(b.dones, id)
		b.mu.Unlock()
		sub.close()
	}
}

// Emit fans out a tick result to every subscribed listener. Non-blocking
// per listener up to the queue's capacity; a listener that falls behind by
// queueDepth events blocks the emitter (back-pressure, not drop).
func (b *Bus) Emit(ev signal.TickResult) {
	b.mu.Lock()
	subs := make([]*tickSub, 0, len(b.ticks))
	for _, s := range b.ticks {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.send(ev)
	}
}

// EmitError fans out an error to every subscribed error listener.
func (b *Bus) EmitError(err error) {
	b.mu.Lock()
	subs := make([]*errSub, 0, len(b.errs))
	for _, s := range b.errs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.send(err)
	}
}

// EmitDone notifies every subscribed done listener.
func (b *Bus) EmitDone() {
	b.mu.Lock()
	subs := make([]*doneSub, 0, len(b.dones))
	for _, s := range b.dones {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.send()
	}
}

// Close unsubscribes every listener, stopping their worker goroutines.
func (b *Bus) Close() {
	b.mu.Lock()
	ticks := b.ticks
	errs := b.errs
	dones := b.dones
	b.ticks = make(map[int]*tickSub)
	b.errs = make(map[int]*errSub)
	b.dones = make(map[int]*doneSub)
	b.mu.Unlock()

	for _, s := range ticks {
		s.close()
	}
	for _, s := range errs {
		s.close()
	}
	for _, s := range dones {
		s.close()
	}
}
