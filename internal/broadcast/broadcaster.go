// Package broadcast fans a battle's ordered event stream out to observers.
//
// Every observer gets its own bounded queue and writer goroutine. Publishing
// never blocks: an observer whose queue is full, or whose sends keep failing,
// is detached without affecting anyone else.
package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var errObserverPanic = errors.New("observer panicked")

// Observer receives events. Send is called from a single goroutine per
// observer, in order.
type Observer interface {
	ID() string
	Send(ctx context.Context, ev Event) error
}

// Options tunes delivery.
type Options struct {
	QueueSize    int
	SendTimeout  time.Duration
	FailureLimit int
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 5 * time.Second
	}
	if o.FailureLimit <= 0 {
		o.FailureLimit = 3
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type subscription struct {
	observer Observer
	queue    chan Event
	stop     chan struct{}
	once     sync.Once
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.stop) })
}

// Broadcaster delivers events to the observers of one battle.
type Broadcaster struct {
	opts Options
	log  *slog.Logger

	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool
	wg     sync.WaitGroup
}

// New creates a Broadcaster.
func New(opts Options) *Broadcaster {
	opts = opts.withDefaults()
	return &Broadcaster{
		opts: opts,
		log:  opts.Logger.With("component", "broadcaster"),
		subs: make(map[string]*subscription),
	}
}

// Attach registers an observer. The initial events are queued ahead of any
// live event; an observer with the same id replaces the previous one.
func (b *Broadcaster) Attach(obs Observer, initial ...Event) {
	sub := &subscription{
		observer: obs,
		queue:    make(chan Event, max(b.opts.QueueSize, len(initial))),
		stop:     make(chan struct{}),
	}
	for _, ev := range initial {
		sub.queue <- ev
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if old, ok := b.subs[obs.ID()]; ok {
		old.close()
	}
	b.subs[obs.ID()] = sub
	b.wg.Add(1)
	b.mu.Unlock()

	go b.writer(sub)
	b.log.Debug("Observer attached", "observer", obs.ID())
}

// Detach removes an observer. Queued events are dropped.
func (b *Broadcaster) Detach(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detachLocked(id, nil)
}

func (b *Broadcaster) detachLocked(id string, only *subscription) {
	sub, ok := b.subs[id]
	if !ok || (only != nil && sub != only) {
		return
	}
	delete(b.subs, id)
	sub.close()
}

// Publish queues events for every observer without blocking.
func (b *Broadcaster) Publish(events ...Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		for _, ev := range events {
			select {
			case sub.queue <- ev:
			default:
				b.log.Warn("Observer queue full, detaching", "observer", id, "seq", ev.Seq)
				b.detachLocked(id, sub)
			}
			if _, still := b.subs[id]; !still {
				break
			}
		}
	}
}

// Count returns the number of attached observers.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close detaches every observer and waits for the writers to exit.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	for id := range b.subs {
		b.detachLocked(id, nil)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Broadcaster) writer(sub *subscription) {
	defer b.wg.Done()
	failures := 0
	for {
		select {
		case <-sub.stop:
			return
		case ev := <-sub.queue:
			if err := b.send(sub.observer, ev); err != nil {
				failures++
				b.log.Warn("Observer send failed", "observer", sub.observer.ID(), "seq", ev.Seq, "error", err, "failures", failures)
				if failures >= b.opts.FailureLimit {
					b.mu.Lock()
					b.detachLocked(sub.observer.ID(), sub)
					b.mu.Unlock()
					return
				}
				continue
			}
			failures = 0
		}
	}
}

func (b *Broadcaster) send(obs Observer, ev Event) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.SendTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Observer panicked", "observer", obs.ID(), "panic", r)
			err = errObserverPanic
		}
	}()
	return obs.Send(ctx, ev)
}
