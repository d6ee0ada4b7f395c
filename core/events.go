package core

import (
	"sync"

	"mrtcore/core/types"
)

// DefaultEventBacklog bounds the node's in-memory event log. The log is a
// ring: once full, appending a new event drops the oldest one, and a reader
// paging from a sequence that has already been evicted resumes at the oldest
// retained entry.
const DefaultEventBacklog = 4096

// StoredEvent is a committed event together with its position in the node's
// event log. Sequence numbers start at 1 and increase by one per event.
type StoredEvent struct {
	Sequence  uint64       `json:"sequence"`
	Timestamp int64        `json:"timestamp"`
	Event     *types.Event `json:"event"`
}

// EventSubscription is a live feed of committed events. Slow consumers do not
// block the node; entries beyond the subscription's buffer are dropped and
// can be recovered by paging EventsSince with the last seen sequence.
type EventSubscription struct {
	id  uint64
	ch  chan *StoredEvent
	log *eventLog
}

// Events returns the subscription's delivery channel.
func (s *EventSubscription) Events() <-chan *StoredEvent { return s.ch }

// Close detaches the subscription from the node and closes the channel.
func (s *EventSubscription) Close() {
	if s == nil || s.log == nil {
		return
	}
	s.log.unsubscribe(s.id)
	s.log = nil
}

type eventLog struct {
	mu      sync.Mutex
	ring    []*StoredEvent
	start   int
	count   int
	nextSeq uint64
	subs    map[uint64]chan *StoredEvent
	nextSub uint64
}

func newEventLog(capacity int) *eventLog {
	if capacity <= 0 {
		capacity = DefaultEventBacklog
	}
	return &eventLog{
		ring:    make([]*StoredEvent, capacity),
		nextSeq: 1,
		subs:    make(map[uint64]chan *StoredEvent),
	}
}

func (l *eventLog) append(timestamp int64, batch []*types.Event) {
	if len(batch) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, evt := range batch {
		if evt == nil {
			continue
		}
		stored := &StoredEvent{Sequence: l.nextSeq, Timestamp: timestamp, Event: evt}
		l.nextSeq++
		if l.count == len(l.ring) {
			l.ring[l.start] = stored
			l.start = (l.start + 1) % len(l.ring)
		} else {
			l.ring[(l.start+l.count)%len(l.ring)] = stored
			l.count++
		}
		for _, ch := range l.subs {
			select {
			case ch <- stored:
			default:
			}
		}
	}
}

// since returns up to limit retained events with a sequence strictly greater
// than after, oldest first.
func (l *eventLog) since(after uint64, limit int) []*StoredEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > l.count {
		limit = l.count
	}
	out := make([]*StoredEvent, 0, limit)
	for i := 0; i < l.count && len(out) < limit; i++ {
		entry := l.ring[(l.start+i)%len(l.ring)]
		if entry == nil || entry.Sequence <= after {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func (l *eventLog) latestSequence() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextSeq - 1
}

func (l *eventLog) subscribe(buffer int) *EventSubscription {
	if buffer <= 0 {
		buffer = 64
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextSub
	l.nextSub++
	ch := make(chan *StoredEvent, buffer)
	l.subs[id] = ch
	return &EventSubscription{id: id, ch: ch, log: l}
}

func (l *eventLog) unsubscribe(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.subs[id]
	if !ok {
		return
	}
	delete(l.subs, id)
	close(ch)
}
