package events

import (
	"sync"

	"skipper/internal/logging"
)

// sinkBuffer is the per-subscriber channel capacity. A slow consumer drops
// events once the buffer fills rather than blocking the publisher.
const sinkBuffer = 100

// MetricsHook receives bus activity notifications. Implementations must be
// safe for concurrent use and must not block.
type MetricsHook interface {
	EventPublished()
	EventDropped()
	SinkAttached()
	SinkDetached()
}

type nopMetrics struct{}

func (nopMetrics) EventPublished() {}
func (nopMetrics) EventDropped()   {}
func (nopMetrics) SinkAttached()   {}
func (nopMetrics) SinkDetached()   {}

// Handle identifies one attached sink. Detach is idempotent.
type Handle struct {
	channelID string
	ch        chan Event
	once      sync.Once
	bus       *Bus
}

// Detach removes the sink from its channel and closes its event channel.
// Safe to call multiple times and after the channel already emptied.
func (h *Handle) Detach() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.bus.detach(h)
	})
}

type channelEntry struct {
	mu    sync.Mutex
	sinks []*Handle
}

// Bus fans events out to the sinks attached to a channel. There is no
// buffering and no replay: an event published to a channel with no sinks is
// dropped, and a sink attached after a publish never sees that event.
//
// The outer map lock only guards channel lookup; fan-out serializes on the
// channel's own mutex so one busy channel cannot stall the others.
type Bus struct {
	mu       sync.RWMutex
	channels map[string]*channelEntry
	logger   logging.Logger
	metrics  MetricsHook
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		channels: make(map[string]*channelEntry),
		logger:   logging.NewComponentLogger("EventBus"),
		metrics:  nopMetrics{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BusOption customizes bus construction.
type BusOption func(*Bus)

// WithLogger overrides the bus logger.
func WithLogger(logger logging.Logger) BusOption {
	return func(b *Bus) { b.logger = logging.OrNop(logger) }
}

// WithMetrics installs a metrics hook.
func WithMetrics(hook MetricsHook) BusOption {
	return func(b *Bus) {
		if hook != nil {
			b.metrics = hook
		}
	}
}

// Attach registers a new sink on channelID and returns its event channel plus
// a detach handle. The channel entry is created on first attach. Any initial
// events are enqueued on the sink before it becomes visible to Publish, so
// they precede every later domain event.
//
// The append happens while the map lock is still held: releasing it between
// the entry lookup and the append would let a concurrent last-sink detach
// delete the entry from the map, leaving this sink appended to an orphaned
// entry that no Publish can ever reach.
func (b *Bus) Attach(channelID string, initial ...Event) (<-chan Event, *Handle) {
	handle := &Handle{
		channelID: channelID,
		ch:        make(chan Event, sinkBuffer),
		bus:       b,
	}

	b.mu.Lock()
	entry, ok := b.channels[channelID]
	if !ok {
		entry = &channelEntry{}
		b.channels[channelID] = entry
	}

	entry.mu.Lock()
	for _, event := range initial {
		event.ChannelID = channelID
		handle.ch <- event
	}
	entry.sinks = append(entry.sinks, handle)
	count := len(entry.sinks)
	entry.mu.Unlock()
	b.mu.Unlock()

	b.metrics.SinkAttached()
	b.logger.Debug("sink attached to channel %s (total: %d)", channelID, count)
	return handle.ch, handle
}

func (b *Bus) detach(h *Handle) {
	b.mu.Lock()
	entry, ok := b.channels[h.channelID]
	b.mu.Unlock()
	if !ok {
		close(h.ch)
		return
	}

	entry.mu.Lock()
	for i, sink := range entry.sinks {
		if sink == h {
			entry.sinks = append(entry.sinks[:i], entry.sinks[i+1:]...)
			break
		}
	}
	remaining := len(entry.sinks)
	entry.mu.Unlock()

	close(h.ch)
	b.metrics.SinkDetached()

	if remaining == 0 {
		b.mu.Lock()
		// Re-check under the map lock: a concurrent Attach may have revived
		// the channel between the two critical sections.
		entry.mu.Lock()
		if len(entry.sinks) == 0 {
			delete(b.channels, h.channelID)
		}
		entry.mu.Unlock()
		b.mu.Unlock()
	}

	b.logger.Debug("sink detached from channel %s (remaining: %d)", h.channelID, remaining)
}

// Publish delivers event to every sink currently attached to channelID, in
// attach order. With no sinks attached the event is silently dropped.
func (b *Bus) Publish(channelID string, event Event) {
	event.ChannelID = channelID

	b.mu.RLock()
	entry, ok := b.channels[channelID]
	b.mu.RUnlock()
	if !ok {
		b.logger.Debug("no sinks on channel %s, dropping %s", channelID, event.Type)
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	for i, sink := range entry.sinks {
		select {
		case sink.ch <- event:
			b.metrics.EventPublished()
		default:
			if b.deliverTerminal(sink, event) {
				continue
			}
			b.logger.Warn("sink buffer full on channel %s, dropping %s (sink %d/%d)",
				channelID, event.Type, i+1, len(entry.sinks))
			b.metrics.EventDropped()
		}
	}
}

// deliverTerminal makes room for a terminal event on a saturated sink by
// evicting the oldest buffered event. Non-terminal events are simply dropped.
func (b *Bus) deliverTerminal(sink *Handle, event Event) bool {
	if !event.IsTerminal() {
		return false
	}

	// The consumer may have drained the buffer since the first attempt.
	select {
	case sink.ch <- event:
		b.metrics.EventPublished()
		return true
	default:
	}

	select {
	case <-sink.ch:
		b.metrics.EventDropped()
	default:
	}

	select {
	case sink.ch <- event:
		b.logger.Warn("sink saturated on channel %s; evicted oldest event to deliver %s",
			sink.channelID, event.Type)
		b.metrics.EventPublished()
		return true
	default:
		return false
	}
}

// SinkCount returns the number of sinks attached to a channel.
func (b *Bus) SinkCount(channelID string) int {
	b.mu.RLock()
	entry, ok := b.channels[channelID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return len(entry.sinks)
}
