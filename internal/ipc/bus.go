// Package ipc carries daemon-to-view traffic. Outbound events go through the
// Bus to every connected event stream; window lifecycle acks come back in
// through RemoteHost.
package ipc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Outbound event types.
const (
	EventPlayAudio            = "playAudio"
	EventStopAudio            = "stopAudio"
	EventMuteAudio            = "muteAudio"
	EventWindowStateChanged   = "windowStateChanged"
	EventPrayerTimesRequested = "prayerTimesRequested"
	EventWindowCreate         = "window.create"
	EventWindowClose          = "window.close"
	EventWindowFocus          = "window.focus"
	EventWindowBounds         = "window.bounds"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Event is one outbound message.
type Event struct {
	Seq     uint64    `json:"seq"`
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

// Bus fans events out to subscribers. A subscriber that falls behind loses
// events rather than stalling publishers.
type Bus struct {
	seq atomic.Uint64

	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  uint64
	onEmpty []func()
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan Event)}
}

// Subscribe registers a subscriber. The returned cancel function removes it
// and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	count := len(b.subs)
	b.mu.Unlock()

	log.Debug().Uint64("subscriber", id).Int("subscribers", count).Msg("event subscriber connected")

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			remaining := len(b.subs)
			hooks := append([]func(){}, b.onEmpty...)
			b.mu.Unlock()

			log.Debug().Uint64("subscriber", id).Int("subscribers", remaining).Msg("event subscriber disconnected")
			if remaining == 0 {
				for _, fn := range hooks {
					fn()
				}
			}
		})
	}
	return ch, cancel
}

// OnEmpty registers fn to run whenever the last subscriber leaves.
func (b *Bus) OnEmpty(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onEmpty = append(b.onEmpty, fn)
}

// Publish stamps and delivers an event. It never blocks.
func (b *Bus) Publish(eventType string, payload any) Event {
	ev := Event{
		Seq:     b.seq.Add(1),
		Type:    eventType,
		At:      time.Now(),
		Payload: payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Warn().Uint64("subscriber", id).Str("event", eventType).Msg("subscriber queue full; event dropped")
		}
	}
	return ev
}

// Subscribers returns the number of connected subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Alive reports whether the main window is connected. The main window holds
// the event stream open for as long as it exists.
func (b *Bus) Alive() bool {
	return b.Subscribers() > 0
}
