package realtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Event names carried by the streams.
const (
	EventPR   = "pr"
	EventPing = "ping"
)

// Event is one message fanned out to subscribers. Data is the JSON payload.
type Event struct {
	Name string          `json:"event" msgpack:"event"`
	Data json.RawMessage `json:"data" msgpack:"data"`
}

// PREvent is the payload of a personal-record event.
type PREvent struct {
	RunnerID   int64  `json:"runnerId"`
	RunnerName string `json:"runnerName"`
	OldBest    string `json:"oldBest"`
	NewBest    string `json:"newBest"`
}

// NewEvent encodes payload as the data of a named event.
func NewEvent(name string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("could not encode %s event: %w", name, err)
	}
	return Event{Name: name, Data: data}, nil
}

// Publisher is implemented by anything that can emit events to subscribers.
type Publisher interface {
	Publish(Event)
}

const subscriberBuffer = 16

// Broker fans events out to every currently attached subscriber. Its state
// lives in this process only; use RedisRelay to span several instances.
type Broker struct {
	mu      sync.RWMutex
	nextID  int64
	clients map[int64]chan Event
}

// NewBroker creates a new Broker instance.
func NewBroker() *Broker {
	return &Broker{
		clients: make(map[int64]chan Event),
	}
}

// Subscribe attaches a new subscriber. The returned channel is closed by Unsubscribe.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.clients[b.nextID] = ch
	log.Debug().Int64("subscriber", b.nextID).Int("subscribers", len(b.clients)).Msg("event subscriber attached")
	return b.nextID, ch
}

// Unsubscribe detaches a subscriber. Unknown or already detached ids are ignored.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		delete(b.clients, id)
		close(ch)
		log.Debug().Int64("subscriber", id).Int("subscribers", len(b.clients)).Msg("event subscriber detached")
	}
}

// Subscribers returns the number of attached subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish delivers e to every subscriber without blocking. A subscriber whose
// buffer is full misses the event.
func (b *Broker) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	// Sending while holding the read lock keeps Unsubscribe from closing a
	// channel mid-send; the sends never block.
	for id, ch := range b.clients {
		select {
		case ch <- e:
		default:
			log.Warn().Int64("subscriber", id).Str("event", e.Name).Msg("subscriber buffer full, dropping event")
		}
	}
}
