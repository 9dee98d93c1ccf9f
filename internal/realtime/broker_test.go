package realtime

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func prEvent(t *testing.T, newBest string) Event {
	t.Helper()
	e, err := NewEvent(EventPR, PREvent{RunnerID: 7, RunnerName: "An Runner", OldBest: "1:15.50", NewBest: newBest})
	require.NoError(t, err)
	return e
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	b := NewBroker()
	_, first := b.Subscribe()
	_, second := b.Subscribe()

	b.Publish(prEvent(t, "1:10.00"))

	for _, ch := range []<-chan Event{first, second} {
		e := <-ch
		assert.Equal(t, EventPR, e.Name)
		var payload PREvent
		require.NoError(t, json.Unmarshal(e.Data, &payload))
		assert.Equal(t, "1:10.00", payload.NewBest)
		assert.Equal(t, "1:15.50", payload.OldBest)
	}
}

func TestEventsArriveInEmissionOrder(t *testing.T) {
	b := NewBroker()
	_, ch := b.Subscribe()

	b.Publish(prEvent(t, "1:10.00"))
	b.Publish(prEvent(t, "1:09.00"))

	var got []string
	for i := 0; i < 2; i++ {
		var payload PREvent
		require.NoError(t, json.Unmarshal((<-ch).Data, &payload))
		got = append(got, payload.NewBest)
	}
	assert.Equal(t, []string{"1:10.00", "1:09.00"}, got)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroker()
	id, ch := b.Subscribe()

	b.Unsubscribe(id)
	assert.NotPanics(t, func() { b.Unsubscribe(id) })
	assert.NotPanics(t, func() { b.Unsubscribe(12345) })

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers())

	assert.NotPanics(t, func() { b.Publish(prEvent(t, "1:00.00")) })
}

func TestFullSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroker()
	_, slow := b.Subscribe()
	_, fast := b.Subscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		b.Publish(prEvent(t, "1:00.00"))
		<-fast
	}
	assert.Len(t, slow, subscriberBuffer)
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	b := NewBroker()
	e := prEvent(t, "1:00.00")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id, _ := b.Subscribe()
			b.Unsubscribe(id)
		}()
		go func() {
			defer wg.Done()
			b.Publish(e)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.Subscribers())
}

func TestEventSurvivesMsgpack(t *testing.T) {
	e := prEvent(t, "1:10.00")
	buf, err := msgpack.Marshal(&e)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, msgpack.Unmarshal(buf, &decoded))
	assert.Equal(t, e.Name, decoded.Name)
	assert.JSONEq(t, string(e.Data), string(decoded.Data))
}
