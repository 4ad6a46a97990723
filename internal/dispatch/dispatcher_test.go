package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

func candleEvent(instrumentID string, close float64) Event {
	return Event{
		Kind: EventCandle,
		Candle: &models.CandleUpdate{
			Candle: models.Candle{
				InstrumentID: instrumentID,
				Close:        close,
				IsFinal:      true,
			},
		},
	}
}

func TestDispatcher_DeliversToSubscriber(t *testing.T) {
	d := NewDispatcher(DefaultConfig())
	defer d.Close()

	sub := d.Subscribe("consumer")
	d.Publish(candleEvent("AAPL", 100))

	select {
	case ev := <-sub.C():
		assert.Equal(t, EventCandle, ev.Kind)
		assert.Equal(t, "AAPL", ev.Candle.Candle.InstrumentID)
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
	}
}

func TestDispatcher_InstrumentFilter(t *testing.T) {
	d := NewDispatcher(DefaultConfig())
	defer d.Close()

	sub := d.Subscribe("aapl-only", "AAPL")

	d.Publish(candleEvent("MSFT", 200))
	d.Publish(candleEvent("AAPL", 100))
	// Engine-wide events pass every filter.
	d.PublishSession(models.SessionOpen)

	ev := <-sub.C()
	require.Equal(t, EventCandle, ev.Kind)
	assert.Equal(t, "AAPL", ev.Candle.Candle.InstrumentID)

	ev = <-sub.C()
	assert.Equal(t, EventSession, ev.Kind)
	assert.Equal(t, models.SessionOpen, ev.Session)
}

// A slow consumer loses its oldest queued events, never the newest.
func TestDispatcher_DropsOldestWhenFull(t *testing.T) {
	d := NewDispatcher(Config{QueueSize: 2})
	defer d.Close()

	sub := d.Subscribe("slow")

	for i := 0; i < 5; i++ {
		d.Publish(candleEvent("AAPL", float64(100+i)))
	}

	// Queue holds the two newest closes, in order.
	ev := <-sub.C()
	assert.Equal(t, 103.0, ev.Candle.Candle.Close)
	ev = <-sub.C()
	assert.Equal(t, 104.0, ev.Candle.Candle.Close)

	assert.Equal(t, uint64(3), sub.Drops())
}

func TestDispatcher_PublishNeverBlocks(t *testing.T) {
	d := NewDispatcher(Config{QueueSize: 1})
	defer d.Close()

	_ = d.Subscribe("stalled")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			d.Publish(candleEvent("AAPL", float64(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a stalled subscriber")
	}
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := NewDispatcher(DefaultConfig())
	defer d.Close()

	sub := d.Subscribe("consumer")
	require.Equal(t, 1, d.SubscriberCount())

	d.Unsubscribe("consumer")
	assert.Equal(t, 0, d.SubscriberCount())

	// Channel closes so consumers can unwind their range loops.
	_, ok := <-sub.C()
	assert.False(t, ok)

	// Publishing after unsubscribe is a no-op.
	d.Publish(candleEvent("AAPL", 100))
}

func TestDispatcher_ResubscribeReplacesOld(t *testing.T) {
	d := NewDispatcher(DefaultConfig())
	defer d.Close()

	old := d.Subscribe("consumer")
	fresh := d.Subscribe("consumer")
	require.Equal(t, 1, d.SubscriberCount())

	// Old channel closed, new one live.
	_, ok := <-old.C()
	assert.False(t, ok)

	d.Publish(candleEvent("AAPL", 100))
	select {
	case ev := <-fresh.C():
		assert.Equal(t, 100.0, ev.Candle.Candle.Close)
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event on the new subscription")
	}
}
