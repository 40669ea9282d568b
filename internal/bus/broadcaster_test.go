// ABOUTME: Tests for the real-time event broadcaster
// ABOUTME: Covers subscribe, wildcard keys, slow consumers, cancellation, concurrency

package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/zap-gateway/internal/driver"
)

func makeEvent(sessionID string, kind driver.EventKind) *Event {
	return NewEvent(sessionID, kind, nil)
}

func TestBroadcaster_SingleSubscriberReceivesEvent(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(testContext(t), "tenant-1")

	event := makeEvent("tenant-1", driver.KindReady)
	b.Publish(event)

	select {
	case received := <-ch:
		assert.Equal(t, event.ID, received.ID)
		assert.Equal(t, driver.KindReady, received.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroadcaster_WildcardReceivesAllSessions(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(testContext(t), KeyAll)

	b.Publish(makeEvent("tenant-1", driver.KindReady))
	b.Publish(makeEvent("tenant-2", driver.KindDisconnected))

	seen := map[string]bool{}
	for _i := 0; _i < 2; _i++ {
		select {
		case ev := <-ch:
			seen[ev.SessionID] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	assert.True(t, seen["tenant-1"])
	assert.True(t, seen["tenant-2"])
}

func TestBroadcaster_SessionKeysAreIsolated(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(testContext(t), "tenant-1")
	ch2, _ := b.Subscribe(testContext(t), "tenant-2")

	b.Publish(makeEvent("tenant-1", driver.KindReady))

	select {
	case received := <-ch1:
		assert.Equal(t, "tenant-1", received.SessionID)
	case <-time.After(time.Second):
		t.Fatal("subscriber for tenant-1 timed out")
	}

	select {
	case <-ch2:
		t.Fatal("subscriber for tenant-2 should not receive tenant-1 events")
	case <-time.After(100 * time.Millisecond):
		// Expected: no event
	}
}

func TestBroadcaster_SlowConsumerDoesNotBlockPublisher(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	// Subscribe but never read from ch1 (slow consumer)
	_, _ = b.Subscribe(testContext(t), "tenant-1")
	ch2, _ := b.Subscribe(testContext(t), "tenant-1")

	// Publish more events than the buffer size to overflow ch1
	for _i := 0; _i < 100; _i++ {
		b.Publish(makeEvent("tenant-1", driver.KindMessageReceived))
	}

	// ch2 should still receive events (publisher wasn't blocked)
	receivedCount := 0
	for {
		select {
		case <-ch2:
			receivedCount++
		case <-time.After(200 * time.Millisecond):
			goto done
		}
	}
done:
	assert.Greater(t, receivedCount, 0, "fast consumer should receive at least some events")
}

func TestBroadcaster_ContextCancellationCleansUp(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, subID := b.Subscribe(ctx, "tenant-1")

	b.mu.RLock()
	_, exists := b.subscribers["tenant-1"][subID]
	b.mu.RUnlock()
	assert.True(t, exists, "subscription should exist before cancel")

	cancel()

	// Give cleanup goroutine time to run
	time.Sleep(50 * time.Millisecond)

	b.mu.RLock()
	subs, keyExists := b.subscribers["tenant-1"]
	if keyExists {
		_, subExists := subs[subID]
		assert.False(t, subExists, "subscription should be removed after context cancel")
	}
	b.mu.RUnlock()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after context cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}

func TestBroadcaster_ManualUnsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(testContext(t), "tenant-1")

	b.Unsubscribe("tenant-1", subID)

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after unsubscribe")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}

	// Publishing afterwards should not panic
	b.Publish(makeEvent("tenant-1", driver.KindReady))
}

func TestBroadcaster_CloseClosesAllSubscriptions(t *testing.T) {
	b := NewBroadcaster(nil)

	ch1, _ := b.Subscribe(testContext(t), "tenant-1")
	ch2, _ := b.Subscribe(testContext(t), KeyAll)

	b.Close()

	for i, ch := range []<-chan *Event{ch1, ch2} {
		select {
		case _, ok := <-ch:
			assert.False(t, ok, "channel %d should be closed after Close()", i)
		case <-time.After(time.Second):
			t.Fatalf("channel %d not closed after Close()", i)
		}
	}
}

func TestBroadcaster_ConcurrentPublishSubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	var wg sync.WaitGroup
	ctx := testContext(t)

	for _i := 0; _i < 10; _i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, _ := b.Subscribe(ctx, "tenant-concurrent")
			for _i := 0; _i < 5; _i++ {
				select {
				case <-ch:
				case <-time.After(500 * time.Millisecond):
					return
				}
			}
		}()
	}

	for _i := 0; _i < 10; _i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _i := 0; _i < 10; _i++ {
				b.Publish(makeEvent("tenant-concurrent", driver.KindMessageReceived))
			}
		}()
	}

	wg.Wait()
	// If we get here without deadlock or panic, the test passes
}

func TestBroadcaster_UnsubscribeDuringPublish(t *testing.T) {
	// Publishers hold no lock while sending, so a subscriber departing
	// mid-publish must not panic the publishing goroutine.
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := testContext(t)
	done := make(chan struct{})

	var publishers sync.WaitGroup
	for _i := 0; _i < 4; _i++ {
		publishers.Add(1)
		go func() {
			defer publishers.Done()
			for {
				select {
				case <-done:
					return
				default:
					b.Publish(makeEvent("tenant-churn", driver.KindMessageReceived))
				}
			}
		}()
	}

	var churners sync.WaitGroup
	for _i := 0; _i < 4; _i++ {
		churners.Add(1)
		go func() {
			defer churners.Done()
			for _i := 0; _i < 500; _i++ {
				_, subID := b.Subscribe(ctx, "tenant-churn")
				b.Unsubscribe("tenant-churn", subID)
			}
		}()
	}

	churners.Wait()
	close(done)
	publishers.Wait()
	// Surviving the churn without a send-on-closed-channel panic is the pass
}

func TestBroadcaster_SubscribeReturnsUniqueIDs(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	_, id1 := b.Subscribe(testContext(t), "tenant-1")
	_, id2 := b.Subscribe(testContext(t), "tenant-1")
	_, id3 := b.Subscribe(testContext(t), "tenant-2")

	require.NotEqual(t, id1, id2)
	require.NotEqual(t, id1, id3)
	require.NotEqual(t, id2, id3)
}

func TestBroadcaster_PublishWithNoSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	// Should not panic
	b.Publish(makeEvent("nobody-listening", driver.KindReady))
}

// testContext returns a context that is canceled when the test ends,
// mirroring (*testing.T).Context from newer Go releases.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
