package events

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus()

	got := make(chan any, 1)
	unsub := bus.Subscribe(TopicFileStatus, func(topic string, data any) {
		assert.Equal(t, TopicFileStatus, topic)
		got <- data
	})
	defer unsub()

	ev := &FileStatusChangedEvent{FileID: "abc", NewStatus: "READY"}
	bus.Publish(TopicFileStatus, ev)

	select {
	case data := <-got:
		assert.Same(t, ev, data)
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

// The channel returned by Publish must close only after every
// subscriber handler has run.
func TestPublishDoneClosesAfterDelivery(t *testing.T) {
	bus := NewBus()

	var handled atomic.Bool
	unsub := bus.Subscribe(TopicScannerStatus, func(string, any) {
		time.Sleep(20 * time.Millisecond)
		handled.Store(true)
	})
	defer unsub()

	done := bus.Publish(TopicScannerStatus, &ScannerStatusChangedEvent{Paused: true})
	select {
	case <-done:
		require.True(t, handled.Load(), "done closed before the handler finished")
	case <-time.After(time.Second):
		t.Fatal("done channel never closed")
	}
}

func TestPublishDoneClosesWithoutSubscribers(t *testing.T) {
	bus := NewBus()

	select {
	case <-bus.Publish(TopicMountStatus, &MountStatusChangedEvent{Phase: MountAttempt}):
	case <-time.After(time.Second):
		t.Fatal("done channel never closed")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()

	var count atomic.Int32
	unsub := bus.Subscribe(TopicFileProgress, func(string, any) {
		count.Add(1)
	})

	<-bus.Publish(TopicFileProgress, &FileCopyProgressEvent{BytesCopied: 1})
	unsub()
	<-bus.Publish(TopicFileProgress, &FileCopyProgressEvent{BytesCopied: 2})

	assert.Equal(t, int32(1), count.Load())
}
