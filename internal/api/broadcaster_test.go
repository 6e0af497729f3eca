package api

import (
	"testing"
	"time"

	"github.com/menta2k/camera-capture/pkg/capture"
	"github.com/menta2k/camera-capture/pkg/output"
	"github.com/menta2k/camera-capture/pkg/types"
)

func TestBroadcaster_SubscribeAndReceive(t *testing.T) {
	b := NewEventBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Publish(capture.Event{Type: capture.EventCaptureCompleted, Sequence: 7})

	select {
	case evt := <-ch:
		if evt.Sequence != 7 {
			t.Errorf("sequence = %d, want 7", evt.Sequence)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	b := NewEventBroadcaster()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Publish(capture.Event{Type: capture.EventCaptureFailed, Error: "boom"})

	for i, ch := range []<-chan capture.Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Error != "boom" {
				t.Errorf("subscriber %d: error = %q, want \"boom\"", i, evt.Error)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timeout", i)
		}
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewEventBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}
	if b.Subscribers() != 0 {
		t.Errorf("subscribers = %d, want 0", b.Subscribers())
	}

	// publishing with no subscribers must not panic
	b.Publish(capture.Event{})
}

func TestBroadcaster_SlowClientDoesNotBlock(t *testing.T) {
	b := NewEventBroadcaster()
	_, unsub := b.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish(capture.Event{Sequence: uint64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestBroadcaster_StripsImageData(t *testing.T) {
	b := NewEventBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	desc := &output.Descriptor{Target: types.TargetMemory, Data: "aGVsbG8=", Width: 4, Height: 3}
	b.Publish(capture.Event{Type: capture.EventCaptureCompleted, Descriptor: desc})

	evt := <-ch
	if evt.Descriptor == nil || evt.Descriptor.Data != "" {
		t.Errorf("expected stripped descriptor, got %+v", evt.Descriptor)
	}
	if evt.Descriptor.Width != 4 {
		t.Errorf("width = %d, want 4", evt.Descriptor.Width)
	}
	if desc.Data != "aGVsbG8=" {
		t.Error("publisher's descriptor was modified")
	}
}
