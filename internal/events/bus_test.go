package events

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestBus_PublishBeforeAttachIsDropped(t *testing.T) {
	bus := NewBus()

	bus.Publish("sess-1", New(TypeSessionCreated, "sess-1"))

	ch, handle := bus.Attach("sess-1")
	defer handle.Detach()

	assert.Empty(t, drain(ch), "late subscriber must never see earlier events")
}

func TestBus_FanOutPreservesPublishOrder(t *testing.T) {
	bus := NewBus()

	ch1, h1 := bus.Attach("sess-1")
	ch2, h2 := bus.Attach("sess-1")
	defer h1.Detach()
	defer h2.Detach()

	for i := 0; i < 10; i++ {
		bus.Publish("sess-1", New(TypeNavigation, "sess-1").WithMessage(fmt.Sprintf("step-%d", i)))
	}

	for _, ch := range []<-chan Event{ch1, ch2} {
		got := drain(ch)
		require.Len(t, got, 10)
		for i, ev := range got {
			assert.Equal(t, fmt.Sprintf("step-%d", i), ev.Message)
		}
	}
}

func TestBus_NoCrossChannelDelivery(t *testing.T) {
	bus := NewBus()

	ch1, h1 := bus.Attach("sess-1")
	ch2, h2 := bus.Attach("sess-2")
	defer h1.Detach()
	defer h2.Detach()

	bus.Publish("sess-1", New(TypeActionStart, "sess-1"))

	assert.Len(t, drain(ch1), 1)
	assert.Empty(t, drain(ch2))
}

func TestBus_DetachTwiceIsNoOp(t *testing.T) {
	bus := NewBus()

	_, handle := bus.Attach("sess-1")
	handle.Detach()
	handle.Detach()

	assert.Equal(t, 0, bus.SinkCount("sess-1"))

	// Channel must still be usable after it emptied.
	ch, h2 := bus.Attach("sess-1")
	defer h2.Detach()
	bus.Publish("sess-1", New(TypeComplete, "sess-1"))
	assert.Len(t, drain(ch), 1)
}

func TestBus_DetachedSinkReceivesNothingFurther(t *testing.T) {
	bus := NewBus()

	ch1, h1 := bus.Attach("sess-1")
	ch2, h2 := bus.Attach("sess-1")
	defer h2.Detach()

	h1.Detach()
	bus.Publish("sess-1", New(TypeActionComplete, "sess-1"))

	assert.Empty(t, drain(ch1))
	assert.Len(t, drain(ch2), 1)
}

func TestBus_FullBufferDropsNonTerminal(t *testing.T) {
	bus := NewBus()

	ch, handle := bus.Attach("sess-1")
	defer handle.Detach()

	for i := 0; i < sinkBuffer+5; i++ {
		bus.Publish("sess-1", New(TypeThinking, "sess-1"))
	}

	assert.Len(t, drain(ch), sinkBuffer)
}

func TestBus_TerminalEventEvictsOldest(t *testing.T) {
	bus := NewBus()

	ch, handle := bus.Attach("sess-1")
	defer handle.Detach()

	for i := 0; i < sinkBuffer; i++ {
		bus.Publish("sess-1", New(TypeThinking, "sess-1"))
	}
	bus.Publish("sess-1", New(TypeExecutionComplete, "sess-1"))

	got := drain(ch)
	require.Len(t, got, sinkBuffer)
	assert.Equal(t, TypeExecutionComplete, got[len(got)-1].Type)
}

func TestBus_ConcurrentAttachPublishDetach(t *testing.T) {
	bus := NewBus()

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			channel := fmt.Sprintf("sess-%d", n%3)
			for i := 0; i < 50; i++ {
				ch, handle := bus.Attach(channel)
				bus.Publish(channel, New(TypeActionStart, channel))
				drain(ch)
				handle.Detach()
			}
		}(worker)
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		assert.Equal(t, 0, bus.SinkCount(fmt.Sprintf("sess-%d", i)))
	}
}

func TestBus_AttachDuringLastSinkDetachIsNeverOrphaned(t *testing.T) {
	bus := NewBus()

	// The empty-channel cleanup in detach deletes the map entry; an attach
	// racing it must still end up on a channel that Publish can reach.
	for i := 0; i < 500; i++ {
		_, old := bus.Attach("chan-race")

		done := make(chan struct{})
		go func() {
			old.Detach()
			close(done)
		}()

		ch, fresh := bus.Attach("chan-race")
		<-done

		bus.Publish("chan-race", New(TypeNavigation, "chan-race"))

		select {
		case got := <-ch:
			assert.Equal(t, TypeNavigation, got.Type)
		default:
			t.Fatalf("iteration %d: sink attached during cleanup missed a publish", i)
		}

		fresh.Detach()
	}
}

func TestBus_AttachInitialEventPrecedesConcurrentPublishes(t *testing.T) {
	bus := NewBus()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				bus.Publish("chan-1", New(TypeNavigation, "chan-1"))
			}
		}
	}()

	for i := 0; i < 200; i++ {
		ch, handle := bus.Attach("chan-1", New(TypeConnected, "chan-1"))
		first := <-ch
		assert.Equal(t, TypeConnected, first.Type, "iteration %d", i)
		handle.Detach()
	}

	close(stop)
	wg.Wait()
}

func TestBus_NoDuplicateDelivery(t *testing.T) {
	bus := NewBus()

	ch, handle := bus.Attach("sess-1")
	defer handle.Detach()

	bus.Publish("sess-1", New(TypeComplete, "sess-1"))
	got := drain(ch)
	require.Len(t, got, 1)
}
