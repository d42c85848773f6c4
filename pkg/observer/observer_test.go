package observer_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eenlars/evoflow/pkg/observer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentObserver_RingBufferDropsOldest(t *testing.T) {
	o := observer.NewAgentObserver("run-1", 3)
	for i := 0; i < 5; i++ {
		o.EmitAgentStart(fmt.Sprintf("node-%d", i), nil)
	}

	events := o.EventsSince(0)
	require.Len(t, events, 3)
	assert.Equal(t, "node-2", events[0].NodeID)
	assert.Equal(t, "node-3", events[1].NodeID)
	assert.Equal(t, "node-4", events[2].NodeID)
	// Sequence numbers keep counting even after eviction.
	assert.Equal(t, uint64(3), events[0].Seq)
	assert.Equal(t, uint64(5), events[2].Seq)
}

func TestAgentObserver_EventsSince(t *testing.T) {
	o := observer.NewAgentObserver("run-1", 16)
	o.EmitAgentStart("a", nil)
	o.EmitToolStart("a", "search")
	o.EmitToolEnd("a", "search", nil)
	o.EmitAgentEnd("a", nil)

	events := o.EventsSince(2)
	require.Len(t, events, 2)
	assert.Equal(t, observer.EventToolEnd, events[0].Type)
	assert.Equal(t, observer.EventAgentEnd, events[1].Type)
}

func TestAgentObserver_SubscriberReceivesInOrder(t *testing.T) {
	o := observer.NewAgentObserver("run-1", 16)
	ch, cancel := o.Subscribe()
	defer cancel()

	o.EmitAgentStart("a", nil)
	o.EmitAgentError("a", fmt.Errorf("tool exploded"))
	o.EmitAgentEnd("a", nil)

	var got []observer.AgentEvent
	for i := 0; i < 3; i++ {
		select {
		case e := <-ch:
			got = append(got, e)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	assert.Equal(t, observer.EventAgentStart, got[0].Type)
	assert.Equal(t, observer.EventAgentError, got[1].Type)
	assert.Equal(t, "tool exploded", got[1].Message)
	assert.Equal(t, observer.EventAgentEnd, got[2].Type)
}

func TestAgentObserver_ConcurrentEmission(t *testing.T) {
	o := observer.NewAgentObserver("run-1", 1024)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				o.EmitToolStart(fmt.Sprintf("node-%d", n), "tool")
			}
		}(i)
	}
	wg.Wait()

	events := o.EventsSince(0)
	require.Len(t, events, 400)
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}
}

func TestObserverRegistry_CorrelationIsolation(t *testing.T) {
	reg := observer.NewObserverRegistry(64)
	wf1 := reg.Create("wf1")
	wf2 := reg.Create("wf2")

	ch1, cancel1 := wf1.Subscribe()
	defer cancel1()
	ch2, cancel2 := wf2.Subscribe()
	defer cancel2()

	wf1.EmitAgentStart("only-wf1", nil)
	wf2.EmitAgentStart("only-wf2", nil)

	e1 := <-ch1
	assert.Equal(t, "wf1", e1.RunID)
	assert.Equal(t, "only-wf1", e1.NodeID)

	e2 := <-ch2
	assert.Equal(t, "wf2", e2.RunID)
	assert.Equal(t, "only-wf2", e2.NodeID)

	select {
	case e := <-ch1:
		t.Fatalf("wf1 subscriber received stray event %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestObserverRegistry_CreateIsIdempotent(t *testing.T) {
	reg := observer.NewObserverRegistry(64)
	a := reg.Create("run-1")
	b := reg.Create("run-1")
	assert.Same(t, a, b)

	got, ok := reg.Get("run-1")
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestObserverRegistry_RemoveClosesSubscribers(t *testing.T) {
	reg := observer.NewObserverRegistry(64)
	o := reg.Create("run-1")
	ch, _ := o.Subscribe()

	reg.Remove("run-1")

	_, open := <-ch
	assert.False(t, open)
	_, ok := reg.Get("run-1")
	assert.False(t, ok)

	// Emissions after close are dropped, not panics.
	o.EmitAgentStart("late", nil)
	assert.Empty(t, o.EventsSince(0))
}
