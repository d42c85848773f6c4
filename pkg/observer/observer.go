package observer

import (
	"sync"
	"time"
)

type EventType string

const (
	EventAgentStart EventType = "agent_start"
	EventAgentEnd   EventType = "agent_end"
	EventAgentError EventType = "agent_error"
	EventToolStart  EventType = "tool_start"
	EventToolEnd    EventType = "tool_end"
)

// AgentEvent is one observable step of a running workflow.
type AgentEvent struct {
	Seq       uint64                 `json:"seq"`
	RunID     string                 `json:"runId"`
	NodeID    string                 `json:"nodeId,omitempty"`
	Type      EventType              `json:"type"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ringBuffer is a fixed-capacity circular buffer that drops the oldest event
// when full.
type ringBuffer struct {
	buf   []AgentEvent
	start int
	size  int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]AgentEvent, capacity)}
}

func (r *ringBuffer) append(e AgentEvent) {
	if len(r.buf) == 0 {
		return
	}
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = e
		r.size++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ringBuffer) snapshot() []AgentEvent {
	out := make([]AgentEvent, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

// AgentObserver records and streams the events of one run. Many workflow
// nodes emit into it concurrently; the buffer keeps a bounded history and
// subscribers receive a live feed. A subscriber that falls behind loses
// events rather than blocking emitters.
type AgentObserver struct {
	runID string

	mu      sync.Mutex
	seq     uint64
	buf     *ringBuffer
	subs    map[int]chan AgentEvent
	nextSub int
	closed  bool
}

const subscriberBuffer = 64

// NewAgentObserver creates an observer for the given run with a bounded
// event history.
func NewAgentObserver(runID string, bufferSize int) *AgentObserver {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &AgentObserver{
		runID: runID,
		buf:   newRingBuffer(bufferSize),
		subs:  make(map[int]chan AgentEvent),
	}
}

// RunID returns the correlation id this observer belongs to.
func (o *AgentObserver) RunID() string {
	return o.runID
}

func (o *AgentObserver) emit(t EventType, nodeID, message string, data map[string]interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.seq++
	e := AgentEvent{
		Seq:       o.seq,
		RunID:     o.runID,
		NodeID:    nodeID,
		Type:      t,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
	o.buf.append(e)
	for _, ch := range o.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (o *AgentObserver) EmitAgentStart(nodeID string, data map[string]interface{}) {
	o.emit(EventAgentStart, nodeID, "", data)
}

func (o *AgentObserver) EmitAgentEnd(nodeID string, data map[string]interface{}) {
	o.emit(EventAgentEnd, nodeID, "", data)
}

func (o *AgentObserver) EmitAgentError(nodeID string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	o.emit(EventAgentError, nodeID, msg, nil)
}

func (o *AgentObserver) EmitToolStart(nodeID, tool string) {
	o.emit(EventToolStart, nodeID, tool, nil)
}

func (o *AgentObserver) EmitToolEnd(nodeID, tool string, data map[string]interface{}) {
	o.emit(EventToolEnd, nodeID, tool, data)
}

// Subscribe registers a live feed. The returned cancel function must be
// called when the consumer is done.
func (o *AgentObserver) Subscribe() (<-chan AgentEvent, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextSub
	o.nextSub++
	ch := make(chan AgentEvent, subscriberBuffer)
	if o.closed {
		close(ch)
		return ch, func() {}
	}
	o.subs[id] = ch
	cancel := func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if sub, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// EventsSince returns the buffered events with Seq greater than seq, oldest
// first. Pass 0 for the full history still held by the buffer.
func (o *AgentObserver) EventsSince(seq uint64) []AgentEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	all := o.buf.snapshot()
	out := make([]AgentEvent, 0, len(all))
	for _, e := range all {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Close stops delivery and closes all subscriber channels. Further emissions
// are dropped.
func (o *AgentObserver) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	for id, ch := range o.subs {
		delete(o.subs, id)
		close(ch)
	}
}
