package observer

import "sync"

// ObserverRegistry looks up the live observer of a running workflow by its
// correlation id. One instance is constructed at process start and handed to
// both the evolution engine and the API layer; there is no package-level
// registry.
type ObserverRegistry struct {
	mu         sync.RWMutex
	observers  map[string]*AgentObserver
	bufferSize int
}

// NewObserverRegistry creates an empty registry whose observers keep
// bufferSize events of history each.
func NewObserverRegistry(bufferSize int) *ObserverRegistry {
	return &ObserverRegistry{
		observers:  make(map[string]*AgentObserver),
		bufferSize: bufferSize,
	}
}

// Create returns the observer for runID, creating it on first use.
func (r *ObserverRegistry) Create(runID string) *AgentObserver {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.observers[runID]; ok {
		return o
	}
	o := NewAgentObserver(runID, r.bufferSize)
	r.observers[runID] = o
	return o
}

// Get returns the observer for runID if one is registered.
func (r *ObserverRegistry) Get(runID string) (*AgentObserver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.observers[runID]
	return o, ok
}

// Remove closes and forgets the observer for runID.
func (r *ObserverRegistry) Remove(runID string) {
	r.mu.Lock()
	o := r.observers[runID]
	delete(r.observers, runID)
	r.mu.Unlock()
	if o != nil {
		o.Close()
	}
}
