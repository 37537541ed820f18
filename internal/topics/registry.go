package topics

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages a collection of topics.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]Topic
}

// NewRegistry creates a new, empty topic registry.
func NewRegistry() *Registry {
	return &Registry{topics: make(map[string]Topic)}
}

// Register validates and adds a topic.
func (r *Registry) Register(topic Topic) error {
	if err := topic.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.topics[topic.Name]; exists {
		return fmt.Errorf("topic already registered: %s", topic.Name)
	}
	r.topics[topic.Name] = topic
	return nil
}

// MustRegister registers a topic and panics if registration fails.
func (r *Registry) MustRegister(topic Topic) Topic {
	if err := r.Register(topic); err != nil {
		panic(fmt.Sprintf("failed to register topic: %v", err))
	}
	return topic
}

// Get returns a topic by name.
func (r *Registry) Get(name string) (Topic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.topics[name]
	return t, ok
}

// List returns all topics sorted by name.
func (r *Registry) List() []Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Topic, 0, len(r.topics))
	for _, t := range r.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListByModule returns the topics owned by one module.
func (r *Registry) ListByModule(module string) []Topic {
	var out []Topic
	for _, t := range r.List() {
		if t.Module == module {
			out = append(out, t)
		}
	}
	return out
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}
