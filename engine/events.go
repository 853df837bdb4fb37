// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Event names published on the bus over a workflow's lifecycle.
const (
	EventWorkflowStarted  = "workflow_started"
	EventStepStarted      = "step_started"
	EventStepCompleted    = "step_completed"
	EventStepFailed       = "step_failed"
	EventWorkflowCompleted = "workflow_completed"
)

// Listener receives one event's payload. Listener bodies must be
// non-blocking: the bus calls them synchronously and in registration order.
type Listener func(payload map[string]interface{})

type listenerEntry struct {
	id   uint64
	fn   Listener
	once bool
}

var eventsCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "flowkernel_events_total",
		Help: "Count of workflow lifecycle events published, by event name.",
	},
	[]string{"event"},
)

func init() {
	prometheus.MustRegister(eventsCounter)
}

// EventBus fans lifecycle events out to registered listeners and records a
// prometheus counter per event name. Metrics recording never gates or
// blocks delivery.
type EventBus struct {
	mu        sync.RWMutex
	listeners map[string][]listenerEntry
	nextID    uint64
}

// NewEventBus builds an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{listeners: make(map[string][]listenerEntry)}
}

// On registers a persistent listener for event, returning a handle usable
// with Off.
func (b *EventBus) On(event string, fn Listener) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.listeners[event] = append(b.listeners[event], listenerEntry{id: id, fn: fn})
	return id
}

// Once registers a listener that is removed after its first invocation.
func (b *EventBus) Once(event string, fn Listener) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.listeners[event] = append(b.listeners[event], listenerEntry{id: id, fn: fn, once: true})
	return id
}

// Off removes a listener previously registered with On or Once.
func (b *EventBus) Off(event string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.listeners[event]
	for i, e := range entries {
		if e.id == id {
			b.listeners[event] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Count reports the number of listeners currently registered for event.
func (b *EventBus) Count(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[event])
}

// Reset removes every listener for every event, isolating tests that share
// a bus instance.
func (b *EventBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make(map[string][]listenerEntry)
}

// Publish fans payload out to event's listeners in registration order,
// pruning any "once" listeners afterward, then increments the
// corresponding prometheus counter.
func (b *EventBus) Publish(event string, payload map[string]interface{}) {
	b.mu.RLock()
	entries := append([]listenerEntry(nil), b.listeners[event]...)
	b.mu.RUnlock()

	var fired []uint64
	for _, e := range entries {
		e.fn(payload)
		if e.once {
			fired = append(fired, e.id)
		}
	}
	for _, id := range fired {
		b.Off(event, id)
	}

	eventsCounter.WithLabelValues(event).Inc()
}
