package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a notable occurrence during an assembly run or in the
// lifecycle of a constructed component.
type Event struct {
	ID          string                 `json:"id"`
	Timestamp   time.Time              `json:"timestamp"`
	Type        string                 `json:"type"`
	Source      string                 `json:"source"`
	AssemblyID  string                 `json:"assembly_id,omitempty"`
	ComponentID string                 `json:"component_id,omitempty"`
	Message     string                 `json:"message"`
	Level       string                 `json:"level"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeAssemblyStarted   = "assembly.started"
	EventTypeAssemblyCompleted = "assembly.completed"
	EventTypeAssemblyFailed    = "assembly.failed"
	EventTypeComponentStarted  = "component.started"
	EventTypeComponentStopped  = "component.stopped"
	EventTypeComponentFailed   = "component.failed"
	EventTypeConfigReloaded    = "config.reloaded"
	EventTypePolicyViolation   = "policy.violation"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher delivers events to subscribers, synchronously or through a
// buffered batch loop.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
		}
		select {
		case ep.buffer <- event:
			return nil
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishAssemblyStarted records the start of a run over the requested ids.
func (ep *EventPublisher) PublishAssemblyStarted(assemblyID string, requested []string) error {
	return ep.Publish(Event{
		Type:       EventTypeAssemblyStarted,
		Source:     "assembler",
		AssemblyID: assemblyID,
		Message:    "Assembly " + assemblyID + " started",
		Level:      EventLevelInfo,
		Data:       map[string]interface{}{"requested": requested},
	})
}

func (ep *EventPublisher) PublishAssemblyCompleted(assemblyID string, components int, duration time.Duration) error {
	return ep.Publish(Event{
		Type:       EventTypeAssemblyCompleted,
		Source:     "assembler",
		AssemblyID: assemblyID,
		Message:    fmt.Sprintf("Assembly %s completed with %d components", assemblyID, components),
		Level:      EventLevelInfo,
		Data:       map[string]interface{}{"components": components, "duration": duration.Seconds()},
	})
}

// PublishAssemblyFailed records a failed run; kind is the error Kind.
func (ep *EventPublisher) PublishAssemblyFailed(assemblyID, kind, reason string) error {
	return ep.Publish(Event{
		Type:       EventTypeAssemblyFailed,
		Source:     "assembler",
		AssemblyID: assemblyID,
		Message:    fmt.Sprintf("Assembly %s failed: %s", assemblyID, reason),
		Level:      EventLevelError,
		Data:       map[string]interface{}{"kind": kind, "reason": reason},
	})
}

func componentEvent(typ, level, componentID, createRef, message string) Event {
	return Event{
		Type:        typ,
		Source:      "system",
		ComponentID: componentID,
		Message:     message,
		Level:       level,
		Data:        map[string]interface{}{"create_ref": createRef},
	}
}

func (ep *EventPublisher) PublishComponentStarted(componentID, createRef string) error {
	return ep.Publish(componentEvent(EventTypeComponentStarted, EventLevelInfo, componentID, createRef,
		fmt.Sprintf("Component %s (%s) started", componentID, createRef)))
}

func (ep *EventPublisher) PublishComponentStopped(componentID, createRef string) error {
	return ep.Publish(componentEvent(EventTypeComponentStopped, EventLevelInfo, componentID, createRef,
		fmt.Sprintf("Component %s (%s) stopped", componentID, createRef)))
}

// PublishComponentFailed records a failed lifecycle operation (start or stop).
func (ep *EventPublisher) PublishComponentFailed(componentID, createRef, operation, reason string) error {
	event := componentEvent(EventTypeComponentFailed, EventLevelError, componentID, createRef,
		fmt.Sprintf("Component %s failed to %s: %s", componentID, operation, reason))
	event.Data["operation"] = operation
	event.Data["reason"] = reason
	return ep.Publish(event)
}

// PublishConfigReloaded records a reload of configuration or policy files.
// A failed reload is a warning: the previous state stays in effect.
func (ep *EventPublisher) PublishConfigReloaded(source string, err error) error {
	event := Event{
		Type:    EventTypeConfigReloaded,
		Source:  source,
		Message: "Reloaded " + source,
		Level:   EventLevelInfo,
	}
	if err != nil {
		event.Message = fmt.Sprintf("Reload of %s failed: %v", source, err)
		event.Level = EventLevelWarning
		event.Data = map[string]interface{}{"reason": err.Error()}
	}
	return ep.Publish(event)
}

// PublishPolicyViolation records one violation. Error and critical
// severities are published at error level, the rest as warnings.
func (ep *EventPublisher) PublishPolicyViolation(assemblyID, componentID, policyName, severity, reason string) error {
	level := EventLevelWarning
	if severity == "error" || severity == "critical" {
		level = EventLevelError
	}
	return ep.Publish(Event{
		Type:        EventTypePolicyViolation,
		Source:      "policy_engine",
		AssemblyID:  assemblyID,
		ComponentID: componentID,
		Message:     fmt.Sprintf("Policy %s violated by %s: %s", policyName, componentID, reason),
		Level:       level,
		Data:        map[string]interface{}{"policy": policyName, "severity": severity, "reason": reason},
	})
}

// Subscribe adds a new event subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents batches buffered events and delivers a batch when it is full
// or when the flush interval passes.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	interval := ep.config.FlushInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				ep.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					ep.flushBatch(batch)
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent calls every matching subscriber in order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown drains buffered events and stops the publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

var eventLevelRank = map[string]int{EventLevelInfo: 0, EventLevelWarning: 1, EventLevelError: 2}

// FilterByLevel accepts events at minLevel or above.
func FilterByLevel(minLevel string) EventFilter {
	floor := eventLevelRank[minLevel]
	return func(event Event) bool { return eventLevelRank[event.Level] >= floor }
}

func FilterByType(types ...string) EventFilter {
	accepted := make(map[string]bool, len(types))
	for _, t := range types {
		accepted[t] = true
	}
	return func(event Event) bool { return accepted[event.Type] }
}

func FilterByAssemblyID(assemblyID string) EventFilter {
	return func(event Event) bool { return event.AssemblyID == assemblyID }
}

func FilterByComponentID(componentID string) EventFilter {
	return func(event Event) bool { return event.ComponentID == componentID }
}
