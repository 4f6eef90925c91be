package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ReadingEvent represents a step in the life of one palm reading
type ReadingEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	SessionID      string                 `json:"session_id,omitempty"`
	MediaType      string                 `json:"media_type,omitempty"`
	ImageBytes     int                    `json:"image_bytes,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorKind      string                 `json:"error_kind,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of reading event
type EventType string

const (
	// ImageRejected when a selected file fails validation or cannot be read
	ImageRejected EventType = "image_rejected"
	// ReadingStarted when a request to the remote model is issued
	ReadingStarted EventType = "reading_started"
	// ReadingCompleted when the model returned a reading
	ReadingCompleted EventType = "reading_completed"
	// ReadingFailed when the model call failed
	ReadingFailed EventType = "reading_failed"
	// ReadingDiscarded when a result arrives after the session was reset
	ReadingDiscarded EventType = "reading_discarded"
	// SessionReset when the user starts over
	SessionReset EventType = "session_reset"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event ReadingEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event ReadingEvent)
}

// LoggingObserver logs reading events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles reading events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event ReadingEvent) {
	fields := logrus.Fields{
		"event_type":         event.EventType,
		"session_id":         event.SessionID,
		"processing_time_ms": event.ProcessingTime.Milliseconds(),
		"success":            event.Success,
	}
	if event.MediaType != "" {
		fields["media_type"] = event.MediaType
	}
	if event.ImageBytes > 0 {
		fields["image_bytes"] = event.ImageBytes
	}
	if event.ErrorKind != "" {
		fields["error_kind"] = event.ErrorKind
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case ReadingStarted:
		entry.Info("Palm reading started")
	case ReadingCompleted:
		entry.Info("Palm reading completed")
	case ReadingFailed:
		entry.Error("Palm reading failed")
	case ImageRejected:
		entry.Warn("Selected image rejected")
	case ReadingDiscarded:
		entry.Debug("Late palm reading discarded")
	case SessionReset:
		entry.Debug("Session reset")
	default:
		entry.Info("Reading event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// Metrics is a point-in-time copy of MetricsObserver counters
type Metrics struct {
	TotalReadings      int64         `json:"total_readings"`
	SuccessfulReadings int64         `json:"successful_readings"`
	FailedReadings     int64         `json:"failed_readings"`
	DiscardedReadings  int64         `json:"discarded_readings"`
	RejectedImages     int64         `json:"rejected_images"`
	Resets             int64         `json:"resets"`
	TotalProcessing    time.Duration `json:"total_processing_ns"`
	AvgProcessing      time.Duration `json:"avg_processing_ns"`
}

// MetricsObserver collects metrics from reading events
type MetricsObserver struct {
	mu      sync.RWMutex
	metrics Metrics
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles reading events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event ReadingEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case ReadingStarted:
		o.metrics.TotalReadings++
	case ReadingCompleted:
		o.metrics.SuccessfulReadings++
		o.metrics.TotalProcessing += event.ProcessingTime
	case ReadingFailed:
		o.metrics.FailedReadings++
	case ReadingDiscarded:
		o.metrics.DiscardedReadings++
	case ImageRejected:
		o.metrics.RejectedImages++
	case SessionReset:
		o.metrics.Resets++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	m := o.metrics
	if m.SuccessfulReadings > 0 {
		m.AvgProcessing = m.TotalProcessing / time.Duration(m.SuccessfulReadings)
	}
	return m
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
	pending   sync.WaitGroup
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event
func (p *EventPublisher) NotifyObservers(ctx context.Context, event ReadingEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	// Notify observers concurrently
	for _, observer := range observers {
		p.pending.Add(1)
		go func(obs Observer) {
			defer p.pending.Done()
			defer func() {
				if r := recover(); r != nil {
					// Log panic but don't crash the application
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}(observer)
	}
}

// Flush blocks until every notification issued so far has been handled
func (p *EventPublisher) Flush() {
	p.pending.Wait()
}
