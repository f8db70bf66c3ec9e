package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PipelineEvent is something that happened while serving one search request.
type PipelineEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	RequestID      string                 `json:"request_id"`
	Label          string                 `json:"label,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of pipeline event
type EventType string

const (
	RequestStarted   EventType = "request_started"
	RequestCompleted EventType = "request_completed"
	RequestFailed    EventType = "request_failed"
	ImageFetched     EventType = "image_fetched"
	ImageFetchFailed EventType = "image_fetch_failed"
	RegionSkipped    EventType = "region_skipped"
	RegionMatched    EventType = "region_matched"
	SearchFailed     EventType = "search_failed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event PipelineEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event PipelineEvent)
}

// LoggingObserver logs pipeline events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles pipeline events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event PipelineEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"request_id": event.RequestID,
	}
	if event.Label != "" {
		fields["label"] = event.Label
	}
	if event.ProcessingTime > 0 {
		fields["processing_time"] = event.ProcessingTime.String()
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case RequestStarted:
		entry.Info("Outfit search started")
	case RequestCompleted:
		entry.Info("Outfit search completed")
	case RequestFailed:
		entry.Error("Outfit search failed")
	case ImageFetched:
		entry.Debug("Image fetched successfully")
	case ImageFetchFailed:
		entry.Warn("Image fetch failed")
	case RegionSkipped:
		entry.Debug("Region skipped")
	case RegionMatched:
		entry.Info("Region matched catalog products")
	case SearchFailed:
		entry.Error("Similarity search failed, skipping region")
	default:
		entry.Info("Pipeline event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsSnapshot is the counter set served on /metrics.
type MetricsSnapshot struct {
	TotalRequests      int64   `json:"total_requests"`
	CompletedRequests  int64   `json:"completed_requests"`
	FailedRequests     int64   `json:"failed_requests"`
	EmptyResults       int64   `json:"empty_results"`
	RegionsMatched     int64   `json:"regions_matched"`
	RegionsSkipped     int64   `json:"regions_skipped"`
	SearchFailures     int64   `json:"search_failures"`
	ImageFetchFailures int64   `json:"image_fetch_failures"`
	AvgProcessingSec   float64 `json:"avg_processing_time_sec"`
}

// MetricsObserver collects metrics from pipeline events
type MetricsObserver struct {
	mu                  sync.RWMutex
	snapshot            MetricsSnapshot
	totalProcessingTime time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles pipeline events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event PipelineEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case RequestStarted:
		o.snapshot.TotalRequests++
	case RequestCompleted:
		o.snapshot.CompletedRequests++
		o.totalProcessingTime += event.ProcessingTime
		if categories, ok := event.Metadata["categories"].(int); ok && categories == 0 {
			o.snapshot.EmptyResults++
		}
	case RequestFailed:
		o.snapshot.FailedRequests++
	case ImageFetchFailed:
		o.snapshot.ImageFetchFailures++
	case RegionSkipped:
		o.snapshot.RegionsSkipped++
	case RegionMatched:
		o.snapshot.RegionsMatched++
	case SearchFailed:
		o.snapshot.SearchFailures++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// Snapshot returns a copy of the current counters.
func (o *MetricsObserver) Snapshot() MetricsSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	s := o.snapshot
	if s.CompletedRequests > 0 {
		s.AvgProcessingSec = (o.totalProcessingTime / time.Duration(s.CompletedRequests)).Seconds()
	}
	return s
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
	async     bool
}

// NewEventPublisher creates a publisher that notifies observers on their own
// goroutines. Observers may see events out of publication order.
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
		async:     true,
	}
}

// NewSyncEventPublisher creates a publisher that notifies observers inline,
// in subscription order.
func NewSyncEventPublisher() *EventPublisher {
	return &EventPublisher{observers: make([]Observer, 0)}
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
func (p *EventPublisher) NotifyObservers(ctx context.Context, event PipelineEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		if !p.async {
			notify(ctx, observer, event)
			continue
		}
		go notify(ctx, observer, event)
	}
}

func notify(ctx context.Context, obs Observer, event PipelineEvent) {
	defer func() {
		if r := recover(); r != nil {
			// Log panic but don't crash the application
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
