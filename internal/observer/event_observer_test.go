package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestMetricsObserver_Snapshot(t *testing.T) {
	m := NewMetricsObserver()
	ctx := context.Background()

	events := []PipelineEvent{
		{EventType: RequestStarted},
		{EventType: RegionMatched, Label: "shirt"},
		{EventType: RegionSkipped, Label: "person"},
		{EventType: SearchFailed, Label: "shoe"},
		{EventType: RequestCompleted, ProcessingTime: 2 * time.Second, Metadata: map[string]interface{}{"categories": 1}},
		{EventType: RequestStarted},
		{EventType: RequestCompleted, ProcessingTime: 4 * time.Second, Metadata: map[string]interface{}{"categories": 0}},
		{EventType: RequestStarted},
		{EventType: RequestFailed},
	}
	for _, e := range events {
		m.OnEvent(ctx, e)
	}

	s := m.Snapshot()
	if s.TotalRequests != 3 || s.CompletedRequests != 2 || s.FailedRequests != 1 {
		t.Errorf("Unexpected request counters %+v", s)
	}
	if s.RegionsMatched != 1 || s.RegionsSkipped != 1 || s.SearchFailures != 1 {
		t.Errorf("Unexpected region counters %+v", s)
	}
	if s.EmptyResults != 1 {
		t.Errorf("Expected one empty result, got %d", s.EmptyResults)
	}
	if s.AvgProcessingSec != 3 {
		t.Errorf("Expected average of 3s, got %v", s.AvgProcessingSec)
	}
}

type panickingObserver struct{}

func (panickingObserver) OnEvent(ctx context.Context, event PipelineEvent) { panic("boom") }
func (panickingObserver) GetObserverName() string                          { return "panicker" }

func TestSyncEventPublisher_SurvivesPanicsAndUnsubscribe(t *testing.T) {
	p := NewSyncEventPublisher()
	m := NewMetricsObserver()
	p.Subscribe(panickingObserver{})
	p.Subscribe(m)

	p.NotifyObservers(context.Background(), PipelineEvent{EventType: RequestStarted})
	if m.Snapshot().TotalRequests != 1 {
		t.Fatal("Expected metrics observer to be notified despite the panicking one")
	}

	p.Unsubscribe(m)
	p.NotifyObservers(context.Background(), PipelineEvent{EventType: RequestStarted})
	if m.Snapshot().TotalRequests != 1 {
		t.Error("Expected no notifications after unsubscribe")
	}
}

type recordingObserver struct{ labels []string }

func (r *recordingObserver) OnEvent(ctx context.Context, event PipelineEvent) {
	r.labels = append(r.labels, event.Label)
}
func (r *recordingObserver) GetObserverName() string { return "recorder" }

func TestSyncEventPublisher_PreservesOrder(t *testing.T) {
	p := NewSyncEventPublisher()
	rec := &recordingObserver{}
	p.Subscribe(rec)

	want := []string{"person", "shirt", "shirt", "shoe", "pants"}
	for _, label := range want {
		p.NotifyObservers(context.Background(), PipelineEvent{EventType: RegionSkipped, Label: label})
	}

	if strings.Join(rec.labels, ",") != strings.Join(want, ",") {
		t.Errorf("Expected events in publication order %v, got %v", want, rec.labels)
	}
}

func TestLoggingObserver_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	NewLoggingObserver(log).OnEvent(context.Background(), PipelineEvent{
		EventType:    SearchFailed,
		RequestID:    "req-1",
		Label:        "shoe",
		ErrorMessage: "timeout",
	})

	var line map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("Expected one JSON log line, got %q", buf.String())
	}
	if line["level"] != "error" || line["label"] != "shoe" || line["request_id"] != "req-1" {
		t.Errorf("Unexpected log line %v", line)
	}
	if !strings.Contains(line["msg"].(string), "skipping region") {
		t.Errorf("Unexpected message %v", line["msg"])
	}
}
