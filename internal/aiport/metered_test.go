package aiport

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeRecorder struct {
	calls []fakeMetric
}

type fakeMetric struct {
	capability string
	success    bool
	durationMS int64
	confidence *float64
	input      string
	result     string
}

func (f *fakeRecorder) RecordAIMetricDetailed(ctx context.Context, capability string, success bool, durationMS int64, confidence *float64, inputText, resultText string) error {
	f.calls = append(f.calls, fakeMetric{capability, success, durationMS, confidence, inputText, resultText})
	return nil
}

type stepClock struct {
	times []time.Time
	i     int
}

func (c *stepClock) Now() time.Time {
	t := c.times[c.i]
	if c.i < len(c.times)-1 {
		c.i++
	}
	return t
}

func TestMetered_RecordsSuccessWithConfidence(t *testing.T) {
	rec := &fakeRecorder{}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMetered(NewMock(), rec)
	m.clock = &stepClock{times: []time.Time{base, base.Add(50 * time.Millisecond)}}

	_, err := m.ClassifyMerchant(context.Background(), "NETFLIX")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("expected 1 recorded metric, got %d", len(rec.calls))
	}
	call := rec.calls[0]
	if call.capability != capabilityClassifyMerchant {
		t.Fatalf("expected capability %q, got %q", capabilityClassifyMerchant, call.capability)
	}
	if !call.success {
		t.Fatal("expected success=true")
	}
	if call.durationMS != 50 {
		t.Fatalf("expected 50ms latency, got %d", call.durationMS)
	}
	if call.confidence == nil {
		t.Fatal("expected a confidence value on success")
	}
	if call.input != "NETFLIX" {
		t.Fatalf("expected input recorded verbatim, got %q", call.input)
	}
}

type failingPort struct{ Mock }

func (failingPort) Execute(ctx context.Context, systemPrompt, userPrompt string, tools []Tool) (string, error) {
	return "", errors.New("boom")
}

func TestMetered_RecordsFailureWithNilConfidence(t *testing.T) {
	rec := &fakeRecorder{}
	m := NewMetered(failingPort{}, rec)
	m.clock = &stepClock{times: []time.Time{time.Unix(0, 0), time.Unix(0, 0)}}

	_, err := m.Execute(context.Background(), "sys", "user", nil)
	if err == nil {
		t.Fatal("expected Execute to fail")
	}
	if len(rec.calls) != 1 {
		t.Fatalf("expected 1 recorded metric, got %d", len(rec.calls))
	}
	if rec.calls[0].success {
		t.Fatal("expected success=false")
	}
	if rec.calls[0].confidence != nil {
		t.Fatal("expected nil confidence on failure")
	}
}
