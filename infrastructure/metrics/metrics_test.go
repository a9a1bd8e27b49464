package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	if m == nil {
		t.Fatal("Expected metrics instance, got nil")
	}

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal should not be nil")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration should not be nil")
	}
	if m.CompileErrorsTotal == nil {
		t.Error("CompileErrorsTotal should not be nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordHTTPRequest("GET", "/api/machines", "200", 100*time.Millisecond)
	m.RecordHTTPRequest("POST", "/api/machines", "201", 200*time.Millisecond)
	m.RecordHTTPRequest("GET", "/api/machines", "404", 50*time.Millisecond)
}

func TestRecordCompileError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordCompileError("orchestrate", "COMPILE_1002")
	m.RecordCompileError("orchestrate", "COMPILE_1008")
}

func TestRecordCompile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordCompile("orchestrate", true, 25*time.Millisecond, map[string]int{
		"Task":   3,
		"Choice": 1,
		"Pass":   2,
	})
	m.RecordCompile("orchestrate", false, 5*time.Millisecond, nil)
}

func TestRecordRegistryQuery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordRegistryQuery("get_construct", true, 10*time.Millisecond)
	m.RecordRegistryQuery("put_construct", false, 5*time.Millisecond)
}

func TestInFlightCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.IncrementInFlight()
	m.IncrementInFlight()
	m.DecrementInFlight()
	m.DecrementInFlight()
}

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	if m == nil {
		t.Fatal("Expected metrics instance, got nil")
	}

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Error("Expected metrics to be registered")
	}
}
