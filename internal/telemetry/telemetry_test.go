package telemetry_test

import (
	"sync"
	"testing"
	"time"

	"github.com/orbitwire/newsclean/internal/telemetry"
)

// providerOnce ensures we only create one Provider per test run to avoid
// duplicate Prometheus metric registration errors from promauto's global registry
var (
	testProvider *telemetry.Provider
	providerOnce sync.Once
)

func getTestProvider(t *testing.T) *telemetry.Provider {
	t.Helper()
	providerOnce.Do(func() {
		testProvider = telemetry.NewProvider()
	})
	return testProvider
}

func TestNewProvider(t *testing.T) {
	provider := getTestProvider(t)
	if provider == nil {
		t.Fatal("expected non-nil provider")
	}
	if provider.Tracer == nil {
		t.Error("expected non-nil tracer")
	}
	if provider.Metrics == nil {
		t.Error("expected non-nil metrics")
	}
}

func TestRecordClassification(t *testing.T) {
	provider := getTestProvider(t)

	// Should not panic
	provider.RecordClassification("cleaned", 100*time.Millisecond)
	provider.RecordClassification("uncleaned", 50*time.Millisecond)
	provider.RecordClassificationFailure()
}

func TestRecordReclass(t *testing.T) {
	provider := getTestProvider(t)

	// Should not panic
	provider.RecordReclassRun(25, 5*time.Millisecond)
	provider.RecordReclassSuperseded()
	provider.RecordReclassExpired()
}

func TestGauges(t *testing.T) {
	provider := getTestProvider(t)

	// Should not panic
	provider.SetIngestQueueDepth(100)
	provider.SetRuleSet(7, 12)
}

func TestNilProvider(t *testing.T) {
	var provider *telemetry.Provider

	// Every recorder is nil-safe
	provider.RecordIngest()
	provider.RecordClassification("cleaned", time.Millisecond)
	provider.RecordDelivery(true)
	provider.SetIngestQueueDepth(1)
}
