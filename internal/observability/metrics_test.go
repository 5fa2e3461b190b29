package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/danmuck/continuityctl/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("GET", "/health", 200, 12*time.Millisecond)
	RecordSinkPublish("console", true)
	RecordRotation(false)
	RecordAdvertise(AdvertiseTooLarge)
	RecordDelivery(true)
}

func TestScanCounterIncrements(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(scanAdvertisements.WithLabelValues(ScanVendorFiltered))
	RecordScan(ScanVendorFiltered)
	RecordScan(ScanVendorFiltered)
	after := testutil.ToFloat64(scanAdvertisements.WithLabelValues(ScanVendorFiltered))
	if after-before != 2 {
		t.Fatalf("expected +2 vendor_filtered, got %v", after-before)
	}
}

func TestSessionTransitionMovesGauge(t *testing.T) {
	testlog.Start(t)
	RecordSessionTransition("scan", "", "scanning")
	if v := testutil.ToFloat64(sessions.WithLabelValues("scan", "scanning")); v < 1 {
		t.Fatalf("expected scanning gauge >= 1, got %v", v)
	}
	RecordSessionTransition("scan", "scanning", "idle")
	if v := testutil.ToFloat64(sessions.WithLabelValues("scan", "scanning")); v != 0 {
		t.Fatalf("expected scanning gauge 0, got %v", v)
	}
}

func TestSessionFaultsDoNotHoldGauge(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(sessionFaults.WithLabelValues("advertise"))
	RecordSessionTransition("advertise", "", "advertising")
	RecordSessionTransition("advertise", "advertising", "")
	RecordSessionFault("advertise")
	if v := testutil.ToFloat64(sessions.WithLabelValues("advertise", "faulted")); v != 0 {
		t.Fatalf("expected faulted gauge 0, got %v", v)
	}
	if v := testutil.ToFloat64(sessions.WithLabelValues("advertise", "advertising")); v != 0 {
		t.Fatalf("expected advertising gauge 0, got %v", v)
	}
	if after := testutil.ToFloat64(sessionFaults.WithLabelValues("advertise")); after-before != 1 {
		t.Fatalf("expected +1 advertise fault, got %v", after-before)
	}
}
