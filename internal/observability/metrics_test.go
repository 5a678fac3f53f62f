package observability

import (
	"testing"
	"time"

	"github.com/danmuck/purity/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)

	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("purity-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordReceived("__ping__")
	RecordDropped("unknown_selector")
	RecordSend(true)
	RecordSend(false)
	RecordHandshake("ready", 80*time.Millisecond)
	RecordTransition("ready")
}
