package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the bridge.
const (
	MeasurementDispatch = "broadlink_dispatch"
	MeasurementLiveness = "broadlink_liveness"
	MeasurementLearning = "broadlink_learning"
)

// WriteDispatch records the outcome of one dispatched command.
//
// Parameters:
//   - device: Device address the command was sent to
//   - attempted: Transmissions attempted
//   - failed: Transmissions that failed (-1 when no device was resolved)
//   - timedOut: Whether the dispatch deadline expired
//   - elapsed: Wall time spent dispatching
func (c *Client) WriteDispatch(device string, attempted, failed int, timedOut bool, elapsed time.Duration) {
	c.WritePoint(MeasurementDispatch,
		map[string]string{"device": device},
		map[string]interface{}{
			"attempted":  attempted,
			"failed":     failed,
			"timed_out":  timedOut,
			"elapsed_ms": elapsed.Milliseconds(),
		})
}

// WriteLiveness records a liveness state transition.
func (c *Client) WriteLiveness(device, state string, reachable bool) {
	c.WritePoint(MeasurementLiveness,
		map[string]string{"device": device, "state": state},
		map[string]interface{}{"reachable": reachable})
}

// WriteLearning records how a learning session ended.
//
// Parameters:
//   - device: Device address
//   - kind: "ir" or "rf"
//   - outcome: captured, timed_out, failed or canceled
//   - frequency: Locked RF frequency in MHz, zero for IR
//   - elapsed: Session duration
func (c *Client) WriteLearning(device, kind, outcome string, frequency float64, elapsed time.Duration) {
	fields := map[string]interface{}{
		"elapsed_ms": elapsed.Milliseconds(),
		"captured":   outcome == "captured",
	}
	if frequency > 0 {
		fields["frequency_mhz"] = frequency
	}

	c.WritePoint(MeasurementLearning,
		map[string]string{"device": device, "kind": kind, "outcome": outcome},
		fields)
}

// WritePoint writes a point stamped with the current time. Default tags
// are merged in; per-point tags win on conflict.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	c.mu.RLock()
	merged := make(map[string]string, len(c.tags)+len(tags))
	for k, v := range c.tags {
		merged[k] = v
	}
	c.mu.RUnlock()
	for k, v := range tags {
		merged[k] = v
	}

	c.writer.WritePoint(write.NewPoint(measurement, merged, fields, timestamp))
}
