// Package influxdb records Broadlink bridge telemetry in InfluxDB.
//
// It wraps influxdb-client-go v2 with connection management and
// typed writers for the bridge's three measurements:
//
//	broadlink_dispatch   attempted/failed/timed_out per command
//	broadlink_liveness   state transitions per device
//	broadlink_learning   captured/timed_out/failed/canceled sessions
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry is optional
//	}
//	defer client.Close()
//
//	client.WriteDispatch("192.168.1.50", 3, 0, false, 420*time.Millisecond)
//
// Writes are non-blocking and batched (batch_size, flush_interval).
// Asynchronous write failures are delivered to the SetOnError callback.
package influxdb
