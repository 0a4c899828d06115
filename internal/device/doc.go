// Package device tracks Broadlink RM devices on the local network.
//
// It owns three things:
//
//   - Registry: maps a device's address and MAC to a single Handle,
//     dropping duplicate registrations from repeated discovery broadcasts.
//   - Handle: the per-device Transport plus the exclusive command lock and
//     the liveness fields written by the monitor.
//   - Monitor: per-device probe loops with hysteresis, producing
//     unknown/active/inactive transitions and driving keepalive traffic.
//
// # Architecture
//
//	 discovery / static hosts
//	           │
//	           ▼
//	┌──────────────────────┐  Watch   ┌──────────────────────┐
//	│       Registry       │─────────▶│       Monitor        │
//	│ address ─┐           │          │ probe (no lock)      │
//	│ mac ─────┴─▶ Handle  │          │ keepalive (TryLock)  │
//	└──────────────────────┘          └──────────────────────┘
//	           │ Resolve
//	           ▼
//	   dispatch / learning (Handle.Lock)
//
// # Locking
//
// Every operation that talks to a device's Transport holds that device's
// lock for its whole duration, timed waits included. The liveness probe is
// the exception: it goes through a Prober (ICMP) and never takes the lock,
// so a long command sequence cannot hide a dead device.
//
// # Usage
//
//	monitor := device.NewMonitor(device.DefaultMonitorConfig(), pinger)
//	registry := device.NewRegistry(factory)
//	registry.SetWatcher(monitor)
//
//	h, added := registry.Register(device.Identity{Address: "192.168.1.50", MAC: "34:ea:34:aa:bb:cc"}, transport)
//	if err := monitor.Start(ctx); err != nil {
//	    return err
//	}
package device
