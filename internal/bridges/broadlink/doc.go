// Package broadlink bridges Broadlink RM devices onto the Gray Logic MQTT bus.
//
// The bridge receives commands from Core and turns them into dispatches or
// learning sessions, then reports back:
//
//	graylogic/command/broadlink/{selector}   ← send, learn_ir, learn_rf, learn_stop
//	graylogic/ack/broadlink/{selector}       → command outcome
//	graylogic/learn/broadlink/{selector}     → learning progress and result
//	graylogic/state/broadlink/{mac}          → liveness (retained)
//	graylogic/discovery/broadlink            → newly registered devices
//	graylogic/health/broadlink               → bridge health (retained, LWT)
//
// The selector is a device IP address or MAC; "_" addresses the first
// registered device that can perform the command.
//
// Every send runs on its own goroutine so a long sequence never blocks
// MQTT delivery. Ordering per device is provided by the device lock in
// the dispatcher, not by the bridge.
//
// Discovery, liveness, learning and dispatch events are also mirrored to
// an optional EventSink (the API's WebSocket hub).
package broadlink
